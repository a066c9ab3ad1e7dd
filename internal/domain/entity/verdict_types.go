package entity

import (
	"fmt"
	"strings"
)

// RiskLevel is the ordered severity of a verdict.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the upper-case level name used on the wire.
func (l RiskLevel) String() string {
	switch l {
	case RiskSafe:
		return "SAFE"
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the level as its name.
func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *RiskLevel) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "SAFE":
		*l = RiskSafe
	case "LOW":
		*l = RiskLow
	case "MEDIUM":
		*l = RiskMedium
	case "HIGH":
		*l = RiskHigh
	case "CRITICAL":
		*l = RiskCritical
	default:
		return fmt.Errorf("unknown risk level %q", text)
	}
	return nil
}

// Direction classifies an asset movement relative to the analysed wallet.
type Direction string

const (
	DirectionLoss     Direction = "LOSS"
	DirectionIncoming Direction = "INCOMING"
	DirectionMint     Direction = "MINT"
	DirectionSelf     Direction = "SELF"
)

// AssetChangeEntry is one simulated balance movement.
type AssetChangeEntry struct {
	Direction    Direction `json:"direction"`
	Amount       string    `json:"amount"`
	Symbol       string    `json:"symbol,omitempty"`
	Token        string    `json:"token,omitempty"`
	USDValue     float64   `json:"usdValue"`
	Counterparty string    `json:"counterparty"`
	ImageURL     string    `json:"image,omitempty"`
}

// SimulationSummary lists asset movements in discovery order.
type SimulationSummary struct {
	Entries []AssetChangeEntry `json:"entries"`
}

// RiskVerdict is the single result of one analysis run.
type RiskVerdict struct {
	Level      RiskLevel          `json:"level"`
	Title      string             `json:"title"`
	Warnings   []string           `json:"warnings"`
	Simulation *SimulationSummary `json:"simulation,omitempty"`
}
