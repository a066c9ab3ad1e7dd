package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"txrisk-engine/internal/domain/entity"

	"go.uber.org/zap"
)

// typedData is the subset of an EIP-712 payload the analyzer inspects.
type typedData struct {
	Domain struct {
		Name              string `json:"name"`
		VerifyingContract string `json:"verifyingContract"`
	} `json:"domain"`
	PrimaryType string         `json:"primaryType"`
	Message     map[string]any `json:"message"`
}

func (t typedData) spender() string {
	s, _ := t.Message["spender"].(string)
	return s
}

func (t typedData) isPermit() bool {
	return strings.Contains(strings.ToLower(t.Domain.Name), "permit") ||
		strings.Contains(strings.ToLower(t.PrimaryType), "permit")
}

func (a *Analyzer) analyzeSignature(r *run, op entity.PendingOperation) (entity.RiskVerdict, bool) {
	if op.IsTypedData() {
		td, ok := parseTypedData(op.Params)
		if !ok {
			r.note("could not read the typed data, check its content manually")
		} else {
			for _, addr := range []string{td.Domain.VerifyingContract, td.spender()} {
				if norm, valid := entity.NormalizeAddress(addr); valid && a.blocklist.IsBlocked(norm) {
					a.logger.Warn("Blocklisted contract in signature request",
						zap.String("id", op.CorrelationID), zap.String("address", norm))
					return blockedVerdict(norm), true
				}
			}
			if td.isPermit() {
				msg := "offline permit enables later drain without further approval"
				if spender := td.spender(); spender != "" {
					msg = fmt.Sprintf("%s (spender %s)", msg, strings.ToLower(spender))
				}
				r.warn(entity.RiskCritical, titlePermit, msg)
			}
		}
	}

	if r.level < entity.RiskMedium {
		r.warn(entity.RiskMedium, titleSignature, "verify the site and the content before signing")
	}
	return entity.RiskVerdict{}, false
}

// parseTypedData finds the typed-data parameter, sent either as a JSON
// object or as a JSON-encoded string.
func parseTypedData(params []json.RawMessage) (typedData, bool) {
	for _, p := range params {
		body := []byte(p)
		var s string
		if err := json.Unmarshal(p, &s); err == nil {
			body = []byte(s)
		}
		var td typedData
		if err := json.Unmarshal(body, &td); err != nil {
			continue
		}
		if td.PrimaryType != "" || td.Domain.Name != "" || td.Domain.VerifyingContract != "" {
			return td, true
		}
	}
	return typedData{}, false
}
