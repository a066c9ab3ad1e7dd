package entity

import "time"

// DomainDecision is the resolved, persisted classification of a hostname.
type DomainDecision struct {
	Domain              string    `json:"domain"`
	IsBlocklisted       bool      `json:"isBlocklisted"`
	EntropyScore        float64   `json:"entropyScore"`
	RegistrationAgeDays *int      `json:"registrationAgeDays,omitempty"`
	Blocked             bool      `json:"blocked"`
	ResolvedAt          time.Time `json:"resolvedAt"`
}

// NavigationAction is what the browser collaborator should do with a navigation.
type NavigationAction string

const (
	NavigationAllow    NavigationAction = "allow"
	NavigationBlock    NavigationAction = "block"
	NavigationRedirect NavigationAction = "redirect"
)

// NavigationVerdict is the outcome of checking one page navigation.
type NavigationVerdict struct {
	Domain          string           `json:"domain"`
	Action          NavigationAction `json:"action"`
	Reasons         []string         `json:"reasons,omitempty"`
	SuggestedDomain string           `json:"suggestedDomain,omitempty"`
	EntropyScore    float64          `json:"entropyScore"`
}
