package feed

// addressesDoc is the `{"addresses": [...]}` feed shape.
type addressesDoc struct {
	Addresses []string `json:"addresses"`
}

// entriesDoc is the `{"entries": [{"address"|"contract": ...}]}` feed shape.
type entriesDoc struct {
	Entries []entryRaw `json:"entries"`
}

type entryRaw struct {
	Address  string `json:"address"`
	Contract string `json:"contract"`
}

func (e entryRaw) value() string {
	if e.Address != "" {
		return e.Address
	}
	return e.Contract
}

// phishingDoc is the MetaMask eth-phishing-detect configuration shape.
type phishingDoc struct {
	Blacklist []string `json:"blacklist"`
	Whitelist []string `json:"whitelist"`
}

// PhishingList is a normalised phishing configuration. Allowed hosts override
// a Blocked entry for themselves and their subdomains.
type PhishingList struct {
	Blocked []string
	Allowed []string
}
