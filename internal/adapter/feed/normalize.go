package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"txrisk-engine/internal/domain"
	"txrisk-engine/internal/domain/entity"

	"go.uber.org/zap"
)

// NormalizeAddresses flattens a threat feed into unique lowercase addresses.
// Accepted shapes: an array of strings, an array of entry objects,
// {"addresses": [...]} and {"entries": [{"address"|"contract": ...}]}.
// Entries that are not 42-character 0x addresses are dropped.
func NormalizeAddresses(body []byte, logger *zap.Logger) ([]string, error) {
	raw, err := rawAddresses(bytes.TrimSpace(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		addr, ok := entity.NormalizeAddress(r)
		if !ok {
			skipped++
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	if skipped > 0 && logger != nil {
		logger.Debug("Dropped malformed feed entries", zap.Int("skipped", skipped), zap.Int("kept", len(out)))
	}
	return out, nil
}

func rawAddresses(body []byte) ([]string, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty feed body", domain.ErrFeedUnavailable)
	}

	switch body[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(body, &list); err == nil {
			return list, nil
		}
		var entries []entryRaw
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("%w: unrecognised array feed: %v", domain.ErrFeedUnavailable, err)
		}
		return entryValues(entries), nil
	case '{':
		var members map[string]json.RawMessage
		if err := json.Unmarshal(body, &members); err != nil {
			return nil, fmt.Errorf("%w: invalid feed object: %v", domain.ErrFeedUnavailable, err)
		}
		if _, ok := members["addresses"]; ok {
			var doc addressesDoc
			if err := json.Unmarshal(body, &doc); err != nil {
				return nil, fmt.Errorf("%w: invalid addresses feed: %v", domain.ErrFeedUnavailable, err)
			}
			return doc.Addresses, nil
		}
		if _, ok := members["entries"]; ok {
			var doc entriesDoc
			if err := json.Unmarshal(body, &doc); err != nil {
				return nil, fmt.Errorf("%w: invalid entries feed: %v", domain.ErrFeedUnavailable, err)
			}
			return entryValues(doc.Entries), nil
		}
		return nil, fmt.Errorf("%w: feed object has neither addresses nor entries", domain.ErrFeedUnavailable)
	default:
		return nil, fmt.Errorf("%w: feed is not JSON", domain.ErrFeedUnavailable)
	}
}

func entryValues(entries []entryRaw) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.value())
	}
	return out
}

// NormalizePhishingList flattens a phishing-domain list into unique lowercase
// hostnames. Accepts the MetaMask {"blacklist": [...], "whitelist": [...]}
// document or a plain array of blocked hosts.
func NormalizePhishingList(body []byte) (PhishingList, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return PhishingList{}, fmt.Errorf("%w: empty phishing list", domain.ErrFeedUnavailable)
	}

	var doc phishingDoc
	if body[0] == '[' {
		if err := json.Unmarshal(body, &doc.Blacklist); err != nil {
			return PhishingList{}, fmt.Errorf("%w: invalid phishing list: %v", domain.ErrFeedUnavailable, err)
		}
	} else if err := json.Unmarshal(body, &doc); err != nil {
		return PhishingList{}, fmt.Errorf("%w: invalid phishing config: %v", domain.ErrFeedUnavailable, err)
	}

	return PhishingList{
		Blocked: uniqueHosts(doc.Blacklist),
		Allowed: uniqueHosts(doc.Whitelist),
	}, nil
}

func uniqueHosts(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}
