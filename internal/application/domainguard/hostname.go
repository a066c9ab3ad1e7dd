package domainguard

import (
	"math"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Hostname extracts the lowercase hostname of a navigation target with any
// leading "www." removed. Bare hostnames without a scheme are accepted.
func Hostname(rawURL string) (string, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := normalizeHost(u.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}
	return host, true
}

func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	return strings.TrimPrefix(host, "www.")
}

// registrableDomain returns eTLD+1, or host itself when it has none.
func registrableDomain(host string) string {
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}

// domainLabel returns the registrable label with the public suffix removed:
// "login.my-wallet.co.uk" -> "my-wallet".
func domainLabel(host string) string {
	reg := registrableDomain(host)
	suffix, _ := publicsuffix.PublicSuffix(reg)
	if suffix == reg {
		return reg
	}
	return strings.TrimSuffix(reg, "."+suffix)
}

// parentDomains returns host followed by each parent suffix that still
// contains a dot: a.b.example.com -> [a.b.example.com b.example.com example.com].
func parentDomains(host string) []string {
	out := []string{host}
	for {
		_, rest, ok := strings.Cut(host, ".")
		if !ok || !strings.Contains(rest, ".") {
			return out
		}
		out = append(out, rest)
		host = rest
	}
}

// Entropy returns the Shannon entropy of s in bits per character.
func Entropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
