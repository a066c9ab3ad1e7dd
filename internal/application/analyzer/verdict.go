package analyzer

import (
	"fmt"

	"txrisk-engine/internal/domain/entity"
)

// Verdict titles.
const (
	titleWalletConnect = "WALLET CONNECT"
	titleBlocklisted   = "KNOWN MALICIOUS CONTRACT"
	titleGasLimit      = "SUSPICIOUS GAS LIMIT"
	titleApproval      = "TOKEN APPROVAL"
	titleCollection    = "COLLECTION APPROVAL"
	titleTransfer      = "ASSET TRANSFER"
	titleOutflow       = "ASSETS LEAVING WALLET"
	titleProxy         = "UPGRADEABLE PROXY"
	titleSelfDestruct  = "SELF-DESTRUCT CODE"
	titleDelegateCall  = "DELEGATECALL CODE"
	titleWillFail      = "TRANSACTION WILL FAIL"
	titleDrain         = "POSSIBLE DRAIN"
	titlePriceImpact   = "HIGH PRICE IMPACT"
	titlePermit        = "PERMIT SIGNATURE"
	titleSignature     = "SIGNATURE REQUEST"
	titleUnverified    = "COULD NOT VERIFY"
	titleReview        = "REVIEW CAREFULLY"
	titleNoRedFlags    = "NO OBVIOUS RISK"
)

// run accumulates the verdict of one analysis. Its level only ever rises.
type run struct {
	level     entity.RiskLevel
	title     string
	warnings  []string
	entries   []entity.AssetChangeEntry
	simulated bool
}

func newRun() *run {
	return &run{level: entity.RiskSafe}
}

func (r *run) escalate(level entity.RiskLevel, title string) {
	if level > r.level || r.title == "" {
		r.level = max(r.level, level)
		r.title = title
	}
}

func (r *run) warn(level entity.RiskLevel, title, msg string) {
	r.warnings = append(r.warnings, msg)
	r.escalate(level, title)
}

// note records an advisory that does not raise the level above LOW.
func (r *run) note(msg string) {
	r.warn(entity.RiskLow, titleReview, msg)
}

func (r *run) add(e entity.AssetChangeEntry) {
	r.entries = append(r.entries, e)
}

// merge folds a stage's findings into r. Each entry already in r absorbs at
// most one identical entry of sub, so a transfer seen by both the decoder and
// the trace shows once while repeated identical transfers are all kept.
func (r *run) merge(sub *run) {
	unmatched := make(map[string]int, len(r.entries))
	for _, e := range r.entries {
		unmatched[entryKey(e)]++
	}
	for _, e := range sub.entries {
		key := entryKey(e)
		if unmatched[key] > 0 {
			unmatched[key]--
			continue
		}
		r.entries = append(r.entries, e)
	}
	r.warnings = append(r.warnings, sub.warnings...)
	if sub.title != "" {
		r.escalate(sub.level, sub.title)
	}
}

func (r *run) verdict() entity.RiskVerdict {
	if len(r.warnings) == 0 {
		r.warn(entity.RiskLow, titleNoRedFlags, "no obvious local red flags, still verify manually")
	}
	v := entity.RiskVerdict{
		Level:    r.level,
		Title:    r.title,
		Warnings: r.warnings,
	}
	if r.simulated {
		entries := r.entries
		if entries == nil {
			entries = []entity.AssetChangeEntry{}
		}
		v.Simulation = &entity.SimulationSummary{Entries: entries}
	}
	return v
}

func entryKey(e entity.AssetChangeEntry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", e.Direction, e.Token, e.Amount, e.Symbol, e.Counterparty)
}

func blockedVerdict(addr string) entity.RiskVerdict {
	return entity.RiskVerdict{
		Level:    entity.RiskCritical,
		Title:    titleBlocklisted,
		Warnings: []string{fmt.Sprintf("%s is a known malicious contract", addr)},
	}
}
