package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/poolwatch/internal/domain"
)

const (
	markOK   = "✅"
	markDown = "⚠"
)

// FormatReport renders the per-target status lines of a cycle followed by
// the cycle timestamp in loc.
func FormatReport(res domain.CycleResult, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	for _, r := range res.Reports {
		b.WriteString(StatusLine(r, res.Actions))
		b.WriteByte('\n')
		for _, p := range r.Pools {
			b.WriteString(poolLine(r.ID, p, res.Actions))
			b.WriteByte('\n')
		}
	}
	if res.StratumSkipped {
		b.WriteString("stratum: skipped this cycle, web-tier restart in progress\n")
	}
	if res.Aborted {
		b.WriteString("cycle aborted before every target was checked\n")
	}
	ts := res.StartedAt.In(loc)
	fmt.Fprintf(&b, "(%s %s)\n", ts.Format("2006/01/02 15:04:05"), ts.Format("MST"))
	return b.String()
}

// StatusLine is the one-line summary of a target.
func StatusLine(r domain.TargetReport, actions []domain.RemediationAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s): ", r.Kind, r.Name, r.Address)

	switch r.Verdict {
	case domain.Healthy:
		b.WriteString(markOK + " healthy")
	case domain.BelowThreshold:
		b.WriteString(markDown + " pool below threshold")
	default:
		fmt.Fprintf(&b, "%s %s after %d attempts", markDown, r.Verdict, r.Attempts)
		if r.Reason != "" {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		if r.Diagnosis != "" {
			b.WriteString(" " + r.Diagnosis)
		}
	}
	for _, a := range actions {
		if a.TargetID == r.ID && a.Coin == "" {
			b.WriteString(" -> restart " + a.RemediationID)
		}
	}
	return b.String()
}

func poolLine(id domain.TargetID, p domain.PoolVerdict, actions []domain.RemediationAction) string {
	observed := strconv.FormatFloat(p.Observed, 'f', -1, 64)
	threshold := strconv.FormatFloat(p.Pool.Threshold, 'f', -1, 64)
	if p.Verdict == domain.Healthy {
		return fmt.Sprintf("  %s: %s hashrate %s > %s", p.Pool.Coin, markOK, observed, threshold)
	}
	line := fmt.Sprintf("  %s: %s hashrate %s <= %s", p.Pool.Coin, markDown, observed, threshold)
	for _, a := range actions {
		if a.TargetID == id && a.Coin == p.Pool.Coin {
			line += " -> restart " + a.RemediationID
			break
		}
	}
	return line
}
