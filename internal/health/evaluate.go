// Package health turns probe outcomes into verdicts and verdicts into
// remediation actions.
package health

import (
	"strconv"

	"github.com/hamed0406/poolwatch/internal/domain"
	"github.com/hamed0406/poolwatch/internal/probe"
)

// WebVerdict is the evaluation of one web target and, when reachable, its pools.
type WebVerdict struct {
	Verdict domain.Verdict
	Pools   []domain.PoolVerdict
}

// EvaluateWeb never looks at pools when the API was unreachable.
func EvaluateWeb(t domain.WebTarget, out probe.RetryOutcome) WebVerdict {
	if !out.Succeeded {
		return WebVerdict{Verdict: domain.Unreachable}
	}

	v := WebVerdict{Verdict: domain.Healthy}
	for _, p := range t.Pools {
		pv := EvaluatePool(p, out.Data)
		if pv.Verdict == domain.BelowThreshold {
			v.Verdict = domain.BelowThreshold
		}
		v.Pools = append(v.Pools, pv)
	}
	return v
}

// EvaluatePool compares the reported hashrate against the pool threshold.
// Observed at or below the threshold is unhealthy.
func EvaluatePool(p domain.PoolSpec, data any) domain.PoolVerdict {
	observed := Hashrate(data, p.Coin)
	verdict := domain.Healthy
	if observed <= p.Threshold {
		verdict = domain.BelowThreshold
	}
	return domain.PoolVerdict{Pool: p, Verdict: verdict, Observed: observed}
}

func EvaluateStratum(out probe.RetryOutcome) domain.Verdict {
	if out.Succeeded {
		return domain.Healthy
	}
	return domain.Unreachable
}

// Hashrate reads pools[coin].hashrate from a decoded API response.
// Anything missing or malformed reads as 0.
func Hashrate(data any, coin string) float64 {
	root, ok := data.(map[string]any)
	if !ok {
		return 0
	}
	pools, ok := root["pools"].(map[string]any)
	if !ok {
		return 0
	}
	pool, ok := pools[coin].(map[string]any)
	if !ok {
		return 0
	}
	switch h := pool["hashrate"].(type) {
	case float64:
		return h
	case string:
		if f, err := strconv.ParseFloat(h, 64); err == nil {
			return f
		}
	}
	return 0
}
