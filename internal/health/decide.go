package health

import "github.com/hamed0406/poolwatch/internal/domain"

// DecideWeb emits one action for an unreachable target, otherwise one per
// pool below threshold. Actions are not deduplicated by remediation ID.
func DecideWeb(t domain.WebTarget, v WebVerdict) []domain.RemediationAction {
	if !t.Remediate {
		return nil
	}
	if v.Verdict == domain.Unreachable {
		return []domain.RemediationAction{{
			RemediationID: t.RemediationID,
			Reason:        domain.Unreachable,
			TargetID:      t.ID,
		}}
	}

	var actions []domain.RemediationAction
	for _, pv := range v.Pools {
		if pv.Verdict != domain.BelowThreshold {
			continue
		}
		actions = append(actions, domain.RemediationAction{
			RemediationID: pv.Pool.RemediationID,
			Reason:        domain.BelowThreshold,
			TargetID:      t.ID,
			Coin:          pv.Pool.Coin,
		})
	}
	return actions
}

func DecideStratum(t domain.StratumTarget, v domain.Verdict) []domain.RemediationAction {
	if v != domain.Unreachable {
		return nil
	}
	return []domain.RemediationAction{{
		RemediationID: t.RemediationID,
		Reason:        domain.Unreachable,
		TargetID:      t.ID,
	}}
}

// SkipStratum reports whether the stratum tier must wait for the next cycle
// because the web tier already triggered a restart.
func SkipStratum(webActions []domain.RemediationAction) bool {
	return len(webActions) > 0
}
