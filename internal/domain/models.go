package domain

import (
	"net"
	"strconv"
	"time"
)

type TargetID string

// PoolSpec is one coin pool served behind a web target's API.
type PoolSpec struct {
	Coin          string  `json:"coin" mapstructure:"coin"`
	Threshold     float64 `json:"threshold" mapstructure:"threshold"`
	RemediationID string  `json:"remediation_id" mapstructure:"remediation_id"`
}

// WebTarget is a pool web dashboard whose public API reports per-coin hashrate.
type WebTarget struct {
	ID            TargetID   `json:"id" mapstructure:"id"`
	Name          string     `json:"name" mapstructure:"name"`
	URL           string     `json:"url" mapstructure:"url"`
	Type          string     `json:"type" mapstructure:"type"`
	RemediationID string     `json:"remediation_id" mapstructure:"remediation_id"`
	Pools         []PoolSpec `json:"pools,omitempty" mapstructure:"pools"`
	Remediate     bool       `json:"remediate" mapstructure:"remediate"`
}

// StratumTarget is a TCP port mining clients connect to.
type StratumTarget struct {
	ID            TargetID `json:"id" mapstructure:"id"`
	Name          string   `json:"name" mapstructure:"name"`
	Host          string   `json:"host" mapstructure:"host"`
	Port          int      `json:"port" mapstructure:"port"`
	RemediationID string   `json:"remediation_id" mapstructure:"remediation_id"`
}

func (s StratumTarget) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type Kind string

const (
	KindWeb     Kind = "web"
	KindStratum Kind = "stratum"
)

type Verdict string

const (
	Healthy        Verdict = "healthy"
	Unreachable    Verdict = "unreachable"
	BelowThreshold Verdict = "below_threshold"
)

// PoolVerdict is the hashrate check of one PoolSpec under a reachable web target.
type PoolVerdict struct {
	Pool     PoolSpec `json:"pool"`
	Verdict  Verdict  `json:"verdict"`
	Observed float64  `json:"observed"`
}

// TargetReport is what one cycle learned about one target.
type TargetReport struct {
	Kind      Kind          `json:"kind"`
	ID        TargetID      `json:"id"`
	Name      string        `json:"name"`
	Address   string        `json:"address"`
	Verdict   Verdict       `json:"verdict"`
	Reason    string        `json:"reason,omitempty"`
	Attempts  int           `json:"attempts"`
	Pools     []PoolVerdict `json:"pools,omitempty"`
	Diagnosis string        `json:"diagnosis,omitempty"`
}

// RemediationAction asks the process manager to restart RemediationID.
type RemediationAction struct {
	RemediationID string   `json:"remediation_id"`
	Reason        Verdict  `json:"reason"`
	TargetID      TargetID `json:"target_id"`
	Coin          string   `json:"coin,omitempty"`
}

// CycleResult aggregates every report and action of one cycle.
type CycleResult struct {
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     time.Time           `json:"finished_at"`
	Reports        []TargetReport      `json:"reports"`
	Actions        []RemediationAction `json:"actions"`
	StratumSkipped bool                `json:"stratum_skipped"`
	Aborted        bool                `json:"aborted,omitempty"` // context ended mid-cycle
}

// Healthy reports whether the cycle checked every target and found nothing
// to remediate.
func (c CycleResult) Healthy() bool {
	if c.Aborted || len(c.Actions) > 0 {
		return false
	}
	for _, r := range c.Reports {
		if r.Verdict != Healthy {
			return false
		}
	}
	return true
}
