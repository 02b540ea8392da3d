package review

import "fmt"

// InconclusivePolicy decides how a critical INCONCLUSIVE verdict counts.
type InconclusivePolicy string

const (
	FailClosed InconclusivePolicy = "failClosed"
	FailOpen   InconclusivePolicy = "failOpen"
)

// ParseInconclusivePolicy validates a configured policy name.
func ParseInconclusivePolicy(s string) (InconclusivePolicy, error) {
	switch InconclusivePolicy(s) {
	case FailClosed, FailOpen:
		return InconclusivePolicy(s), nil
	case "":
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown inconclusive policy %q", s)
	}
}

// Policy maps verdicts to the run outcome. It is the same for every stage.
type Policy struct {
	Inconclusive InconclusivePolicy
}

// Blocks reports whether v alone blocks the run. A REJECT always blocks. An
// INCONCLUSIVE verdict blocks only when critical and the policy is
// fail-closed.
func (p Policy) Blocks(v Verdict) bool {
	switch v.Decision {
	case DecisionReject:
		return true
	case DecisionInconclusive:
		return v.Critical && p.Inconclusive != FailOpen
	default:
		return false
	}
}

// Overall returns BLOCK when any verdict blocks, ALLOW otherwise.
func (p Policy) Overall(verdicts []Verdict) Overall {
	for _, v := range verdicts {
		if p.Blocks(v) {
			return OverallBlock
		}
	}
	return OverallAllow
}

// ExitCode maps a finalized report to the process status: 0 allow, 1 block.
// An interrupted run always blocks.
func (p Policy) ExitCode(r *RunReport) int {
	if r.OverallDecision == OverallBlock || r.Interrupted {
		return 1
	}
	return 0
}
