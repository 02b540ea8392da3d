package review

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunReport is the ordered record of one hook invocation. Verdicts are
// appended in submission order until Finalize fixes OverallDecision; after
// that the report is read-only.
type RunReport struct {
	RunID           string        `json:"runId"`
	Timestamp       time.Time     `json:"timestamp"`
	Stage           Stage         `json:"stage"`
	Verdicts        []Verdict     `json:"verdicts"`
	Skipped         []SkippedUnit `json:"skipped,omitempty"`
	Unavailable     []string      `json:"unavailable,omitempty"`
	OverallDecision Overall       `json:"overallDecision"`
	Interrupted     bool          `json:"interrupted,omitempty"`
	Duration        time.Duration `json:"durationNs"`

	mu        sync.Mutex
	finalized bool
}

// NewRunReport starts an empty report for stage.
func NewRunReport(stage Stage, now time.Time) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Timestamp: now,
		Stage:     stage,
		Verdicts:  []Verdict{},
	}
}

// Append adds v at the end of the verdict list.
func (r *RunReport) Append(v Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("append %v: %w", v.SubjectPaths, ErrReportFinalized)
	}
	r.Verdicts = append(r.Verdicts, v)
	return nil
}

// Skip records a unit the classifier kept away from the backend.
func (r *RunReport) Skip(path, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("skip %s: %w", path, ErrReportFinalized)
	}
	r.Skipped = append(r.Skipped, SkippedUnit{Path: path, Reason: reason})
	return nil
}

// MarkUnavailable records a path the change source could not produce.
func (r *RunReport) MarkUnavailable(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("unavailable %s: %w", path, ErrReportFinalized)
	}
	r.Unavailable = append(r.Unavailable, path)
	return nil
}

// Finalize computes OverallDecision with p. A second call is a contract
// violation and returns ErrReportFinalized without changing the report.
func (r *RunReport) Finalize(p Policy, finished time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("run %s: %w", r.RunID, ErrReportFinalized)
	}
	r.OverallDecision = p.Overall(r.Verdicts)
	r.Duration = finished.Sub(r.Timestamp)
	r.finalized = true
	return nil
}

// Finalized reports whether Finalize has run.
func (r *RunReport) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// PathDecisions fans every verdict out to its subject paths, preserving
// report order.
func (r *RunReport) PathDecisions() []PathDecision {
	var out []PathDecision
	for _, v := range r.Verdicts {
		for _, p := range v.SubjectPaths {
			out = append(out, PathDecision{Path: p, Decision: v.Decision, Critical: v.Critical})
		}
	}
	return out
}

// Blocking returns the verdicts that caused a BLOCK under p.
func (r *RunReport) Blocking(p Policy) []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if p.Blocks(v) {
			out = append(out, v)
		}
	}
	return out
}

// Counts tallies verdict decisions.
func (r *RunReport) Counts() map[Decision]int {
	counts := map[Decision]int{}
	for _, v := range r.Verdicts {
		counts[v.Decision]++
	}
	return counts
}

// Aggregate builds a finalized report from verdicts already in submission
// order.
func Aggregate(stage Stage, at time.Time, verdicts []Verdict, p Policy) (*RunReport, error) {
	r := NewRunReport(stage, at)
	for _, v := range verdicts {
		if err := r.Append(v); err != nil {
			return nil, err
		}
	}
	if err := r.Finalize(p, at); err != nil {
		return nil, err
	}
	return r, nil
}
