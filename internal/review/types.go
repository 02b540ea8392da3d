package review

import (
	"fmt"
	"time"
)

// Stage is the version-control lifecycle stage that triggered a run.
type Stage string

const (
	StagePreCommit Stage = "pre-commit"
	StagePrePush   Stage = "pre-push"
)

// ParseStage converts a hook name into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StagePreCommit, StagePrePush:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("unknown stage %q (want %s or %s)", s, StagePreCommit, StagePrePush)
	}
}

// Level is the review tier assigned by the classifier.
type Level string

const (
	LevelSkip     Level = "SKIP"
	LevelStandard Level = "STANDARD"
	LevelCritical Level = "CRITICAL"
)

// Decision is the normalized outcome of one backend review.
type Decision string

const (
	DecisionApprove      Decision = "APPROVE"
	DecisionReject       Decision = "REJECT"
	DecisionInconclusive Decision = "INCONCLUSIVE"
)

// Overall is the run-level gate result.
type Overall string

const (
	OverallAllow Overall = "ALLOW"
	OverallBlock Overall = "BLOCK"
)

// ChangeUnit is one file's captured diff for a single run. It is a value
// type: the diff text never changes after capture, and fetching the same
// path again produces a new ChangeUnit.
type ChangeUnit struct {
	Path         string `json:"path"`
	Stage        Stage  `json:"stage"`
	DiffText     string `json:"-"`
	AddedCount   int    `json:"added"`
	RemovedCount int    `json:"removed"`
}

// NewChangeUnit captures diffText for path and derives the line counts.
func NewChangeUnit(path string, stage Stage, diffText string) ChangeUnit {
	var added, removed int
	for _, l := range meaningfulLines(diffText) {
		if l.added {
			added++
		} else {
			removed++
		}
	}
	return ChangeUnit{
		Path:         path,
		Stage:        stage,
		DiffText:     diffText,
		AddedCount:   added,
		RemovedCount: removed,
	}
}

// ChangedLines returns AddedCount + RemovedCount.
func (u ChangeUnit) ChangedLines() int {
	return u.AddedCount + u.RemovedCount
}

// Classification is the classifier's scoring of a ChangeUnit.
type Classification struct {
	Level         Level    `json:"level"`
	Score         int      `json:"score"`
	MatchedRules  []string `json:"matchedRules,omitempty"`
	SizeEscalated bool     `json:"sizeEscalated,omitempty"`
}

// Verdict is the result of one backend invocation for a unit or a batch.
type Verdict struct {
	SubjectPaths []string      `json:"subjectPaths"`
	Decision     Decision      `json:"decision"`
	Rationale    string        `json:"rationale"`
	Critical     bool          `json:"critical"`
	Truncated    bool          `json:"truncated,omitempty"`
	Cached       bool          `json:"cached,omitempty"`
	Duration     time.Duration `json:"durationNs"`
}

// SkippedUnit records a unit that never reached the backend.
type SkippedUnit struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// PathDecision is a verdict fanned out to a single path.
type PathDecision struct {
	Path     string   `json:"path"`
	Decision Decision `json:"decision"`
	Critical bool     `json:"critical"`
}
