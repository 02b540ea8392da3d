package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revgate/internal/review"
)

var reportTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// sampleReport is a finalized pre-commit run with one rejection, one
// approval, one skip and one unavailable path.
func sampleReport(t *testing.T) *review.RunReport {
	t.Helper()
	r := review.NewRunReport(review.StagePreCommit, reportTime)
	require.NoError(t, r.Append(review.Verdict{
		SubjectPaths: []string{"src/Login.java"},
		Decision:     review.DecisionReject,
		Critical:     true,
		Rationale:    "Query concatenates user input.\nDECISION: REJECT",
	}))
	require.NoError(t, r.Append(review.Verdict{
		SubjectPaths: []string{"src/util.go"},
		Decision:     review.DecisionApprove,
		Rationale:    "DECISION: APPROVE",
		Cached:       true,
	}))
	require.NoError(t, r.Skip("go.sum", "only excluded lines"))
	require.NoError(t, r.MarkUnavailable("deleted.go"))
	require.NoError(t, r.Finalize(review.Policy{}, reportTime.Add(1234*time.Millisecond)))
	return r
}

func TestTextWriter_Summary(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, (&TextWriter{}).Write(&buf, sampleReport(t)))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "revgate pre-commit: BLOCK\n"))
	for _, want := range []string{"src/Login.java", "src/util.go", "go.sum", "deleted.go", "only excluded lines", "no diff", "4 FILES", "1 REJECTED"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "Blocked by 1 review(s):")
	assert.Contains(t, out, "src/Login.java  [REJECT]")
	assert.Contains(t, out, "Query concatenates user input.")
	assert.Contains(t, out, "Completed in 1.234s")
}

func TestTextWriter_PolicyDecidesBlockingList(t *testing.T) {
	r := review.NewRunReport(review.StagePrePush, reportTime)
	require.NoError(t, r.Append(review.Verdict{
		SubjectPaths: []string{"a.go", "b.go"},
		Decision:     review.DecisionInconclusive,
		Critical:     true,
		Rationale:    "review backend timed out",
	}))
	require.NoError(t, r.Finalize(review.Policy{Inconclusive: review.FailOpen}, reportTime))

	var open, closed bytes.Buffer
	require.NoError(t, (&TextWriter{Policy: review.Policy{Inconclusive: review.FailOpen}}).Write(&open, r))
	require.NoError(t, (&TextWriter{Policy: review.Policy{Inconclusive: review.FailClosed}}).Write(&closed, r))

	assert.NotContains(t, open.String(), "Blocked by")
	assert.Contains(t, closed.String(), "a.go, b.go  [INCONCLUSIVE]")
}

func TestTextWriter_NothingToReview(t *testing.T) {
	r := review.NewRunReport(review.StagePreCommit, reportTime)
	r.Interrupted = true
	require.NoError(t, r.Finalize(review.Policy{}, reportTime))
	var buf bytes.Buffer

	require.NoError(t, (&TextWriter{}).Write(&buf, r))

	assert.Contains(t, buf.String(), "Run interrupted")
	assert.Contains(t, buf.String(), "Nothing to review.")
}

func TestWrapText(t *testing.T) {
	lines := wrapText("short\n"+strings.Repeat("word ", 30), 20)

	assert.Equal(t, "short", lines[0])
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), 20)
	}
}

func TestFirstLines(t *testing.T) {
	assert.Equal(t, "a\nb\n...", firstLines("a\nb\nc\nd", 2))
	assert.Equal(t, "a\nb", firstLines("  a\nb\n", 5))
}
