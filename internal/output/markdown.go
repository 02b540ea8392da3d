package output

import (
	"io"
	"strings"

	"github.com/dshills/revgate/internal/review"
)

// MarkdownWriter renders the report file kept under the report directory.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.RunReport) error {
	ew := &errWriter{w: w}

	if report.Stage == review.StagePrePush {
		ew.println("# Batch Code Review (Pre-Push)\n")
	} else {
		ew.println("# Pre-commit Code Review\n")
	}
	ew.printf("**Run**: %s\n", report.RunID)
	ew.printf("**Timestamp**: %s\n", report.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	ew.printf("**Decision**: %s\n", report.OverallDecision)
	ew.printf("**Reviews**: %d\n", len(report.Verdicts))
	if report.Interrupted {
		ew.println("**Interrupted**: yes")
	}
	ew.println("")

	for _, v := range report.Verdicts {
		if len(v.SubjectPaths) == 1 {
			ew.printf("## File: %s\n\n", v.SubjectPaths[0])
		} else {
			ew.printf("## Batch (%d files)\n\n", len(v.SubjectPaths))
			for _, p := range v.SubjectPaths {
				ew.printf("- %s\n", p)
			}
			ew.println("")
		}
		ew.printf("**Critical**: %s  \n", yesNo(v.Critical))
		ew.printf("**Decision**: %s", v.Decision)
		if v.Truncated {
			ew.printf(" (diff truncated)")
		}
		if v.Cached {
			ew.printf(" (cached)")
		}
		ew.println("\n")
		ew.println(strings.TrimSpace(v.Rationale))
		ew.println("\n---\n")
	}

	if len(report.Skipped) > 0 {
		ew.println("## Skipped\n")
		for _, s := range report.Skipped {
			ew.printf("- `%s`: %s\n", s.Path, s.Reason)
		}
		ew.println("")
	}
	if len(report.Unavailable) > 0 {
		ew.println("## No diff available\n")
		for _, p := range report.Unavailable {
			ew.printf("- `%s`\n", p)
		}
		ew.println("")
	}
	return ew.err
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
