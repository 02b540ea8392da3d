package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dshills/revgate/internal/review"
)

// TextWriter prints the console summary: one table row per path, then the
// rationale of every blocking verdict.
type TextWriter struct {
	Policy review.Policy
}

func (t *TextWriter) Write(w io.Writer, report *review.RunReport) error {
	ew := &errWriter{w: w}

	ew.printf("revgate %s: %s\n", report.Stage, report.OverallDecision)
	if report.Interrupted {
		ew.println("Run interrupted; only completed reviews are listed.")
	}

	rows := pathRows(report)
	if len(rows) == 0 {
		ew.println("Nothing to review.")
		return ew.err
	}

	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Path", "Tier", "Result"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER})
	for _, r := range rows {
		table.Append(r)
	}
	counts := report.Counts()
	table.SetFooter([]string{
		fmt.Sprintf("%d files", len(rows)),
		"",
		fmt.Sprintf("%d rejected", counts[review.DecisionReject]),
	})
	table.Render()
	ew.printf("%s", buf.String())

	blocking := report.Blocking(t.Policy)
	if len(blocking) > 0 {
		ew.printf("\nBlocked by %d review(s):\n", len(blocking))
		for _, v := range blocking {
			ew.printf("\n  %s  [%s]\n", strings.Join(v.SubjectPaths, ", "), v.Decision)
			for _, line := range wrapText(firstLines(v.Rationale, 12), 74) {
				ew.printf("    %s\n", line)
			}
		}
	}

	ew.printf("\nCompleted in %s\n", report.Duration.Round(time.Millisecond))
	return ew.err
}

func pathRows(report *review.RunReport) [][]string {
	var rows [][]string
	for _, d := range report.PathDecisions() {
		tier := string(review.LevelStandard)
		if d.Critical {
			tier = string(review.LevelCritical)
		}
		rows = append(rows, []string{d.Path, tier, string(d.Decision)})
	}
	for _, s := range report.Skipped {
		rows = append(rows, []string{s.Path, string(review.LevelSkip), s.Reason})
	}
	for _, p := range report.Unavailable {
		rows = append(rows, []string{p, "-", "no diff"})
	}
	return rows
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

// wrapText wraps each paragraph of text at width, keeping line breaks.
func wrapText(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		if len(para) <= width {
			lines = append(lines, para)
			continue
		}
		var current strings.Builder
		for _, word := range strings.Fields(para) {
			if current.Len()+len(word)+1 > width && current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(word)
		}
		if current.Len() > 0 {
			lines = append(lines, current.String())
		}
	}
	return lines
}
