package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/revgate/internal/review"
)

// JSONWriter outputs the full report as JSON.
type JSONWriter struct{}

type jsonReport struct {
	*review.RunReport
	Paths []review.PathDecision `json:"paths"`
}

func (j *JSONWriter) Write(w io.Writer, report *review.RunReport) error {
	data, err := json.MarshalIndent(jsonReport{RunReport: report, Paths: report.PathDecisions()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
