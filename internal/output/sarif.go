package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/revgate/internal/review"
)

const (
	ruleRejected     = "revgate/rejected"
	ruleInconclusive = "revgate/inconclusive"
)

// SARIFWriter outputs non-approving verdicts in SARIF v2.1.0 format, one
// file-level result per reviewed path.
type SARIFWriter struct {
	Version string
}

func (s *SARIFWriter) Write(w io.Writer, report *review.RunReport) error {
	data, err := json.MarshalIndent(buildSARIF(report, s.Version), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool         `json:"tool"`
	Results    []sarifResult     `json:"results"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

func buildSARIF(report *review.RunReport, version string) sarifLog {
	results := []sarifResult{}
	for _, v := range report.Verdicts {
		ruleID, level := sarifRuleFor(v)
		if ruleID == "" {
			continue
		}
		locs := make([]sarifLocation, 0, len(v.SubjectPaths))
		for _, p := range v.SubjectPaths {
			locs = append(locs, sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{ArtifactLocation: sarifArtifactLocation{URI: p}},
			})
		}
		results = append(results, sarifResult{
			RuleID:    ruleID,
			Level:     level,
			Message:   sarifMessage{Text: strings.TrimSpace(v.Rationale)},
			Locations: locs,
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    "revgate",
				Version: version,
				Rules: []sarifRule{
					{ID: ruleRejected, ShortDescription: sarifMessage{Text: "Review rejected the change"}, DefaultConfig: sarifDefaultConfig{Level: "error"}},
					{ID: ruleInconclusive, ShortDescription: sarifMessage{Text: "Review could not reach a decision"}, DefaultConfig: sarifDefaultConfig{Level: "warning"}},
				},
			}},
			Results: results,
			Properties: map[string]string{
				"runId":    report.RunID,
				"stage":    string(report.Stage),
				"decision": string(report.OverallDecision),
			},
		}},
	}
}

// sarifRuleFor maps a verdict to its rule and level. Approvals produce no
// result. A critical inconclusive review is reported as an error.
func sarifRuleFor(v review.Verdict) (ruleID, level string) {
	switch v.Decision {
	case review.DecisionReject:
		return ruleRejected, "error"
	case review.DecisionInconclusive:
		if v.Critical {
			return ruleInconclusive, "error"
		}
		return ruleInconclusive, "warning"
	default:
		return "", ""
	}
}
