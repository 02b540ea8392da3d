package review

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Keywords are the locale-configurable signal words searched for in
// free-form backend answers. The free-text scan is case-sensitive; the value
// of a DECISION line is compared case-insensitively.
type Keywords struct {
	Reject  []string
	Approve []string
}

// DefaultKeywords returns the built-in English and Ukrainian signals.
func DefaultKeywords() Keywords {
	return Keywords{
		Reject:  []string{"REJECT", "ВІДХИЛИТИ"},
		Approve: []string{"APPROVE", "ACCEPT", "ПРИЙНЯТИ"},
	}
}

var (
	decisionLineRe = regexp.MustCompile(`(?im)^\s*\**\s*decision\s*\**\s*:\s*(.+?)\s*$`)
	jsonBlockRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

type structuredVerdict struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale"`
	Summary   string `json:"summary"`
}

// NormalizeResponse maps raw backend text to a Decision and the rationale to
// keep in the report. It never fails: blank text, or an explicit decision
// (JSON field or DECISION line) with an unknown value, yields INCONCLUSIVE.
func NormalizeResponse(text string, kw Keywords) (Decision, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return DecisionInconclusive, ""
	}

	if sv, ok := parseStructured(trimmed); ok {
		d := decisionFromWord(sv.Decision, kw)
		rationale := sv.Rationale
		if rationale == "" {
			rationale = sv.Summary
		}
		if rationale == "" {
			rationale = trimmed
		}
		return d, rationale
	}

	if m := decisionLineRe.FindAllStringSubmatch(trimmed, -1); len(m) > 0 {
		return lineDecision(m[len(m)-1][1], kw), trimmed
	}

	if containsAny(trimmed, kw.Reject) {
		return DecisionReject, trimmed
	}
	return DecisionApprove, trimmed
}

// parseStructured recognises a JSON object answer, fenced or bare, that has
// a decision field. Near-JSON is repaired first.
func parseStructured(text string) (structuredVerdict, bool) {
	candidate := ""
	if m := jsonBlockRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if strings.HasPrefix(text, "{") {
		candidate = text
	}
	if candidate == "" {
		return structuredVerdict{}, false
	}

	var sv structuredVerdict
	if err := json.Unmarshal([]byte(candidate), &sv); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(candidate)
		if rerr != nil {
			return structuredVerdict{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &sv); err != nil {
			return structuredVerdict{}, false
		}
	}
	if strings.TrimSpace(sv.Decision) == "" {
		return structuredVerdict{}, false
	}
	return sv, true
}

func decisionFromWord(word string, kw Keywords) Decision {
	w := strings.TrimSpace(word)
	switch {
	case containsAny(w, kw.Reject):
		return DecisionReject
	case containsAny(w, kw.Approve):
		return DecisionApprove
	}
	// The canonical enum spellings are always understood in a structured
	// field, whatever the locale keywords.
	switch Decision(strings.ToUpper(w)) {
	case DecisionReject:
		return DecisionReject
	case DecisionApprove:
		return DecisionApprove
	}
	return DecisionInconclusive
}

// lineDecision reads the value of a DECISION line. Its first word decides,
// compared upper-cased against the keywords as prefixes so "Reject - ..."
// and "rejected" both count.
func lineDecision(value string, kw Keywords) Decision {
	fields := strings.Fields(strings.ToUpper(strings.TrimLeft(value, "*_` ")))
	if len(fields) == 0 {
		return DecisionInconclusive
	}
	word := strings.Trim(fields[0], "*_`'\".,;:!?()[]-")
	switch {
	case word == "":
		return DecisionInconclusive
	case hasWordPrefix(word, kw.Reject), strings.HasPrefix(word, string(DecisionReject)):
		return DecisionReject
	case hasWordPrefix(word, kw.Approve), strings.HasPrefix(word, string(DecisionApprove)):
		return DecisionApprove
	}
	return DecisionInconclusive
}

func hasWordPrefix(word string, keywords []string) bool {
	for _, k := range keywords {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" && strings.HasPrefix(word, k) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
