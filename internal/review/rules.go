package review

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/revgate/internal/config"
)

// Category groups rules. Every category except skip and structural marks a
// change as critical when one of its rules fires.
type Category string

const (
	CategorySkip        Category = "skip"
	CategorySecurity    Category = "security"
	CategoryDataAccess  Category = "data-access"
	CategoryConcurrency Category = "concurrency"
	CategoryResource    Category = "resource-lifecycle"
	CategoryCustom      Category = "custom"
	CategoryStructural  Category = "structural"
)

// Critical reports whether a match in this category forces the critical tier.
func (c Category) Critical() bool {
	switch c {
	case CategorySkip, CategoryStructural:
		return false
	default:
		return true
	}
}

// Rule is one compiled (pattern, weight, category) tuple.
type Rule struct {
	ID       string
	Category Category
	Pattern  *regexp.Regexp
	Weight   int
}

// Ruleset is the classifier's complete, ordered input. Scoring rules are
// evaluated in slice order, which is also the order of MatchedRules.
type Ruleset struct {
	Skip           []Rule
	Scoring        []Rule
	SkipLineCutoff int
	SizeThreshold  int
	CriticalScore  int
}

// RulesetFromConfig compiles the configured patterns into a Ruleset.
func RulesetFromConfig(cfg config.Config) (*Ruleset, error) {
	rs := &Ruleset{
		SkipLineCutoff: cfg.SkipLineCutoff,
		SizeThreshold:  cfg.SizeThreshold,
		CriticalScore:  cfg.CriticalScore,
	}

	for i, p := range cfg.SkipPatterns {
		re, err := regexp.Compile(anchorStart(p))
		if err != nil {
			return nil, fmt.Errorf("skip pattern %d %q: %w", i+1, p, err)
		}
		rs.Skip = append(rs.Skip, Rule{
			ID:       fmt.Sprintf("skip-%d", i+1),
			Category: CategorySkip,
			Pattern:  re,
			Weight:   0,
		})
	}

	scoring, err := CompileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	rs.Scoring = scoring

	for i, p := range cfg.CriticalPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("critical pattern %d %q: %w", i+1, p, err)
		}
		rs.Scoring = append(rs.Scoring, Rule{
			ID:       fmt.Sprintf("critical-pattern-%d", i+1),
			Category: CategoryCustom,
			Pattern:  re,
			Weight:   1,
		})
	}

	return rs, nil
}

// CompileRules compiles rule specs in order. A missing weight defaults to 1
// and a missing category to custom.
func CompileRules(specs []config.RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", id, err)
		}
		cat := Category(strings.ToLower(strings.TrimSpace(s.Category)))
		if cat == "" {
			cat = CategoryCustom
		}
		if cat == CategorySkip {
			return nil, fmt.Errorf("rule %s: skip rules belong in skipPatterns", id)
		}
		weight := s.Weight
		if weight <= 0 {
			weight = 1
		}
		rules = append(rules, Rule{ID: id, Category: cat, Pattern: re, Weight: weight})
	}
	return rules, nil
}

// anchorStart makes a skip pattern match from the start of the line only.
func anchorStart(p string) string {
	if strings.HasPrefix(p, "^") {
		return p
	}
	return "^(?:" + p + ")"
}
