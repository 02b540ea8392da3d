package review

import "strings"

// Classifier scores ChangeUnits against a fixed Ruleset.
type Classifier struct {
	rules *Ruleset
}

// NewClassifier returns a Classifier over rs.
func NewClassifier(rs *Ruleset) *Classifier {
	return &Classifier{rules: rs}
}

// Classify scores u. See the package-level Classify.
func (c *Classifier) Classify(u ChangeUnit) Classification {
	return Classify(u, c.rules)
}

// Classify decides whether u needs review and at which tier. It performs no
// I/O and depends only on its arguments.
//
// Small changes whose every added or removed line matches an exclusion rule
// are skipped. Otherwise the unit is critical when a critical-category rule
// fires, the accumulated score reaches the critical threshold, or the change
// exceeds the size threshold.
func Classify(u ChangeUnit, rs *Ruleset) Classification {
	lines := meaningfulLines(u.DiffText)
	if len(lines) == 0 {
		return Classification{Level: LevelSkip}
	}
	if len(lines) < rs.SkipLineCutoff && allExcluded(lines, rs.Skip) {
		return Classification{Level: LevelSkip}
	}

	var (
		score    int
		critical bool
		matched  []string
	)
	for _, r := range rs.Scoring {
		fired := false
		for _, l := range lines {
			if r.Pattern.MatchString(l.text) {
				score += r.Weight
				fired = true
			}
		}
		if !fired {
			continue
		}
		matched = append(matched, r.ID)
		if r.Category.Critical() {
			critical = true
		}
	}

	if rs.CriticalScore > 0 && score >= rs.CriticalScore {
		critical = true
	}
	escalated := u.ChangedLines() > rs.SizeThreshold

	level := LevelStandard
	if critical || escalated {
		level = LevelCritical
	}
	return Classification{
		Level:         level,
		Score:         score,
		MatchedRules:  matched,
		SizeEscalated: escalated,
	}
}

func allExcluded(lines []diffLine, skip []Rule) bool {
	if len(skip) == 0 {
		return false
	}
	for _, l := range lines {
		content := strings.TrimSpace(l.text)
		excluded := false
		for _, r := range skip {
			if r.Pattern.MatchString(content) {
				excluded = true
				break
			}
		}
		if !excluded {
			return false
		}
	}
	return true
}
