package review

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const systemPrompt = `You are a strict, expert code reviewer acting as a commit gate. You receive one file diff, or a batch of file diffs, and decide whether the change may proceed.

Rules:
1. Only review the changes shown in the diff. Do not comment on unchanged code.
2. Reject only for real problems: bugs, security issues, data loss, broken concurrency, leaked resources. Style alone is never a reason to reject.
3. When the diff is marked as truncated, judge only what is visible and say so.
4. Be concise. List each problem with the file and the line it appears on.

End your answer with exactly one line of the form:
DECISION: APPROVE
or
DECISION: REJECT`

const criticalAddendum = `

This change was flagged as CRITICAL. Review security, data access, concurrency and resource handling with extra care.`

// SystemPrompt returns the reviewer instructions. Critical reviews get a
// stricter addendum.
func SystemPrompt(critical bool) string {
	if critical {
		return systemPrompt + criticalAddendum
	}
	return systemPrompt
}

// truncate bounds s to limit characters (runes). It reports whether
// anything was cut.
func truncate(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	if limit <= 0 {
		return "", true
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

func chars(s string) int { return utf8.RuneCountInString(s) }

// BuildPayload renders the request body for a single unit. The diff is
// bounded by maxChars and a NOTE line marks any truncation.
func BuildPayload(u ChangeUnit, c Classification, maxChars int) (string, bool) {
	var b strings.Builder

	fmt.Fprintf(&b, "**File**: %s\n", u.Path)
	if langs := detectLanguages([]string{u.Path}); len(langs) > 0 {
		fmt.Fprintf(&b, "**Language**: %s\n", strings.Join(langs, ", "))
	}
	writeClassification(&b, c)
	fmt.Fprintf(&b, "**Changes**: +%d -%d\n", u.AddedCount, u.RemovedCount)

	diff, truncated := truncate(u.DiffText, maxChars)
	if truncated {
		b.WriteString(truncationNote(chars(diff), chars(u.DiffText)))
	}

	b.WriteString("\n```diff\n")
	b.WriteString(diff)
	if !strings.HasSuffix(diff, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	return b.String(), truncated
}

// BuildBatchPayload renders one request covering every unit in batch. The
// whole payload is bounded by maxChars characters; sections that do not fit are
// shortened and the last ones may be reduced to their header.
func BuildBatchPayload(batch Batch, maxChars int) (string, bool) {
	var head strings.Builder
	fmt.Fprintf(&head, "**Batch Review** (%d files)\n", len(batch.Items))
	fmt.Fprintf(&head, "**Files**: %s\n", strings.Join(batch.Paths(), ", "))
	if langs := detectLanguages(batch.Paths()); len(langs) > 0 {
		fmt.Fprintf(&head, "**Languages**: %s\n", strings.Join(langs, ", "))
	}
	if batch.Critical() {
		head.WriteString("**Classification**: CRITICAL (at least one file)\n")
	}

	var body strings.Builder
	truncated := false
	for i, it := range batch.Items {
		remaining := maxChars - chars(head.String()) - chars(body.String())
		// Share what is left evenly among the sections still to write.
		share := remaining / (len(batch.Items) - i)

		var sec strings.Builder
		fmt.Fprintf(&sec, "\n### %s\n", it.Unit.Path)
		writeClassification(&sec, it.Class)
		budget := share - chars(sec.String()) - len("```diff\n\n```\n")
		diff, cut := truncate(it.Unit.DiffText, budget)
		if cut {
			truncated = true
			total := chars(it.Unit.DiffText)
			diff, _ = truncate(it.Unit.DiffText, budget-chars(truncationNote(total, total)))
			sec.WriteString(truncationNote(chars(diff), total))
		}
		sec.WriteString("```diff\n")
		sec.WriteString(diff)
		if !strings.HasSuffix(diff, "\n") {
			sec.WriteString("\n")
		}
		sec.WriteString("```\n")
		body.WriteString(sec.String())
	}

	return head.String() + body.String(), truncated
}

func truncationNote(kept, total int) string {
	return fmt.Sprintf("NOTE: diff truncated to %d of %d characters; review covers partial context.\n", kept, total)
}

func writeClassification(b *strings.Builder, c Classification) {
	if c.Level == "" {
		return
	}
	fmt.Fprintf(b, "**Classification**: %s (score %d", c.Level, c.Score)
	if len(c.MatchedRules) > 0 {
		fmt.Fprintf(b, "; rules: %s", strings.Join(c.MatchedRules, ", "))
	}
	if c.SizeEscalated {
		b.WriteString("; large change")
	}
	b.WriteString(")\n")
}

func detectLanguages(files []string) []string {
	langMap := map[string]string{
		".go":    "Go",
		".py":    "Python",
		".js":    "JavaScript",
		".ts":    "TypeScript",
		".tsx":   "TypeScript/React",
		".jsx":   "JavaScript/React",
		".rs":    "Rust",
		".java":  "Java",
		".rb":    "Ruby",
		".cpp":   "C++",
		".c":     "C",
		".h":     "C/C++",
		".cs":    "C#",
		".php":   "PHP",
		".swift": "Swift",
		".kt":    "Kotlin",
		".sql":   "SQL",
		".sh":    "Shell",
	}

	seen := make(map[string]bool)
	var langs []string
	for _, f := range files {
		i := strings.LastIndexByte(f, '.')
		if i < 0 {
			continue
		}
		if lang, ok := langMap[f[i:]]; ok && !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	return langs
}
