package review

import (
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// diffLine is one added or removed line with its +/- marker stripped.
type diffLine struct {
	added bool
	text  string
}

// meaningfulLines returns the added and removed lines of a unified diff.
// Context lines and file headers are dropped. Well-formed git diffs are
// parsed with gitdiff; anything it cannot place in a fragment (bare hunks,
// truncated text) falls back to a line scan.
func meaningfulLines(diffText string) []diffLine {
	if strings.TrimSpace(diffText) == "" {
		return nil
	}

	files, _, err := gitdiff.Parse(strings.NewReader(diffText))
	if err == nil && hasFragments(files) {
		var lines []diffLine
		for _, f := range files {
			for _, frag := range f.TextFragments {
				for _, l := range frag.Lines {
					switch l.Op {
					case gitdiff.OpAdd:
						lines = append(lines, diffLine{added: true, text: trimEOL(l.Line)})
					case gitdiff.OpDelete:
						lines = append(lines, diffLine{added: false, text: trimEOL(l.Line)})
					}
				}
			}
		}
		return lines
	}

	return scanLines(diffText)
}

func hasFragments(files []*gitdiff.File) bool {
	for _, f := range files {
		if len(f.TextFragments) > 0 {
			return true
		}
	}
	return false
}

func scanLines(diffText string) []diffLine {
	var lines []diffLine
	for _, line := range strings.Split(diffText, "\n") {
		line = trimEOL(line)
		if strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "--- ") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			lines = append(lines, diffLine{added: true, text: line[1:]})
		case strings.HasPrefix(line, "-"):
			lines = append(lines, diffLine{added: false, text: line[1:]})
		}
	}
	return lines
}

func trimEOL(s string) string {
	return strings.TrimRight(s, "\r\n")
}
