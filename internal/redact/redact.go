package redact

import (
	"regexp"

	"github.com/dshills/revgate/internal/pathglob"
)

const placeholder = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|pwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// user:password@ inside database and broker URLs
	regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp|sqlserver)://[^:/\s"']+:[^@\s"']+@`),
	// ADO.NET style connection strings
	regexp.MustCompile(`(?i);\s*(password|pwd)\s*=\s*[^;"'\s]{4,}`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Secrets replaces detected secrets in text with [REDACTED] and returns the
// number of replacements.
func Secrets(text string) (string, int) {
	result := text
	count := 0
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(string) string {
			count++
			return placeholder
		})
	}
	return result, count
}

// ShouldRedactPath reports whether path matches any redaction pattern. It
// uses the same matcher as the include and exclude lists.
func ShouldRedactPath(path string, patterns []string) bool {
	return pathglob.MatchAny(path, patterns)
}

// Redactor scrubs diff text before it leaves the machine.
type Redactor struct {
	secrets bool
	paths   []string
}

// New returns a Redactor. With secrets false only path policy applies.
func New(secrets bool, paths []string) *Redactor {
	return &Redactor{secrets: secrets, paths: paths}
}

// Diff returns diffText with secrets removed. A path that matches the path
// policy has its whole diff withheld. The int is the number of redactions.
func (r *Redactor) Diff(path, diffText string) (string, int) {
	if r == nil {
		return diffText, 0
	}
	if ShouldRedactPath(path, r.paths) {
		return placeholder + " (diff withheld by path policy)\n", 1
	}
	if !r.secrets {
		return diffText, 0
	}
	return Secrets(diffText)
}
