package output

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/revgate/internal/review"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *review.RunReport) error
}

// GetWriter returns a writer for the specified format. Text output marks
// blocking verdicts according to policy.
func GetWriter(format string, policy review.Policy) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{Policy: policy}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or stdout when outPath is empty.
func WriteReport(report *review.RunReport, format, outPath string, policy review.Policy) error {
	writer, err := GetWriter(format, policy)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, report)
}

// FileSink persists each run as a timestamped file under Dir:
// review_<ts> for pre-commit and batch_review_<ts> for pre-push.
type FileSink struct {
	Dir    string
	Format string
}

// Persist writes r and returns the file path. Reports with no verdicts are
// not written and yield an empty path.
func (s FileSink) Persist(r *review.RunReport) (string, error) {
	if s.Format == "none" || len(r.Verdicts) == 0 {
		return "", nil
	}
	writer, err := GetWriter(s.Format, review.Policy{})
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	f, err := createUnique(s.Dir, FileName(r.Stage, r.Timestamp, s.Format))
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	path := f.Name()
	if err := writer.Write(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing report file: %w", err)
	}
	return path, nil
}

// createUnique creates name in dir without replacing an existing file. A
// name already taken by an earlier run in the same second gets a _2, _3, ...
// suffix before the extension.
func createUnique(dir, name string) (*os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n <= 100; n++ {
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free report name for %s in %s", name, dir)
}

// FileName returns the report file name for a run.
func FileName(stage review.Stage, at time.Time, format string) string {
	prefix := "review"
	if stage == review.StagePrePush {
		prefix = "batch_review"
	}
	ext := ".md"
	switch format {
	case "json":
		ext = ".json"
	case "sarif":
		ext = ".sarif"
	}
	return fmt.Sprintf("%s_%s%s", prefix, at.Format("20060102_150405"), ext)
}
