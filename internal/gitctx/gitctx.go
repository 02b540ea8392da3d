package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/revgate/internal/pathglob"
	"github.com/dshills/revgate/internal/review"
)

// emptyTree is git's well-known empty tree object, used as the push base
// for a repository whose first commit is being pushed.
const emptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Options controls how diffs are gathered.
type Options struct {
	// PushBase is the revision pre-push diffs are taken against, through
	// its merge-base with HEAD. When it does not resolve, HEAD~1 and then
	// the empty tree are tried.
	PushBase string
	// FallbackToFileContent presents a file with no staged diff as a new
	// file built from its working-tree content.
	FallbackToFileContent bool
	ContextLines          int
}

// Source is a review.ChangeSource over a git working tree. It is safe for
// concurrent use.
type Source struct {
	dir  string
	opts Options

	baseOnce sync.Once
	base     string
	baseErr  error
}

// New returns a Source rooted at dir.
func New(dir string, opts Options) *Source {
	return &Source{dir: dir, opts: opts}
}

var _ review.ChangeSource = (*Source)(nil)

// Fetch captures the diff of path for stage: the staged diff at pre-commit,
// and the push base to HEAD diff at pre-push. Any failure, including an
// empty diff, wraps review.ErrSourceUnavailable.
func (s *Source) Fetch(ctx context.Context, path string, stage review.Stage) (review.ChangeUnit, error) {
	var (
		diff string
		err  error
	)
	switch stage {
	case review.StagePreCommit:
		diff, err = s.git(ctx, append([]string{"diff", "--cached"}, s.diffArgs(path)...)...)
	case review.StagePrePush:
		base, berr := s.pushBase(ctx)
		if berr != nil {
			return review.ChangeUnit{}, fmt.Errorf("%s: %w: %v", path, review.ErrSourceUnavailable, berr)
		}
		diff, err = s.git(ctx, append([]string{"diff", base, "HEAD"}, s.diffArgs(path)...)...)
	default:
		return review.ChangeUnit{}, fmt.Errorf("%s: %w: unknown stage %q", path, review.ErrSourceUnavailable, stage)
	}
	if err != nil {
		return review.ChangeUnit{}, fmt.Errorf("%s: %w: %v", path, review.ErrSourceUnavailable, err)
	}

	if strings.TrimSpace(diff) == "" && s.opts.FallbackToFileContent {
		diff, err = s.contentDiff(path)
		if err != nil {
			return review.ChangeUnit{}, fmt.Errorf("%s: %w: %v", path, review.ErrSourceUnavailable, err)
		}
	}
	if strings.TrimSpace(diff) == "" {
		return review.ChangeUnit{}, fmt.Errorf("%s: %w: no changes", path, review.ErrSourceUnavailable)
	}

	return review.NewChangeUnit(path, stage, diff), nil
}

// ChangedFiles lists the paths touched at stage: staged additions,
// copies, modifications, renames and deletions at pre-commit, and files
// changed since the push base at pre-push. Pre-push falls back to the staged list when
// the range yields nothing.
func (s *Source) ChangedFiles(ctx context.Context, stage review.Stage) ([]string, error) {
	staged := func() ([]string, error) {
		out, err := s.git(ctx, "diff", "--cached", "--name-only", "--diff-filter=ACMRD")
		if err != nil {
			return nil, fmt.Errorf("listing staged files: %w", err)
		}
		return splitLines(out), nil
	}

	if stage != review.StagePrePush {
		return staged()
	}
	base, err := s.pushBase(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.git(ctx, "diff", "--name-only", "--diff-filter=ACMRD", base, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("listing pushed files: %w", err)
	}
	if files := splitLines(out); len(files) > 0 {
		return files, nil
	}
	return staged()
}

// PushBase returns the resolved pre-push baseline revision. Commits that
// exist only on the upstream side are never part of the range.
func (s *Source) PushBase(ctx context.Context) (string, error) {
	return s.pushBase(ctx)
}

func (s *Source) pushBase(ctx context.Context) (string, error) {
	s.baseOnce.Do(func() {
		for _, rev := range []string{s.opts.PushBase, "HEAD~1"} {
			if rev == "" {
				continue
			}
			out, err := s.git(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
			if err != nil {
				continue
			}
			s.base = strings.TrimSpace(out)
			if mb, err := s.git(ctx, "merge-base", s.base, "HEAD"); err == nil {
				s.base = strings.TrimSpace(mb)
			}
			return
		}
		if _, err := s.git(ctx, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
			s.baseErr = errors.New("repository has no commits")
			return
		}
		s.base = emptyTree
	})
	return s.base, s.baseErr
}

func (s *Source) diffArgs(path string) []string {
	var args []string
	if s.opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", s.opts.ContextLines))
	}
	return append(args, "--", path)
}

// contentDiff renders an untracked or unstaged file as a whole-file
// addition.
func (s *Source) contentDiff(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.dir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return NewFileDiff(path, string(data)), nil
}

// NewFileDiff renders content as a unified diff creating path.
func NewFileDiff(path, content string) string {
	if content == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("new file mode 100644\n")
	b.WriteString("--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		fmt.Fprintf(&b, "+%s\n", line)
	}
	return b.String()
}

// RepoRoot returns the top-level directory of the repository containing dir.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	out, err := gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// HooksDir returns the directory git runs hooks from, honoring
// core.hooksPath.
func HooksDir(ctx context.Context, dir string) (string, error) {
	out, err := gitOutput(ctx, dir, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", fmt.Errorf("locating hooks directory: %w", err)
	}
	p := strings.TrimSpace(out)
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return p, nil
}

// Head returns the current commit and branch name. Both are empty in a
// repository without commits.
func Head(ctx context.Context, dir string) (sha, branch string) {
	if out, err := gitOutput(ctx, dir, "rev-parse", "HEAD"); err == nil {
		sha = strings.TrimSpace(out)
	}
	if out, err := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		branch = strings.TrimSpace(out)
	}
	return sha, branch
}

// Filter keeps the paths that match include (when non-empty) and do not
// match exclude, preserving order and dropping duplicates.
func Filter(paths, include, exclude []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if len(include) > 0 && !pathglob.MatchAny(p, include) {
			continue
		}
		if pathglob.MatchAny(p, exclude) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func splitLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func (s *Source) git(ctx context.Context, args ...string) (string, error) {
	return gitOutput(ctx, s.dir, args...)
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("git %s: %s: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
