package gitctx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revgate/internal/review"
)

type testRepo struct {
	t   *testing.T
	dir string
}

// newTestRepo creates an empty git repository on branch main.
func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	r := &testRepo{t: t, dir: t.TempDir()}
	r.git("init")
	r.git("checkout", "-b", "main")
	return r
}

// newCommittedRepo is newTestRepo plus an initial commit of main.go,
// util.go and vendor/lib.go.
func newCommittedRepo(t *testing.T) *testRepo {
	r := newTestRepo(t)
	r.write("main.go", "package main\n\nfunc main() {}\n")
	r.write("util.go", "package main\n\nfunc helper() {}\n")
	r.write("vendor/lib.go", "package vendor\n")
	r.git("add", "-A")
	r.git("commit", "-m", "init")
	return r
}

func (r *testRepo) git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "commit.gpgsign=false"}, args...)...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test",
		"GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=test",
		"GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func (r *testRepo) write(path, content string) {
	r.t.Helper()
	full := filepath.Join(r.dir, path)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))
}

func TestFetch_PreCommitUsesStagedDiff(t *testing.T) {
	r := newCommittedRepo(t)
	r.write("util.go", "package main\n\nfunc helper() {}\n\nfunc added() {}\n")
	r.git("add", "util.go")
	src := New(r.dir, Options{})

	u, err := src.Fetch(context.Background(), "util.go", review.StagePreCommit)

	require.NoError(t, err)
	assert.Equal(t, "util.go", u.Path)
	assert.Equal(t, review.StagePreCommit, u.Stage)
	assert.Contains(t, u.DiffText, "+func added() {}")
	assert.Equal(t, 2, u.AddedCount)
	assert.Zero(t, u.RemovedCount)
}

func TestFetch_UnstagedChangeIsUnavailable(t *testing.T) {
	r := newCommittedRepo(t)
	r.write("main.go", "package main\n\nfunc main() { println() }\n")
	src := New(r.dir, Options{})

	_, err := src.Fetch(context.Background(), "main.go", review.StagePreCommit)

	assert.ErrorIs(t, err, review.ErrSourceUnavailable)
}

func TestFetch_FallbackToFileContent(t *testing.T) {
	r := newCommittedRepo(t)
	r.write("new.py", "import os\nprint(os.getcwd())\n")
	src := New(r.dir, Options{FallbackToFileContent: true})

	u, err := src.Fetch(context.Background(), "new.py", review.StagePreCommit)

	require.NoError(t, err)
	assert.Contains(t, u.DiffText, "new file mode")
	assert.Contains(t, u.DiffText, "+print(os.getcwd())")
	assert.Equal(t, 2, u.AddedCount)

	_, err = src.Fetch(context.Background(), "missing.py", review.StagePreCommit)
	assert.ErrorIs(t, err, review.ErrSourceUnavailable)
}

func TestFetch_PrePushDiffsAgainstPreviousCommit(t *testing.T) {
	r := newCommittedRepo(t)
	r.write("main.go", "package main\n\nfunc main() {\n\trun()\n}\n")
	r.git("commit", "-am", "second")
	src := New(r.dir, Options{PushBase: "@{upstream}"})

	u, err := src.Fetch(context.Background(), "main.go", review.StagePrePush)
	require.NoError(t, err)
	assert.Contains(t, u.DiffText, "+\trun()")
	assert.Equal(t, 1, u.RemovedCount)

	files, err := src.ChangedFiles(context.Background(), review.StagePrePush)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, files)

	base, err := src.PushBase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.git("rev-parse", "HEAD~1"), base)
}

func TestFetch_PrePushFirstCommitUsesEmptyTree(t *testing.T) {
	r := newCommittedRepo(t)
	src := New(r.dir, Options{PushBase: "origin/main"})

	base, err := src.PushBase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emptyTree, base)

	files, err := src.ChangedFiles(context.Background(), review.StagePrePush)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "util.go", "vendor/lib.go"}, files)
}

func TestPushBase_NoCommits(t *testing.T) {
	r := newTestRepo(t)
	src := New(r.dir, Options{PushBase: "@{upstream}"})

	_, err := src.Fetch(context.Background(), "a.go", review.StagePrePush)

	assert.ErrorIs(t, err, review.ErrSourceUnavailable)
	_, err = src.ChangedFiles(context.Background(), review.StagePrePush)
	assert.Error(t, err)
}

func TestFetch_PrePushIgnoresUpstreamOnlyCommits(t *testing.T) {
	r := newCommittedRepo(t)
	r.git("branch", "upstream")
	r.git("checkout", "-q", "upstream")
	r.write("main.go", "package main\n\nfunc main() { token := auth() }\n")
	r.git("commit", "-am", "upstream work")
	r.git("checkout", "-q", "main")
	r.write("mine.go", "package main\n\nfunc mine() {}\n")
	r.git("add", "mine.go")
	r.git("commit", "-m", "local work")
	fork := r.git("merge-base", "upstream", "main")
	src := New(r.dir, Options{PushBase: "upstream"})

	base, err := src.PushBase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fork, base)

	files, err := src.ChangedFiles(context.Background(), review.StagePrePush)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine.go"}, files)

	_, err = src.Fetch(context.Background(), "main.go", review.StagePrePush)
	assert.ErrorIs(t, err, review.ErrSourceUnavailable)

	u, err := src.Fetch(context.Background(), "mine.go", review.StagePrePush)
	require.NoError(t, err)
	assert.Equal(t, 3, u.AddedCount)
	assert.Zero(t, u.RemovedCount)
}

func TestChangedFiles_PrePushDeletionOnly(t *testing.T) {
	r := newCommittedRepo(t)
	r.git("rm", "-q", "util.go")
	r.git("commit", "-m", "drop util")
	src := New(r.dir, Options{PushBase: "@{upstream}"})

	files, err := src.ChangedFiles(context.Background(), review.StagePrePush)
	require.NoError(t, err)
	assert.Equal(t, []string{"util.go"}, files)

	u, err := src.Fetch(context.Background(), "util.go", review.StagePrePush)
	require.NoError(t, err)
	assert.Equal(t, 3, u.RemovedCount)
	assert.Zero(t, u.AddedCount)
}

func TestChangedFiles_PreCommitIncludesDeletions(t *testing.T) {
	r := newCommittedRepo(t)
	r.write("added.go", "package main\n")
	r.write("util.go", "package main\n\nfunc helper() { return }\n")
	r.git("add", "added.go", "util.go")
	r.git("rm", "-q", "vendor/lib.go")
	src := New(r.dir, Options{})

	files, err := src.ChangedFiles(context.Background(), review.StagePreCommit)

	require.NoError(t, err)
	assert.Equal(t, []string{"added.go", "util.go", "vendor/lib.go"}, files)

	u, err := src.Fetch(context.Background(), "vendor/lib.go", review.StagePreCommit)
	require.NoError(t, err)
	assert.Equal(t, 1, u.RemovedCount)
}

func TestRepoRootAndHead(t *testing.T) {
	r := newCommittedRepo(t)

	root, err := RepoRoot(context.Background(), filepath.Join(r.dir, "vendor"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(r.dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	sha, branch := Head(context.Background(), r.dir)
	assert.Len(t, sha, 40)
	assert.Equal(t, "main", branch)

	_, err = RepoRoot(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestHooksDir(t *testing.T) {
	r := newTestRepo(t)

	dir, err := HooksDir(context.Background(), r.dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.dir, ".git", "hooks"), dir)

	r.git("config", "core.hooksPath", ".githooks")
	dir, err = HooksDir(context.Background(), r.dir)
	require.NoError(t, err)
	assert.Equal(t, ".githooks", filepath.Base(dir))
}

func TestFilter(t *testing.T) {
	paths := []string{"main.go", "vendor/lib.go", "api/v1/types.gen.go", "web/dist/app.js", "main.go", " docs/README.md ", ""}

	got := Filter(paths, []string{"**/*"}, []string{"vendor/**", "**/*.gen.go", "**/dist/**"})
	assert.Equal(t, []string{"main.go", "docs/README.md"}, got)

	got = Filter(paths, []string{"**/*.go"}, nil)
	assert.Equal(t, []string{"main.go", "vendor/lib.go", "api/v1/types.gen.go"}, got)

	got = Filter(paths, nil, nil)
	assert.Len(t, got, 5)
}

func TestNewFileDiff(t *testing.T) {
	assert.Empty(t, NewFileDiff("a.go", ""))

	d := NewFileDiff("a.go", "one\ntwo\n")
	assert.Equal(t, "diff --git a/a.go b/a.go\nnew file mode 100644\n--- /dev/null\n+++ b/a.go\n@@ -0,0 +1,2 @@\n+one\n+two\n", d)

	u := review.NewChangeUnit("a.go", review.StagePreCommit, d)
	assert.Equal(t, 2, u.AddedCount)
}
