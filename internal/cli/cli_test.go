package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dshills/revgate/internal/config"
	"github.com/dshills/revgate/internal/history"
	"github.com/dshills/revgate/internal/review"
)

// runCLI executes the root command and returns the exit code with the
// captured stdout and stderr. Flag state is reset afterwards.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		resetFlags(rootCmd)
	})
	code := execute(context.Background(), args)
	return code, stdout.String(), stderr.String()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// gitRepo creates a repository with one commit and returns its path.
func gitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"checkout", "-b", "main"},
		{"commit", "--allow-empty", "-m", "init"},
	} {
		gitIn(t, dir, args...)
	}
	return dir
}

func gitIn(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "commit.gpgsign=false"}, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func writeConfig(t *testing.T, path string, cfg config.Config) {
	t.Helper()
	require.NoError(t, config.Save(path, cfg))
}

// fakeBackend serves chat-completions answers with the given text.
func fakeBackend(t *testing.T, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": answer}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func stageLogin(t *testing.T, repo string) {
	t.Helper()
	src := "class Login {\n  String q = \"SELECT * FROM users WHERE password='\" + pw + \"'\";\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, "Login.java"), []byte(src), 0o644))
	gitIn(t, repo, "add", "Login.java")
}

func gateConfig(endpoint string) config.Config {
	cfg := config.Default()
	cfg.Provider = "openai"
	cfg.Model = "gpt-4o"
	cfg.Endpoint = endpoint
	cfg.Retries = 0
	return cfg
}

func TestRun_RejectBlocksCommit(t *testing.T) {
	repo := gitRepo(t)
	srv, calls := fakeBackend(t, "Builds SQL from input.\nDECISION: REJECT")
	t.Setenv("OPENAI_API_KEY", "test-key")
	writeConfig(t, filepath.Join(repo, config.FileName), gateConfig(srv.URL))
	stageLogin(t, repo)

	code, _, stderr := runCLI(t, "run", "-C", repo)

	assert.Equal(t, ExitBlock, code, stderr)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, stderr, "revgate pre-commit: BLOCK")
	assert.Contains(t, stderr, "Login.java  [REJECT]")

	reports, err := filepath.Glob(filepath.Join(repo, ".pre-commit-reviews", "review_*.md"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	store, err := history.Open(filepath.Join(repo, config.Default().History.Path))
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, review.OverallBlock, runs[0].Overall)
	assert.Equal(t, "main", runs[0].Branch)
	assert.Equal(t, "openai", runs[0].Provider)
}

func TestRun_ApproveAllowsCommit(t *testing.T) {
	repo := gitRepo(t)
	srv, _ := fakeBackend(t, "DECISION: APPROVE")
	t.Setenv("OPENAI_API_KEY", "test-key")
	writeConfig(t, filepath.Join(repo, config.FileName), gateConfig(srv.URL))
	stageLogin(t, repo)
	out := filepath.Join(t.TempDir(), "report.json")

	code, _, stderr := runCLI(t, "run", "-C", repo, "--no-history", "--out", out)

	assert.Equal(t, ExitAllow, code, stderr)
	assert.NoFileExists(t, filepath.Join(repo, config.Default().History.Path))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"overallDecision": "ALLOW"`)
}

func TestRun_NothingStagedAllows(t *testing.T) {
	repo := gitRepo(t)
	srv, calls := fakeBackend(t, "DECISION: REJECT")
	t.Setenv("OPENAI_API_KEY", "test-key")
	writeConfig(t, filepath.Join(repo, config.FileName), gateConfig(srv.URL))

	code, _, stderr := runCLI(t, "run", "-C", repo)

	assert.Equal(t, ExitAllow, code, stderr)
	assert.Zero(t, calls.Load())
	assert.Contains(t, stderr, "Nothing to review.")
}

func TestRun_InvalidConfigIsUsageError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: carrier-pigeon\n"), 0o644))

	code, _, stderr := runCLI(t, "run", "-C", dir, "--config", path)

	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "carrier-pigeon")
}

func TestRun_MissingKeyIsAuthError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")

	code, _, stderr := runCLI(t, "run", "-C", dir, "--provider", "openai", "--model", "gpt-4o")

	assert.Equal(t, ExitAuthError, code)
	assert.Contains(t, stderr, "OPENAI_API_KEY")
}

func TestRun_OutsideRepositoryIsRuntimeError(t *testing.T) {
	dir := t.TempDir()

	code, _, _ := runCLI(t, "run", "-C", dir, "--provider", "ollama", "--model", "llama3")

	assert.Equal(t, ExitRuntimeError, code)
}

func TestRun_UnknownStageIsUsageError(t *testing.T) {
	code, _, stderr := runCLI(t, "run", "--stage", "post-merge")

	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "unknown stage")
}

func TestHookInstall_ViaCommand(t *testing.T) {
	repo := gitRepo(t)

	code, stdout, stderr := runCLI(t, "hook", "install", "-C", repo, "--stage", "pre-push", "--strict")

	require.Equal(t, ExitAllow, code, stderr)
	assert.Contains(t, stdout, "Installed revgate pre-push hook")
	data, err := os.ReadFile(filepath.Join(repo, ".git", "hooks", "pre-push"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "revgate run --stage pre-push")
	assert.NoFileExists(t, filepath.Join(repo, ".git", "hooks", "pre-commit"))
}

func TestSetConfigValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)

	require.NoError(t, setConfigValue(path, "provider", "anthropic"))
	require.NoError(t, setConfigValue(path, "batchThreshold", "8"))

	var cfg config.Config
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 8, cfg.BatchThreshold)
	assert.Equal(t, config.Default().SkipPatterns, cfg.SkipPatterns)

	assert.Error(t, setConfigValue(path, "inconclusivePolicy", "sometimes"))
	assert.Error(t, setConfigValue(path, "colour", "blue"))
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, data2, "rejected values leave the file unchanged")
}

func TestSetConfigValue_IgnoresEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	t.Setenv("REVGATE_MODEL", "from-env")

	require.NoError(t, setConfigValue(path, "provider", "gemini"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from-env")
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()

	code, stdout, _ := runCLI(t, "config", "init", "-C", dir)
	require.Equal(t, ExitAllow, code)
	assert.Contains(t, stdout, "Config file created")
	assert.FileExists(t, filepath.Join(dir, config.FileName))

	code, stdout, _ = runCLI(t, "config", "show", "-C", dir)
	require.Equal(t, ExitAllow, code)
	assert.Contains(t, stdout, "provider: copilot")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")

	assert.Equal(t, ExitAllow, code)
	assert.Equal(t, "revgate version "+version+"\n", stdout)
}

func TestRun_PrePushBatchesIntoOneCall(t *testing.T) {
	repo := gitRepo(t)
	srv, calls := fakeBackend(t, "Batch looks unsafe.\nDECISION: REJECT")
	t.Setenv("OPENAI_API_KEY", "test-key")
	writeConfig(t, filepath.Join(repo, config.FileName), gateConfig(srv.URL))
	var names []string
	for i := 1; i <= 6; i++ {
		name := fmt.Sprintf("f%d.go", i)
		src := fmt.Sprintf("package main\n\nfunc f%d() int { return %d }\n", i, i)
		require.NoError(t, os.WriteFile(filepath.Join(repo, name), []byte(src), 0o644))
		names = append(names, name)
	}
	gitIn(t, repo, append([]string{"add"}, names...)...)
	gitIn(t, repo, "commit", "-m", "six files")

	code, _, stderr := runCLI(t, "run", "-C", repo, "--stage", "pre-push")

	assert.Equal(t, ExitBlock, code, stderr)
	assert.Equal(t, int32(1), calls.Load(), "six files over the threshold go out as one batch")
	assert.Contains(t, stderr, "revgate pre-push: BLOCK")
	assert.Contains(t, stderr, "f1.go, f2.go, f3.go, f4.go, f5.go, f6.go  [REJECT]")
	reports, err := filepath.Glob(filepath.Join(repo, ".pre-commit-reviews", "batch_review_*.md"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestHistory_ListsRunsAndVerdicts(t *testing.T) {
	repo := gitRepo(t)
	srv, _ := fakeBackend(t, "Builds SQL from input.\nDECISION: REJECT")
	t.Setenv("OPENAI_API_KEY", "test-key")
	writeConfig(t, filepath.Join(repo, config.FileName), gateConfig(srv.URL))
	stageLogin(t, repo)
	code, _, stderr := runCLI(t, "run", "-C", repo)
	require.Equal(t, ExitBlock, code, stderr)

	store, err := history.Open(filepath.Join(repo, config.Default().History.Path))
	require.NoError(t, err)
	runs, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)

	code, stdout, stderr := runCLI(t, "history", "-C", repo)
	require.Equal(t, ExitAllow, code, stderr)
	assert.Contains(t, stdout, runs[0].ID)
	assert.Contains(t, stdout, "pre-commit")
	assert.Contains(t, stdout, "BLOCK")
	assert.Contains(t, stdout, "main")

	code, stdout, stderr = runCLI(t, "history", "-C", repo, runs[0].ID)
	require.Equal(t, ExitAllow, code, stderr)
	assert.Contains(t, stdout, "Login.java")
	assert.Contains(t, stdout, "REJECT")
	assert.Contains(t, stdout, "Builds SQL from input.")

	code, stdout, _ = runCLI(t, "history", "-C", repo, "--prune", "1")
	require.Equal(t, ExitAllow, code)
	assert.Contains(t, stdout, "Pruned 0 run(s)")
}

func TestHistory_Empty(t *testing.T) {
	dir := t.TempDir()

	code, stdout, _ := runCLI(t, "history", "-C", dir)

	assert.Equal(t, ExitAllow, code)
	assert.Equal(t, "No runs recorded.\n", stdout)
}
