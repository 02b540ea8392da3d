package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/revgate/internal/gitctx"
	"github.com/dshills/revgate/internal/review"
)

var (
	hookStage  string
	hookStrict bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage git hooks",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install revgate into the pre-commit and/or pre-push hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		stages, err := hookStages(hookStage)
		if err != nil {
			return err
		}
		dir, err := gitctx.HooksDir(cmd.Context(), workDir(cmd.Context()))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		for _, stage := range stages {
			path, err := installHook(dir, stage, hookStrict)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed revgate %s hook at %s\n", stage, path)
		}
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove revgate from the pre-commit and/or pre-push hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		stages, err := hookStages(hookStage)
		if err != nil {
			return err
		}
		dir, err := gitctx.HooksDir(cmd.Context(), workDir(cmd.Context()))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		for _, stage := range stages {
			msg, err := uninstallHook(dir, stage)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
		}
		return nil
	},
}

func hookStages(s string) ([]review.Stage, error) {
	if s == "all" {
		return []review.Stage{review.StagePreCommit, review.StagePrePush}, nil
	}
	stage, err := review.ParseStage(s)
	if err != nil {
		return nil, err
	}
	return []review.Stage{stage}, nil
}

func hookMarkers(stage review.Stage) (start, end string) {
	return fmt.Sprintf("# >>> revgate %s hook >>>", stage), fmt.Sprintf("# <<< revgate %s hook <<<", stage)
}

// installHook writes or refreshes the revgate section of the stage's hook
// file, keeping any other content, and returns the file path.
func installHook(hooksDir string, stage review.Stage, strict bool) (string, error) {
	hookPath := filepath.Join(hooksDir, string(stage))
	section := generateHookScript(stage, strict)

	existing, err := os.ReadFile(hookPath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading hook file: %w", err)
	}

	var content string
	if len(existing) == 0 {
		content = "#!/bin/sh\n" + section
	} else {
		content = replaceSection(string(existing), stage, section)
	}

	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return "", fmt.Errorf("creating hooks directory: %w", err)
	}
	if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("writing hook file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(hookPath, 0o755); err != nil {
		return "", fmt.Errorf("making hook executable: %w", err)
	}
	return hookPath, nil
}

// uninstallHook removes the revgate section and deletes the file when
// nothing but the shebang is left.
func uninstallHook(hooksDir string, stage review.Stage) (string, error) {
	hookPath := filepath.Join(hooksDir, string(stage))
	existing, err := os.ReadFile(hookPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("No %s hook found.", stage), nil
		}
		return "", fmt.Errorf("reading hook file: %w", err)
	}

	content := removeSection(string(existing), stage)
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
		if err := os.Remove(hookPath); err != nil {
			return "", fmt.Errorf("removing hook file: %w", err)
		}
		return fmt.Sprintf("Removed revgate %s hook at %s", stage, hookPath), nil
	}

	if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("writing hook file: %w", err)
	}
	return fmt.Sprintf("Removed revgate section from %s", hookPath), nil
}

// generateHookScript returns the marked hook section. Exit 1 blocks; exit
// codes of 2 and above mean the gate could not run and only block when
// strict is set.
func generateHookScript(stage review.Stage, strict bool) string {
	start, end := hookMarkers(stage)
	op := "commit"
	if stage == review.StagePrePush {
		op = "push"
	}

	var b strings.Builder
	b.WriteString(start + "\n")
	fmt.Fprintf(&b, "revgate run --stage %s\n", stage)
	b.WriteString("REVGATE_EXIT=$?\n")
	b.WriteString("if [ $REVGATE_EXIT -eq 1 ]; then\n")
	fmt.Fprintf(&b, "  echo \"revgate: review rejected the change, %s blocked\"\n", op)
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $REVGATE_EXIT -ge 2 ]; then\n")
	if strict {
		fmt.Fprintf(&b, "  echo \"revgate: review could not run (exit $REVGATE_EXIT), %s blocked\"\n", op)
		b.WriteString("  exit 1\n")
	} else {
		fmt.Fprintf(&b, "  echo \"revgate: review could not run (exit $REVGATE_EXIT), allowing %s\"\n", op)
	}
	b.WriteString("fi\n")
	b.WriteString(end + "\n")
	return b.String()
}

func replaceSection(existing string, stage review.Stage, section string) string {
	start, end := hookMarkers(stage)
	startIdx := strings.Index(existing, start)
	endIdx := strings.Index(existing, end)

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(end):], "\n")
	return before + section + after
}

func removeSection(existing string, stage review.Stage) string {
	start, end := hookMarkers(stage)
	startIdx := strings.Index(existing, start)
	endIdx := strings.Index(existing, end)

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return existing
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(end):], "\n")
	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookStage, "stage", "all", "Hook to manage (pre-commit, pre-push, all)")
	hookInstallCmd.Flags().BoolVar(&hookStrict, "strict", false, "Block when the review cannot run")
	hookUninstallCmd.Flags().StringVar(&hookStage, "stage", "all", "Hook to manage (pre-commit, pre-push, all)")
}
