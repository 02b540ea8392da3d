package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dshills/revgate/internal/config"
	"github.com/dshills/revgate/internal/gitctx"
)

const version = "0.1.0"

// Process exit codes. 0 and 1 are the gate outcome; the rest mean the gate
// could not run.
const (
	ExitAllow        = 0
	ExitBlock        = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

var (
	flagConfig  string
	flagVerbose bool
	flagDir     string
)

var rootCmd = &cobra.Command{
	Use:           "revgate",
	Short:         "LLM review gate for git hooks",
	Long:          "revgate decides per changed file whether an LLM review is needed, runs it, and blocks the commit or push on rejection.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Run executes the root command with the process arguments and returns an
// exit code.
func Run() int {
	return execute(context.Background(), os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	exitCode = ExitAllow
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitAllow

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print revgate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "revgate version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: .revgate.yaml in the repository root)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", "", "Run as if started in this directory")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// workDir returns the repository root, or the working directory when it is
// not inside a repository.
func workDir(ctx context.Context) string {
	dir := flagDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		dir = wd
	}
	if root, err := gitctx.RepoRoot(ctx, dir); err == nil {
		return root
	}
	return dir
}

// configFile returns the file config commands read and write.
func configFile(root string) string {
	if flagConfig != "" {
		return flagConfig
	}
	return filepath.Join(root, config.FileName)
}

// loadConfig resolves the effective config for root. Flags named in
// bindings override file and environment values when they are set.
func loadConfig(root string, flags *pflag.FlagSet, bindings map[string]string) (config.Config, error) {
	v, err := config.NewViper(root, flagConfig)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if err := bindFlags(v, flags, bindings); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

// bindFlags wires flag names to viper keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for name, key := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("flag %q for config key %q not found", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// configExitCode maps a config loading failure to an exit code.
func configExitCode(err error) int {
	if errors.Is(err, config.ErrInvalid) {
		return ExitUsageError
	}
	return ExitRuntimeError
}
