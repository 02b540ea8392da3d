package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/revgate/internal/cache"
	"github.com/dshills/revgate/internal/config"
	"github.com/dshills/revgate/internal/gitctx"
	"github.com/dshills/revgate/internal/history"
	"github.com/dshills/revgate/internal/output"
	"github.com/dshills/revgate/internal/providers"
	"github.com/dshills/revgate/internal/redact"
	"github.com/dshills/revgate/internal/review"
)

var (
	flagStage        string
	flagProvider     string
	flagModel        string
	flagConcurrency  int
	flagReportFormat string
	flagPolicy       string
	flagNoCache      bool
	flagNoHistory    bool
	flagOut          string
	flagOutFormat    string
)

// runBindings maps run flags onto config keys.
var runBindings = map[string]string{
	"provider":            "provider",
	"model":               "model",
	"concurrency":         "concurrency",
	"report-format":       "reportFormat",
	"inconclusive-policy": "inconclusivePolicy",
}

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Review changed files for a hook stage",
	Long: `Review the given paths, or every changed file when none are given, and
exit 1 when the change must be blocked.

Pre-commit reviews the staged diff of each file. Pre-push reviews the diff
from the push base to HEAD and batches files once there are enough of them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := review.ParseStage(flagStage)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exitCode = runGate(ctx, stage, args, cmd.Flags(), cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&flagStage, "stage", string(review.StagePreCommit), "Hook stage (pre-commit, pre-push)")
	runCmd.Flags().StringVar(&flagProvider, "provider", "", "Review backend (copilot, openai, anthropic, gemini, ollama, lmstudio)")
	runCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	runCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Maximum concurrent backend calls")
	runCmd.Flags().StringVar(&flagReportFormat, "report-format", "", "Persisted report format (markdown, json, sarif, none)")
	runCmd.Flags().StringVar(&flagPolicy, "inconclusive-policy", "", "How critical inconclusive reviews count (failClosed, failOpen)")
	runCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the response cache")
	runCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record the run in the history database")
	runCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Also write the report to this file")
	runCmd.Flags().StringVar(&flagOutFormat, "out-format", "json", "Format of the --out file (text, json, markdown, sarif)")
}

// runGate performs one gated run and returns the process exit code. Console
// output goes to stderr so hook output stays readable.
func runGate(ctx context.Context, stage review.Stage, paths []string, flags *pflag.FlagSet, stderr io.Writer) int {
	root := workDir(ctx)

	cfg, err := loadConfig(root, flags, runBindings)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return configExitCode(err)
	}
	if flagNoCache {
		cfg.Cache.Enabled = false
	}
	if flagNoHistory {
		cfg.History.Enabled = false
	}

	logger, closer := config.NewLogger(cfg.Log, root, flagVerbose)
	defer closer.Close()

	g, err := newGate(root, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if providers.IsAuthError(err) {
			return ExitAuthError
		}
		return ExitRuntimeError
	}

	if len(paths) == 0 {
		paths, err = g.source.ChangedFiles(ctx, stage)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitRuntimeError
		}
	}
	paths = gitctx.Filter(paths, cfg.Include, cfg.Exclude)
	logger.Debug("paths selected", "stage", stage, "count", len(paths))

	report, runErr := g.engine.Run(ctx, stage, paths)
	if report == nil {
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return ExitRuntimeError
	}
	if runErr != nil {
		logger.Warn("run ended early", "run", report.RunID, "error", runErr)
	}

	tw := &output.TextWriter{Policy: g.policy}
	if err := tw.Write(stderr, report); err != nil {
		logger.Error("writing summary", "error", err)
	}

	sink := output.FileSink{Dir: resolve(root, cfg.ReportDir), Format: cfg.ReportFormat}
	if path, err := sink.Persist(report); err != nil {
		fmt.Fprintf(stderr, "Warning: report not saved: %v\n", err)
		logger.Error("persisting report", "run", report.RunID, "error", err)
	} else if path != "" {
		fmt.Fprintf(stderr, "Report: %s\n", path)
	}

	if flagOut != "" {
		if err := output.WriteReport(report, flagOutFormat, flagOut, g.policy); err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
		}
	}

	if cfg.History.Enabled {
		if err := recordRun(root, cfg, report); err != nil {
			logger.Error("recording history", "run", report.RunID, "error", err)
		}
	}

	return g.policy.ExitCode(report)
}

// gate holds the wired run pipeline.
type gate struct {
	source *gitctx.Source
	engine *review.Engine
	policy review.Policy
}

func newGate(root string, cfg config.Config, logger *slog.Logger) (*gate, error) {
	inconclusive, err := review.ParseInconclusivePolicy(cfg.InconclusivePolicy)
	if err != nil {
		return nil, err
	}
	policy := review.Policy{Inconclusive: inconclusive}

	rs, err := review.RulesetFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := providers.New(providers.Options{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Endpoint: cfg.Endpoint,
		Retries:  cfg.Retries,
	})
	if err != nil {
		return nil, err
	}
	backend = providers.NewRateLimited(backend, cfg.RequestsPerSecond)

	c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	invoker := review.NewInvoker(backend, review.InvokerOptions{
		Model:                cfg.Model,
		Timeout:              time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxPayloadChars:      cfg.MaxPayloadChars,
		MaxBatchPayloadChars: cfg.MaxBatchPayloadChars,
		MaxResponseTokens:    cfg.MaxResponseTokens,
		Temperature:          cfg.Temperature,
		Keywords:             review.Keywords{Reject: cfg.RejectKeywords, Approve: cfg.ApproveKeywords},
		Cache:                c,
		Redactor:             redact.New(cfg.Privacy.RedactSecrets, cfg.Privacy.RedactPaths),
		Logger:               logger,
	})

	src := gitctx.New(root, gitctx.Options{
		PushBase:              cfg.PushBase,
		FallbackToFileContent: cfg.FallbackToFileContent,
	})

	engine := review.NewEngine(src, rs, invoker, review.EngineOptions{
		Planner: review.Planner{
			Threshold:       cfg.BatchThreshold,
			MaxSize:         cfg.MaxBatchSize,
			MaxPayloadChars: cfg.MaxBatchPayloadChars,
		},
		Policy:           policy,
		Concurrency:      cfg.Concurrency,
		FetchConcurrency: cfg.FetchConcurrency,
		Logger:           logger,
	})

	return &gate{source: src, engine: engine, policy: policy}, nil
}

// recordRun stores the report in the history database. It runs detached
// from the run context so an interrupted run is still recorded.
func recordRun(root string, cfg config.Config, report *review.RunReport) error {
	store, err := history.Open(resolve(root, cfg.History.Path))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sha, branch := gitctx.Head(ctx, root)
	return store.Save(ctx, report, history.Meta{
		Head:     sha,
		Branch:   branch,
		Provider: cfg.Provider,
		Model:    cfg.Model,
	})
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
