package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ChangeSource produces the diff of one path at one stage. Failures that
// mean "nothing to review here" wrap ErrSourceUnavailable.
type ChangeSource interface {
	Fetch(ctx context.Context, path string, stage Stage) (ChangeUnit, error)
}

// Dispatcher turns a planned batch into a verdict. *Invoker implements it.
type Dispatcher interface {
	Invoke(ctx context.Context, b Batch) (Verdict, error)
}

// EngineOptions configures a run.
type EngineOptions struct {
	Planner          Planner
	Policy           Policy
	Concurrency      int
	FetchConcurrency int
	Logger           *slog.Logger
}

// Engine runs one hook invocation end to end.
type Engine struct {
	source     ChangeSource
	classifier *Classifier
	dispatch   Dispatcher
	opts       EngineOptions
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine wires the run pipeline.
func NewEngine(src ChangeSource, rs *Ruleset, d Dispatcher, opts EngineOptions) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:     src,
		classifier: NewClassifier(rs),
		dispatch:   d,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

type fetched struct {
	unit ChangeUnit
	ok   bool
}

// Run fetches, classifies, plans and reviews paths, then finalizes the
// report. Verdicts appear in submission order whatever the concurrency.
//
// If ctx is cancelled mid-run the report is still finalized over the
// verdicts that completed, marked Interrupted, and returned together with
// the cancellation error.
func (e *Engine) Run(ctx context.Context, stage Stage, paths []string) (*RunReport, error) {
	report := NewRunReport(stage, e.now())
	log := e.logger.With("run", report.RunID, "stage", stage)
	log.Info("run started", "paths", len(paths))

	slots, err := e.fetchAll(ctx, stage, paths)
	if err != nil {
		return e.finish(ctx, report, log, err)
	}

	var items []Item
	for i, s := range slots {
		if !s.ok {
			if err := report.MarkUnavailable(paths[i]); err != nil {
				return nil, err
			}
			continue
		}
		c := e.classifier.Classify(s.unit)
		log.Debug("classified",
			"path", s.unit.Path,
			"level", c.Level,
			"score", c.Score,
			"rules", c.MatchedRules,
			"sizeEscalated", c.SizeEscalated,
		)
		if c.Level == LevelSkip {
			if err := report.Skip(s.unit.Path, skipReason(s.unit)); err != nil {
				return nil, err
			}
			continue
		}
		items = append(items, Item{Unit: s.unit, Class: c})
	}

	batches := e.opts.Planner.Plan(stage, items)
	log.Info("review planned", "reviewable", len(items), "calls", len(batches))

	err = e.reviewAll(ctx, report, batches)
	return e.finish(ctx, report, log, err)
}

func (e *Engine) finish(ctx context.Context, report *RunReport, log *slog.Logger, runErr error) (*RunReport, error) {
	if ctx.Err() != nil {
		report.Interrupted = true
	}
	if err := report.Finalize(e.opts.Policy, e.now()); err != nil {
		return nil, err
	}
	log.Info("run finished",
		"decision", report.OverallDecision,
		"verdicts", len(report.Verdicts),
		"skipped", len(report.Skipped),
		"unavailable", len(report.Unavailable),
		"interrupted", report.Interrupted,
	)
	return report, runErr
}

func (e *Engine) fetchAll(ctx context.Context, stage Stage, paths []string) ([]fetched, error) {
	slots := make([]fetched, len(paths))

	var g errgroup.Group
	g.SetLimit(e.opts.FetchConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			u, err := e.source.Fetch(ctx, p, stage)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, ErrSourceUnavailable) {
					e.logger.Debug("source unavailable", "path", p, "error", err)
				} else {
					e.logger.Warn("fetch failed", "path", p, "error", err)
				}
				return nil
			}
			slots[i] = fetched{unit: u, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching changes: %w", err)
	}
	return slots, nil
}

func (e *Engine) reviewAll(ctx context.Context, report *RunReport, batches []Batch) error {
	app := newOrderedAppender(report, len(batches))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for _, b := range batches {
		g.Go(func() error {
			v, err := e.dispatch.Invoke(ctx, b)
			if err != nil {
				app.drop(b.Index)
				return err
			}
			return app.put(b.Index, v)
		})
	}
	return g.Wait()
}

func skipReason(u ChangeUnit) string {
	if u.ChangedLines() == 0 {
		return "no meaningful changes"
	}
	return "only excluded lines"
}

// orderedAppender appends verdicts to a report in submission order as they
// complete out of order. It is the report's only writer during review.
type orderedAppender struct {
	mu     sync.Mutex
	report *RunReport
	slots  []*Verdict
	done   []bool
	next   int
}

func newOrderedAppender(r *RunReport, n int) *orderedAppender {
	return &orderedAppender{
		report: r,
		slots:  make([]*Verdict, n),
		done:   make([]bool, n),
	}
}

// put records the verdict for submission index i and flushes the completed
// prefix.
func (a *orderedAppender) put(i int, v Verdict) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[i] = &v
	a.done[i] = true
	return a.flush()
}

// drop marks index i as finished without a verdict.
func (a *orderedAppender) drop(i int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.done[i] = true
	_ = a.flush()
}

func (a *orderedAppender) flush() error {
	for a.next < len(a.done) && a.done[a.next] {
		if v := a.slots[a.next]; v != nil {
			if err := a.report.Append(*v); err != nil {
				return err
			}
			a.slots[a.next] = nil
		}
		a.next++
	}
	return nil
}
