package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/revgate/internal/cache"
	"github.com/dshills/revgate/internal/providers"
	"github.com/dshills/revgate/internal/redact"
)

// InvokerOptions bounds and shapes backend requests.
type InvokerOptions struct {
	Model                string
	Timeout              time.Duration
	MaxPayloadChars      int
	MaxBatchPayloadChars int
	MaxResponseTokens    int
	Temperature          float64
	Keywords             Keywords
	Cache                *cache.Cache
	Redactor             *redact.Redactor
	Logger               *slog.Logger
}

// Invoker turns batches into verdicts through one review backend. Every
// backend failure short of cancellation becomes an INCONCLUSIVE verdict.
type Invoker struct {
	backend providers.Reviewer
	opts    InvokerOptions
	logger  *slog.Logger
	now     func() time.Time
}

// NewInvoker returns an Invoker over backend.
func NewInvoker(backend providers.Reviewer, opts InvokerOptions) *Invoker {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.Keywords.Reject) == 0 {
		opts.Keywords = DefaultKeywords()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{backend: backend, opts: opts, logger: logger, now: time.Now}
}

// Invoke reviews b with one backend call. A batch of one gets the single
// file payload. The only error is ErrAbandoned, returned when ctx ends
// before the backend answers; no verdict exists for that call.
func (inv *Invoker) Invoke(ctx context.Context, b Batch) (Verdict, error) {
	if len(b.Items) == 1 {
		return inv.Review(ctx, b.Items[0])
	}
	return inv.ReviewBatch(ctx, b)
}

// Review reviews a single unit. SKIP units must be filtered by the caller.
func (inv *Invoker) Review(ctx context.Context, it Item) (Verdict, error) {
	u := inv.redacted(it.Unit)
	payload, truncated := BuildPayload(u, it.Class, inv.opts.MaxPayloadChars)
	return inv.call(ctx, []string{u.Path}, it.Class.Level == LevelCritical, payload, truncated)
}

// ReviewBatch reviews every unit of b in one request and returns a single
// verdict covering all of its paths.
func (inv *Invoker) ReviewBatch(ctx context.Context, b Batch) (Verdict, error) {
	red := Batch{Index: b.Index, Items: make([]Item, len(b.Items))}
	for i, it := range b.Items {
		red.Items[i] = Item{Unit: inv.redacted(it.Unit), Class: it.Class}
	}
	payload, truncated := BuildBatchPayload(red, inv.opts.MaxBatchPayloadChars)
	return inv.call(ctx, b.Paths(), b.Critical(), payload, truncated)
}

func (inv *Invoker) redacted(u ChangeUnit) ChangeUnit {
	if inv.opts.Redactor == nil {
		return u
	}
	text, n := inv.opts.Redactor.Diff(u.Path, u.DiffText)
	if n > 0 {
		inv.logger.Debug("redacted diff", "path", u.Path, "redactions", n)
	}
	u.DiffText = text
	return u
}

func (inv *Invoker) call(ctx context.Context, paths []string, critical bool, payload string, truncated bool) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrAbandoned, err)
	}

	system := SystemPrompt(critical)
	key := cache.Key{
		Provider: inv.backend.Name(),
		Model:    inv.opts.Model,
		System:   system,
		Payload:  payload,
	}
	verdict := Verdict{
		SubjectPaths: paths,
		Critical:     critical,
		Truncated:    truncated,
	}

	if inv.opts.Cache != nil {
		if text, ok := inv.opts.Cache.Get(key); ok {
			verdict.Decision, verdict.Rationale = NormalizeResponse(text, inv.opts.Keywords)
			verdict.Cached = true
			inv.logger.Debug("cache hit", "paths", paths, "decision", verdict.Decision)
			return verdict, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.opts.Timeout)
	defer cancel()

	temperature := inv.opts.Temperature
	start := inv.now()
	resp, err := inv.backend.Review(callCtx, providers.ReviewRequest{
		System:            system,
		Payload:           payload,
		MaxResponseTokens: inv.opts.MaxResponseTokens,
		Temperature:       &temperature,
	})
	verdict.Duration = inv.now().Sub(start)

	if err != nil {
		if ctx.Err() != nil {
			inv.logger.Info("review abandoned", "paths", paths)
			return Verdict{}, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
		}
		cause := ErrBackendTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			cause = ErrBackendTimeout
		}
		inv.logger.Warn("review backend failed",
			"paths", paths,
			"provider", inv.backend.Name(),
			"auth", providers.IsAuthError(err),
			"error", err,
		)
		verdict.Decision = DecisionInconclusive
		verdict.Rationale = fmt.Errorf("%w: %v", cause, err).Error()
		return verdict, nil
	}

	verdict.Decision, verdict.Rationale = NormalizeResponse(resp.Content, inv.opts.Keywords)
	if verdict.Decision == DecisionInconclusive {
		inv.logger.Warn("unusable review response", "paths", paths, "error", ErrMalformedResponse)
		if verdict.Rationale == "" {
			verdict.Rationale = ErrMalformedResponse.Error()
		}
		return verdict, nil
	}

	if inv.opts.Cache != nil {
		if err := inv.opts.Cache.Put(key, resp.Content); err != nil {
			inv.logger.Warn("cache write failed", "error", err)
		}
	}

	inv.logger.Info("review complete",
		"paths", paths,
		"decision", verdict.Decision,
		"critical", critical,
		"truncated", truncated,
		"tokens", resp.TokensUsed,
		"duration", verdict.Duration,
	)
	return verdict, nil
}
