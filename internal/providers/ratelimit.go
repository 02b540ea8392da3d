package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped Reviewer with a token bucket.
type RateLimited struct {
	next    Reviewer
	limiter *rate.Limiter
}

// NewRateLimited wraps r so that at most rps requests start per second.
// A non-positive rps returns r unchanged.
func NewRateLimited(r Reviewer, rps float64) Reviewer {
	if rps <= 0 {
		return r
	}
	return &RateLimited{
		next:    r,
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/rps)), 1),
	}
}

func (r *RateLimited) Name() string { return r.next.Name() }

// Review waits for a token, then delegates. A cancelled context while
// waiting returns the context error without calling the backend.
func (r *RateLimited) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ReviewResponse{}, err
	}
	return r.next.Review(ctx, req)
}
