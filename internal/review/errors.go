package review

import "errors"

var (
	// ErrSourceUnavailable means the VCS could not produce a diff for a path.
	// The path is dropped from the run; it is not a failure.
	ErrSourceUnavailable = errors.New("change source unavailable")

	// ErrBackendTimeout, ErrBackendTransport and ErrMalformedResponse are
	// absorbed into INCONCLUSIVE verdicts and never abort a run.
	ErrBackendTimeout    = errors.New("review backend timed out")
	ErrBackendTransport  = errors.New("review backend transport error")
	ErrMalformedResponse = errors.New("malformed review backend response")

	// ErrAbandoned is returned when the run context is cancelled while a
	// backend call is in flight. No verdict is recorded for the call.
	ErrAbandoned = errors.New("review abandoned")

	// ErrReportFinalized is an aggregation invariant violation.
	ErrReportFinalized = errors.New("run report already finalized")
)
