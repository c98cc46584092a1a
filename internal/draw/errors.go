package draw

import "errors"

// Failure taxonomy of the draw engine. Callers branch with errors.Is; the
// request layer maps these onto response statuses.
var (
	// ErrInvalidArgument rejects malformed input before any lock is taken.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCapacityExhausted means the prize has no remaining quota, either at
	// preview time or at the confirm-time re-check. Retryable with a smaller
	// count once capacity frees up.
	ErrCapacityExhausted = errors.New("prize capacity exhausted")

	// ErrInsufficientCandidates means fewer eligible members exist than the
	// (clamped) requested count. The caller must reduce the count or widen
	// the scope.
	ErrInsufficientCandidates = errors.New("not enough eligible candidates")

	// ErrInvalidState rejects an operation against a batch or winner that is
	// not in the required lifecycle state, e.g. confirming a voided batch.
	ErrInvalidState = errors.New("not allowed in current state")

	// ErrBusy surfaces a lock-wait timeout. Nothing was committed, so the
	// whole operation is safe to retry.
	ErrBusy = errors.New("draw engine busy, try again")
)
