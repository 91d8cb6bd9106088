// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Domain errors. Compare with errors.Is; infrastructure failures are wrapped
// with ErrStoreUnavailable and keep their cause.
var (
	// ErrQuotaExceeded: daily discovery cap reached. Not retryable until the next day.
	ErrQuotaExceeded = errors.New("daily discovery quota exceeded")
	// ErrDuplicateShown: the candidate was already shown to the viewer on some day.
	ErrDuplicateShown = errors.New("candidate already shown")
	// ErrUniquenessConflict: a match insert hit the pair constraint. Reconciled
	// inside the ledger; it only escapes when reconciliation itself fails.
	ErrUniquenessConflict = errors.New("match uniqueness conflict")
	ErrNotAMutualMatch    = errors.New("cannot message non-mutual match")
	ErrStoreUnavailable   = errors.New("store unavailable")

	ErrNotParticipant  = errors.New("not a participant of this match")
	ErrProfileNotFound = errors.New("profile not found")
	ErrMatchNotFound   = errors.New("match not found")
	ErrSelfDecision    = errors.New("cannot decide on yourself")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSlowConsumer    = errors.New("subscriber too slow, events dropped")
)

// Store classifies a gorm/redis error. Not-found and duplicate-key errors pass
// through untouched so callers can branch on them; everything else is marked
// as ErrStoreUnavailable.
func Store(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrDuplicatedKey):
		return err
	case errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// Invalid wraps ErrInvalidArgument with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
