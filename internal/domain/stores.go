package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCompletionUnavailable = errors.New("completion service unavailable")
	ErrCompletionTimeout     = errors.New("completion service timed out")
	ErrInputTooShort         = errors.New("input too short to capture")
	ErrMalformedSummary      = errors.New("malformed summary")
	ErrStoreUnavailable      = errors.New("memory store unavailable")
	ErrSweepPartialFailure   = errors.New("sweep finished with failed users")
)

// MemoryStore persists memory records. Every read and write is scoped to a user.
type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Memory, error)
	UpdateSummary(ctx context.Context, userID string, id uuid.UUID, summary string, at time.Time) error
	// Touch refreshes last_referenced_at (never backwards) and increments reference_count.
	Touch(ctx context.Context, userID string, id uuid.UUID, at time.Time) error
	SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error

	// Retrieval. Both return non-deleted records ordered by last_referenced_at DESC, id ASC.
	FindByTopicsAny(ctx context.Context, userID string, topics []string, limit int) ([]Memory, error)
	FindRecent(ctx context.Context, userID string, limit int) ([]Memory, error)

	// Decay.
	ListDistinctUserIDs(ctx context.Context) ([]string, error)
	GetByUserForDecay(ctx context.Context, userID string) ([]Memory, error)
	// MarkDeleted flips the given records to deleted in one transaction and
	// returns how many were newly flipped.
	MarkDeleted(ctx context.Context, userID string, ids []uuid.UUID, at time.Time) (int64, error)
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
}

// CompletionClient is the opaque text-completion service.
// Implementations return errors wrapping ErrCompletionUnavailable or ErrCompletionTimeout.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
