package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepSchedule = "@every 336h"
	DefaultSweepWorkers  = 4
	DefaultSweepTimeout  = 30 * time.Minute
)

type SweepResult struct {
	Users      int       `json:"users"`
	Scanned    int       `json:"scanned"`
	Deleted    int       `json:"deleted"`
	Failures   int       `json:"failures"`
	Skipped    int       `json:"skipped"`
	Purged     int64     `json:"purged"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// DecaySweeper soft-deletes memories whose retention has run out. Each user's
// batch commits on its own; a failed user is logged and the sweep moves on.
type DecaySweeper struct {
	store  domain.MemoryStore
	clock  domain.Clock
	policy domain.RetentionPolicy
	logger *zap.Logger

	workers    int
	schedule   string
	timeout    time.Duration
	purgeAfter time.Duration

	cron       *cron.Cron
	baseCtx    context.Context
	baseCancel context.CancelFunc
	running    atomic.Bool

	mu   sync.Mutex
	last *SweepResult
}

func NewDecaySweeper(ms domain.MemoryStore, clock domain.Clock, policy domain.RetentionPolicy, logger *zap.Logger) *DecaySweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &DecaySweeper{
		store:      ms,
		clock:      clock,
		policy:     policy,
		logger:     logger,
		workers:    DefaultSweepWorkers,
		schedule:   DefaultSweepSchedule,
		timeout:    DefaultSweepTimeout,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

func (s *DecaySweeper) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// SetSchedule takes a robfig/cron spec, e.g. "@every 336h" or "0 3 */14 * *".
func (s *DecaySweeper) SetSchedule(spec string) {
	if spec != "" {
		s.schedule = spec
	}
}

func (s *DecaySweeper) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetPurgeAfter enables physical erasure of records deleted longer than d ago.
func (s *DecaySweeper) SetPurgeAfter(d time.Duration) {
	s.purgeAfter = d
}

// Start registers the sweep on its schedule.
func (s *DecaySweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()

	s.logger.Info("decay sweeper started",
		zap.String("schedule", s.schedule),
		zap.Int("workers", s.workers))
	return nil
}

// Stop cancels an in-flight sweep and waits for it to return. Batches that
// already committed stay committed.
func (s *DecaySweeper) Stop() {
	s.baseCancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("decay sweeper stopped")
}

func (s *DecaySweeper) runScheduled() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sweep still running, skipping")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

// RunOnce sweeps at the clock's current time and logs the outcome.
func (s *DecaySweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	result, err := s.Sweep(ctx, s.clock.Now())

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Int("users", result.Users),
		zap.Int("scanned", result.Scanned),
		zap.Int("deleted", result.Deleted),
		zap.Int("failures", result.Failures),
		zap.Int("skipped", result.Skipped),
		zap.Int64("purged", result.Purged),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	}
	if err != nil {
		s.logger.Warn("sweep finished with errors", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("sweep complete", fields...)
	}
	return result, err
}

// LastResult returns the outcome of the most recent RunOnce, or nil.
func (s *DecaySweeper) LastResult() *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Sweep applies the retention policy to every user's memories as of now and
// returns how many records were newly marked deleted. The result is always
// non-nil. On cancellation, users not yet started and users whose batch was
// interrupted are counted as skipped, not failed.
func (s *DecaySweeper) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{StartedAt: s.clock.Now()}
	defer func() { result.FinishedAt = s.clock.Now() }()

	userIDs, err := s.store.ListDistinctUserIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: list users: %v", domain.ErrStoreUnavailable, err)
	}
	result.Users = len(userIDs)

	var (
		mu      sync.Mutex
		g       errgroup.Group
		started int
	)
	g.SetLimit(s.workers)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			scanned, deleted, err := s.sweepUser(ctx, userID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil && ctx.Err() != nil {
				// The user's batch rolled back with the cancellation.
				result.Skipped++
				return nil
			}
			result.Scanned += scanned
			if err != nil {
				result.Failures++
				s.logger.Warn("sweep failed for user",
					zap.String("user_id", userID),
					zap.Error(err))
				return nil
			}
			result.Deleted += deleted
			if deleted > 0 {
				s.logger.Debug("sweep complete for user",
					zap.String("user_id", userID),
					zap.Int("deleted", deleted))
			}
			return nil
		})
	}
	_ = g.Wait()
	result.Skipped += len(userIDs) - started

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("sweep interrupted: %w", err)
	}

	if s.purgeAfter > 0 {
		purged, err := s.store.PurgeDeleted(ctx, now.Add(-s.purgeAfter))
		if err != nil {
			s.logger.Warn("failed to purge deleted memories", zap.Error(err))
		} else {
			result.Purged = purged
		}
	}

	if result.Failures > 0 {
		return result, fmt.Errorf("%w: %d of %d users", domain.ErrSweepPartialFailure, result.Failures, result.Users)
	}
	return result, nil
}

func (s *DecaySweeper) sweepUser(ctx context.Context, userID string, now time.Time) (scanned, deleted int, err error) {
	memories, err := s.store.GetByUserForDecay(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	var expired []uuid.UUID
	for i := range memories {
		if s.policy.Expired(&memories[i], now) {
			expired = append(expired, memories[i].ID)
		}
	}
	if len(expired) == 0 {
		return len(memories), 0, nil
	}

	n, err := s.store.MarkDeleted(ctx, userID, expired, now)
	if err != nil {
		return len(memories), 0, err
	}
	return len(memories), int(n), nil
}
