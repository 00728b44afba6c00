package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMemoryNotFound = errors.New("memory not found")
	ErrNoTrigger      = errors.New("message carries no memory trigger")
	ErrUserIDMissing  = errors.New("user_id is required")
	ErrSummaryEmpty   = errors.New("summary is required")
	ErrInvalidClass   = errors.New("invalid memory class")
	ErrTextEmpty      = errors.New("text is required")
)

const DefaultCaptureTimeout = 30 * time.Second

// MemoryService ties capture, recall and reinforcement together for a single
// conversational turn.
type MemoryService struct {
	store      domain.MemoryStore
	clock      domain.Clock
	trigger    *TriggerClassifier
	summarizer *Summarizer
	retriever  *Retriever
	logger     *zap.Logger

	captureTimeout time.Duration
	wg             sync.WaitGroup
}

func NewMemoryService(ms domain.MemoryStore, clock domain.Clock, tc *TriggerClassifier, sum *Summarizer, ret *Retriever, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		store:          ms,
		clock:          clock,
		trigger:        tc,
		summarizer:     sum,
		retriever:      ret,
		logger:         logger,
		captureTimeout: DefaultCaptureTimeout,
	}
}

func (s *MemoryService) SetCaptureTimeout(d time.Duration) {
	if d > 0 {
		s.captureTimeout = d
	}
}

// Capture stores msg as a memory if it carries a trigger. An explicit class
// overrides whatever the summarizer assigned.
func (s *MemoryService) Capture(ctx context.Context, msg domain.Message, class domain.MemoryClass) (*domain.Memory, error) {
	if msg.UserID == "" {
		return nil, ErrUserIDMissing
	}
	if class != "" && !domain.ValidMemoryClass(string(class)) {
		return nil, ErrInvalidClass
	}
	if err := s.trigger.Check(msg.Text); err != nil {
		return nil, err
	}

	cand := s.summarizer.Summarize(ctx, msg.Text)
	if class == "" {
		class = cand.Class
	}
	if class == "" {
		class = classifyLocal(msg.Text)
	}

	now := s.clock.Now()
	m := &domain.Memory{
		ID:                   uuid.New(),
		UserID:               msg.UserID,
		Class:                class,
		Summary:              cand.Summary,
		Topics:               cand.Topics,
		ImportanceScore:      cand.ImportanceScore,
		OriginConversationID: msg.ConversationID,
		OriginMessageID:      msg.MessageID,
		CreatedAt:            now,
		UpdatedAt:            now,
		LastReferencedAt:     now,
	}
	if m.Topics == nil {
		m.Topics = []string{}
	}

	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	s.logger.Info("memory captured",
		zap.String("user_id", m.UserID),
		zap.String("memory_id", m.ID.String()),
		zap.String("class", string(m.Class)),
		zap.Int("topics", len(m.Topics)))
	return m, nil
}

// CaptureAsync runs Capture in the background, detached from the caller's
// context. Failures are logged and never reach the caller.
func (s *MemoryService) CaptureAsync(msg domain.Message) {
	if !s.trigger.ShouldCapture(msg.Text) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background capture panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.captureTimeout)
		defer cancel()

		if _, err := s.Capture(ctx, msg, ""); err != nil {
			s.logger.Warn("background capture failed",
				zap.String("user_id", msg.UserID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every background capture has finished.
func (s *MemoryService) Wait() {
	s.wg.Wait()
}

// PrepareTurn recalls memories for an incoming message, renders them as prompt
// context and queues the message for capture.
func (s *MemoryService) PrepareTurn(ctx context.Context, msg domain.Message, k int) ([]domain.Memory, string, error) {
	if msg.UserID == "" {
		return nil, "", ErrUserIDMissing
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, "", ErrTextEmpty
	}

	memories := s.retriever.Retrieve(ctx, msg.UserID, msg.Text, k)
	s.CaptureAsync(msg)

	if memories == nil {
		memories = []domain.Memory{}
	}
	return memories, BuildContext(memories), nil
}

// Recall is Retrieve without the capture side effect.
func (s *MemoryService) Recall(ctx context.Context, userID, query string, k int) ([]domain.Memory, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	memories := s.retriever.Retrieve(ctx, userID, query, k)
	if memories == nil {
		memories = []domain.Memory{}
	}
	return memories, nil
}

// Reinforce refreshes the memories in ids that the assistant reply referenced.
func (s *MemoryService) Reinforce(ctx context.Context, userID string, ids []uuid.UUID, reply string) ([]uuid.UUID, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}

	retrieved := make([]domain.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := s.store.GetByID(ctx, userID, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("failed to load memory for reinforcement",
					zap.String("memory_id", id.String()),
					zap.Error(err))
			}
			continue
		}
		if !m.Deleted {
			retrieved = append(retrieved, *m)
		}
	}

	refreshed := s.retriever.Reinforce(ctx, userID, retrieved, reply)
	if refreshed == nil {
		refreshed = []uuid.UUID{}
	}
	return refreshed, nil
}

func (s *MemoryService) Get(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	m, err := s.store.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMemoryNotFound
		}
		return nil, err
	}
	if m.Deleted {
		return nil, ErrMemoryNotFound
	}
	return m, nil
}

// List returns the user's live memories, most recently referenced first.
func (s *MemoryService) List(ctx context.Context, userID string, limit int) ([]domain.Memory, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	memories, err := s.store.FindRecent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if memories == nil {
		memories = []domain.Memory{}
	}
	return memories, nil
}

func (s *MemoryService) UpdateSummary(ctx context.Context, userID string, id uuid.UUID, summary string) (*domain.Memory, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	summary = domain.TruncateSummary(summary)
	if summary == "" {
		return nil, ErrSummaryEmpty
	}

	if err := s.store.UpdateSummary(ctx, userID, id, summary, s.clock.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMemoryNotFound
		}
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

func (s *MemoryService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if userID == "" {
		return ErrUserIDMissing
	}
	if err := s.store.SoftDelete(ctx, userID, id, s.clock.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMemoryNotFound
		}
		return err
	}
	s.logger.Info("memory deleted",
		zap.String("user_id", userID),
		zap.String("memory_id", id.String()))
	return nil
}
