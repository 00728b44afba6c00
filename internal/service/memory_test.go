package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/llm"
	"github.com/Harshitk-cp/mnemo/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockMemoryStore implements domain.MemoryStore for testing.
type mockMemoryStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*domain.Memory

	err         error
	failUsers   map[string]bool
	markedCalls int
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{
		memories:  make(map[uuid.UUID]*domain.Memory),
		failUsers: make(map[string]bool),
	}
}

func (m *mockMemoryStore) Create(ctx context.Context, mem *domain.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	cp := *mem
	m.memories[mem.ID] = &cp
	return nil
}

func (m *mockMemoryStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	mem, ok := m.memories[id]
	if !ok || mem.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *mockMemoryStore) live(userID string, id uuid.UUID) (*domain.Memory, error) {
	if m.err != nil {
		return nil, m.err
	}
	mem, ok := m.memories[id]
	if !ok || mem.UserID != userID || mem.Deleted {
		return nil, store.ErrNotFound
	}
	return mem, nil
}

func (m *mockMemoryStore) UpdateSummary(ctx context.Context, userID string, id uuid.UUID, summary string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, err := m.live(userID, id)
	if err != nil {
		return err
	}
	mem.Summary = summary
	mem.UpdatedAt = at
	return nil
}

func (m *mockMemoryStore) Touch(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, err := m.live(userID, id)
	if err != nil {
		return err
	}
	if at.After(mem.LastReferencedAt) {
		mem.LastReferencedAt = at
	}
	mem.ReferenceCount++
	mem.UpdatedAt = at
	return nil
}

func (m *mockMemoryStore) SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, err := m.live(userID, id)
	if err != nil {
		return err
	}
	mem.Deleted = true
	mem.DeletedAt = &at
	return nil
}

func (m *mockMemoryStore) sorted(userID string, keep func(*domain.Memory) bool) []domain.Memory {
	var out []domain.Memory
	for _, mem := range m.memories {
		if mem.UserID == userID && !mem.Deleted && keep(mem) {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastReferencedAt.Equal(out[j].LastReferencedAt) {
			return out[i].LastReferencedAt.After(out[j].LastReferencedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func limitTo(ms []domain.Memory, limit int) []domain.Memory {
	if limit > 0 && len(ms) > limit {
		return ms[:limit]
	}
	return ms
}

func (m *mockMemoryStore) FindByTopicsAny(ctx context.Context, userID string, topics []string, limit int) ([]domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[string]bool, len(topics))
	for _, t := range topics {
		want[t] = true
	}
	return limitTo(m.sorted(userID, func(mem *domain.Memory) bool {
		for _, t := range mem.Topics {
			if want[t] {
				return true
			}
		}
		return false
	}), limit), nil
}

func (m *mockMemoryStore) FindRecent(ctx context.Context, userID string, limit int) ([]domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return limitTo(m.sorted(userID, func(*domain.Memory) bool { return true }), limit), nil
}

func (m *mockMemoryStore) ListDistinctUserIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	seen := make(map[string]bool)
	var users []string
	for _, mem := range m.memories {
		if !mem.Deleted && !seen[mem.UserID] {
			seen[mem.UserID] = true
			users = append(users, mem.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *mockMemoryStore) GetByUserForDecay(ctx context.Context, userID string) ([]domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.failUsers[userID] {
		return nil, errors.New("connection reset")
	}
	return m.sorted(userID, func(mem *domain.Memory) bool {
		return mem.Class != domain.MemoryClassDeep
	}), nil
}

func (m *mockMemoryStore) MarkDeleted(ctx context.Context, userID string, ids []uuid.UUID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedCalls++
	var n int64
	for _, id := range ids {
		mem, ok := m.memories[id]
		if !ok || mem.UserID != userID || mem.Deleted {
			continue
		}
		mem.Deleted = true
		deletedAt := at
		mem.DeletedAt = &deletedAt
		n++
	}
	return n, nil
}

func (m *mockMemoryStore) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, mem := range m.memories {
		if mem.Deleted && mem.DeletedAt != nil && mem.DeletedAt.Before(before) {
			delete(m.memories, id)
			n++
		}
	}
	return n, nil
}

func (m *mockMemoryStore) Ping(ctx context.Context) error {
	return m.err
}

func (m *mockMemoryStore) get(id uuid.UUID) domain.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.memories[id]
}

func (m *mockMemoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memories)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(ms *mockMemoryStore, userID string, class domain.MemoryClass, summary string, topics []string, lastRef time.Time) *domain.Memory {
	m := &domain.Memory{
		ID:               uuid.New(),
		UserID:           userID,
		Class:            class,
		Summary:          summary,
		Topics:           topics,
		ImportanceScore:  0.7,
		CreatedAt:        lastRef,
		UpdatedAt:        lastRef,
		LastReferencedAt: lastRef,
	}
	_ = ms.Create(context.Background(), m)
	return m
}

func newTestMemoryService(ms *mockMemoryStore, client domain.CompletionClient, clock domain.Clock) *MemoryService {
	logger := zap.NewNop()
	return NewMemoryService(ms, clock,
		NewTriggerClassifier(0, nil),
		NewSummarizer(client, time.Second, logger),
		NewRetriever(ms, clock, 0, logger),
		logger)
}

func TestMemoryService_Capture(t *testing.T) {
	ms := newMockMemoryStore()
	client := llm.NewMockClient()
	client.Response = `{"summary":"User founded a robotics startup","topics":["robotics","startup"],"importance":0.9,"class":"deep"}`
	clock := newFixedClock(testEpoch)
	svc := newTestMemoryService(ms, client, clock)

	m, err := svc.Capture(context.Background(), domain.Message{
		UserID:         "u1",
		ConversationID: "c1",
		MessageID:      "m1",
		Text:           "I founded a robotics startup last year",
	}, "")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if m.Class != domain.MemoryClassDeep {
		t.Errorf("Class = %s, want deep", m.Class)
	}
	if m.Summary != "User founded a robotics startup" {
		t.Errorf("Summary = %q", m.Summary)
	}
	if !m.CreatedAt.Equal(testEpoch) || !m.LastReferencedAt.Equal(testEpoch) {
		t.Errorf("timestamps = %v / %v, want %v", m.CreatedAt, m.LastReferencedAt, testEpoch)
	}
	if m.ReferenceCount != 0 || m.Deleted {
		t.Errorf("new memory should be unreferenced and live: %+v", m)
	}
	if m.OriginConversationID != "c1" || m.OriginMessageID != "m1" {
		t.Errorf("origin = %q/%q", m.OriginConversationID, m.OriginMessageID)
	}
	if ms.count() != 1 {
		t.Errorf("stored %d memories, want 1", ms.count())
	}
}

func TestMemoryService_Capture_ClassOverride(t *testing.T) {
	ms := newMockMemoryStore()
	svc := newTestMemoryService(ms, llm.NewMockClient(), newFixedClock(testEpoch))

	m, err := svc.Capture(context.Background(), domain.Message{UserID: "u1", Text: "remember that I prefer tea"}, domain.MemoryClassRelationship)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if m.Class != domain.MemoryClassRelationship {
		t.Errorf("Class = %s, want relationship", m.Class)
	}
}

func TestMemoryService_Capture_Rejections(t *testing.T) {
	svc := newTestMemoryService(newMockMemoryStore(), llm.NewMockClient(), newFixedClock(testEpoch))

	tests := []struct {
		name  string
		msg   domain.Message
		class domain.MemoryClass
		want  error
	}{
		{"no user", domain.Message{Text: "remember my goal"}, "", ErrUserIDMissing},
		{"too short", domain.Message{UserID: "u1", Text: "goal"}, "", domain.ErrInputTooShort},
		{"no trigger", domain.Message{UserID: "u1", Text: "what is the weather like"}, "", ErrNoTrigger},
		{"bad class", domain.Message{UserID: "u1", Text: "remember my goal"}, "eternal", ErrInvalidClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Capture(context.Background(), tt.msg, tt.class)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMemoryService_Capture_StoreUnavailable(t *testing.T) {
	ms := newMockMemoryStore()
	ms.err = errors.New("disk full")
	svc := newTestMemoryService(ms, llm.NewMockClient(), newFixedClock(testEpoch))

	_, err := svc.Capture(context.Background(), domain.Message{UserID: "u1", Text: "remember my deadline is friday"}, "")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestMemoryService_Capture_FallbackOnCompletionFailure(t *testing.T) {
	ms := newMockMemoryStore()
	client := llm.NewMockClient()
	client.Error = domain.ErrCompletionUnavailable
	svc := newTestMemoryService(ms, client, newFixedClock(testEpoch))

	text := "I created a company called Lumen with my partner"
	m, err := svc.Capture(context.Background(), domain.Message{UserID: "u1", Text: text}, "")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if m.Summary != text {
		t.Errorf("Summary = %q, want raw text", m.Summary)
	}
	if m.Class != domain.MemoryClassRelationship {
		t.Errorf("Class = %s, want relationship", m.Class)
	}
}

func TestMemoryService_CaptureAsync(t *testing.T) {
	ms := newMockMemoryStore()
	client := llm.NewMockClient()
	svc := newTestMemoryService(ms, client, newFixedClock(testEpoch))

	svc.CaptureAsync(domain.Message{UserID: "u1", Text: "remember my sister's birthday is in May"})
	svc.CaptureAsync(domain.Message{UserID: "u1", Text: "nice weather today isn't it"})
	svc.Wait()

	if ms.count() != 1 {
		t.Errorf("stored %d memories, want 1", ms.count())
	}
	if client.CallCount() != 1 {
		t.Errorf("completion calls = %d, want 1", client.CallCount())
	}
}

func TestMemoryService_CaptureAsync_SwallowsStoreError(t *testing.T) {
	ms := newMockMemoryStore()
	ms.err = errors.New("down")
	svc := newTestMemoryService(ms, llm.NewMockClient(), newFixedClock(testEpoch))

	svc.CaptureAsync(domain.Message{UserID: "u1", Text: "remember my goal is to run a marathon"})
	svc.Wait()
}

func TestMemoryService_PrepareTurn(t *testing.T) {
	ms := newMockMemoryStore()
	svc := newTestMemoryService(ms, llm.NewMockClient(), newFixedClock(testEpoch))
	seed(ms, "u1", domain.MemoryClassDeep, "User runs a startup named Lumen", []string{"startup", "lumen"}, testEpoch.Add(-time.Hour))

	memories, prompt, err := svc.PrepareTurn(context.Background(), domain.Message{UserID: "u1", Text: "How is my startup doing?"}, 3)
	svc.Wait()
	if err != nil {
		t.Fatalf("PrepareTurn: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("recalled %d memories, want 1", len(memories))
	}
	if !strings.Contains(prompt, "[deep] User runs a startup named Lumen") {
		t.Errorf("context = %q", prompt)
	}
}

func TestMemoryService_PrepareTurn_Validation(t *testing.T) {
	svc := newTestMemoryService(newMockMemoryStore(), llm.NewMockClient(), newFixedClock(testEpoch))

	if _, _, err := svc.PrepareTurn(context.Background(), domain.Message{Text: "hi"}, 3); !errors.Is(err, ErrUserIDMissing) {
		t.Errorf("err = %v, want ErrUserIDMissing", err)
	}
	if _, _, err := svc.PrepareTurn(context.Background(), domain.Message{UserID: "u1", Text: "   "}, 3); !errors.Is(err, ErrTextEmpty) {
		t.Errorf("err = %v, want ErrTextEmpty", err)
	}
}

func TestMemoryService_Reinforce(t *testing.T) {
	ms := newMockMemoryStore()
	clock := newFixedClock(testEpoch)
	svc := newTestMemoryService(ms, llm.NewMockClient(), clock)
	hit := seed(ms, "u1", domain.MemoryClassShort, "User is moving to Berlin", []string{"berlin"}, testEpoch.Add(-48*time.Hour))
	miss := seed(ms, "u1", domain.MemoryClassShort, "User likes jazz", []string{"jazz"}, testEpoch.Add(-48*time.Hour))
	foreign := seed(ms, "u2", domain.MemoryClassShort, "User is moving to Berlin", []string{"berlin"}, testEpoch.Add(-48*time.Hour))

	refreshed, err := svc.Reinforce(context.Background(), "u1",
		[]uuid.UUID{hit.ID, miss.ID, foreign.ID, uuid.New()},
		"Since user is moving to berlin, here are some flat listings.")
	if err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if len(refreshed) != 1 || refreshed[0] != hit.ID {
		t.Fatalf("refreshed = %v, want [%s]", refreshed, hit.ID)
	}

	got := ms.get(hit.ID)
	if !got.LastReferencedAt.Equal(testEpoch) || got.ReferenceCount != 1 {
		t.Errorf("hit = %v refs=%d", got.LastReferencedAt, got.ReferenceCount)
	}
	if ms.get(miss.ID).ReferenceCount != 0 {
		t.Error("unreferenced memory should be untouched")
	}
	if ms.get(foreign.ID).ReferenceCount != 0 {
		t.Error("another user's memory should be untouched")
	}
}

func TestMemoryService_GetUpdateDelete(t *testing.T) {
	ms := newMockMemoryStore()
	clock := newFixedClock(testEpoch)
	svc := newTestMemoryService(ms, llm.NewMockClient(), clock)
	m := seed(ms, "u1", domain.MemoryClassDeep, "User is vegetarian", []string{"diet"}, testEpoch)

	if _, err := svc.Get(context.Background(), "u2", m.ID); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("cross-user Get err = %v, want ErrMemoryNotFound", err)
	}

	clock.Advance(time.Hour)
	updated, err := svc.UpdateSummary(context.Background(), "u1", m.ID, "  User is vegan  ")
	if err != nil {
		t.Fatalf("UpdateSummary: %v", err)
	}
	if updated.Summary != "User is vegan" {
		t.Errorf("Summary = %q", updated.Summary)
	}
	if !updated.UpdatedAt.Equal(testEpoch.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v", updated.UpdatedAt)
	}
	if _, err := svc.UpdateSummary(context.Background(), "u1", m.ID, " "); !errors.Is(err, ErrSummaryEmpty) {
		t.Errorf("err = %v, want ErrSummaryEmpty", err)
	}

	if err := svc.Delete(context.Background(), "u1", m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "u1", m.ID); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("Get after delete err = %v, want ErrMemoryNotFound", err)
	}
	if err := svc.Delete(context.Background(), "u1", m.ID); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("second Delete err = %v, want ErrMemoryNotFound", err)
	}
}

func TestMemoryService_List(t *testing.T) {
	ms := newMockMemoryStore()
	svc := newTestMemoryService(ms, llm.NewMockClient(), newFixedClock(testEpoch))
	older := seed(ms, "u1", domain.MemoryClassShort, "older", []string{"a"}, testEpoch.Add(-2*time.Hour))
	newer := seed(ms, "u1", domain.MemoryClassShort, "newer", []string{"b"}, testEpoch.Add(-time.Hour))
	seed(ms, "u2", domain.MemoryClassShort, "other", []string{"c"}, testEpoch)

	got, err := svc.List(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Errorf("List order wrong: %+v", got)
	}
}
