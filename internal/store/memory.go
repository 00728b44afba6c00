package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

const memoryColumns = `id, user_id, class, summary, topics, importance_score, origin_conversation_id, origin_message_id,
	created_at, updated_at, last_referenced_at, reference_count, deleted, deleted_at`

// MemoryStore is the Postgres implementation of domain.MemoryStore.
type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Topics == nil {
		m.Topics = []string{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO memories (`+memoryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.UserID, m.Class, m.Summary, m.Topics, m.ImportanceScore, m.OriginConversationID, m.OriginMessageID,
		m.CreatedAt, m.UpdatedAt, m.LastReferencedAt, m.ReferenceCount, m.Deleted, m.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	m, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) UpdateSummary(ctx context.Context, userID string, id uuid.UUID, summary string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET summary = $1, updated_at = $2 WHERE id = $3 AND user_id = $4 AND NOT deleted`,
		summary, at, id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories
		 SET last_referenced_at = GREATEST(last_referenced_at, $1),
		     reference_count = reference_count + 1,
		     updated_at = $1
		 WHERE id = $2 AND user_id = $3 AND NOT deleted`,
		at, id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET deleted = TRUE, deleted_at = $1, updated_at = $1
		 WHERE id = $2 AND user_id = $3 AND NOT deleted`,
		at, id, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) FindByTopicsAny(ctx context.Context, userID string, topics []string, limit int) ([]domain.Memory, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+`
		 FROM memories
		 WHERE user_id = $1 AND NOT deleted AND topics && $2
		 ORDER BY last_referenced_at DESC, id ASC
		 LIMIT $3`,
		userID, topics, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find by topics query: %w", err)
	}
	return collectMemories(rows)
}

func (s *MemoryStore) FindRecent(ctx context.Context, userID string, limit int) ([]domain.Memory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+`
		 FROM memories
		 WHERE user_id = $1 AND NOT deleted
		 ORDER BY last_referenced_at DESC, id ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find recent query: %w", err)
	}
	return collectMemories(rows)
}

func (s *MemoryStore) ListDistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM memories WHERE NOT deleted`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (s *MemoryStore) GetByUserForDecay(ctx context.Context, userID string) ([]domain.Memory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = $1 AND NOT deleted AND class <> 'deep'`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectMemories(rows)
}

// MarkDeleted flips every listed record in a single statement, so a user's batch
// either lands completely or not at all.
func (s *MemoryStore) MarkDeleted(ctx context.Context, userID string, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin mark deleted: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE memories SET deleted = TRUE, deleted_at = $1, updated_at = $1
		 WHERE user_id = $2 AND id = ANY($3::uuid[]) AND NOT deleted`,
		at, userID, strIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("mark deleted: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit mark deleted: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *MemoryStore) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM memories WHERE deleted AND deleted_at IS NOT NULL AND deleted_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanMemory(row pgx.Row) (*domain.Memory, error) {
	var m domain.Memory
	err := row.Scan(
		&m.ID, &m.UserID, &m.Class, &m.Summary, &m.Topics, &m.ImportanceScore, &m.OriginConversationID, &m.OriginMessageID,
		&m.CreatedAt, &m.UpdatedAt, &m.LastReferencedAt, &m.ReferenceCount, &m.Deleted, &m.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMemories(rows pgx.Rows) ([]domain.Memory, error) {
	defer rows.Close()

	var memories []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory rows: %w", err)
	}
	return memories, nil
}
