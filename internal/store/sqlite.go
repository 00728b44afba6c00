package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.MemoryStore on an embedded SQLite database.
// Timestamps are stored as unix nanoseconds so ordering stays numeric.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for i, stmt := range sqliteMigrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, m *domain.Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Topics == nil {
		m.Topics = []string{}
	}
	topics, err := json.Marshal(m.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (`+memoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.UserID, string(m.Class), m.Summary, string(topics), m.ImportanceScore,
		m.OriginConversationID, m.OriginMessageID,
		m.CreatedAt.UnixNano(), m.UpdatedAt.UnixNano(), m.LastReferencedAt.UnixNano(),
		m.ReferenceCount, boolInt(m.Deleted), nanosOrNil(m.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND user_id = ?`,
		id.String(), userID,
	)
	m, err := scanSQLiteMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *SQLiteStore) UpdateSummary(ctx context.Context, userID string, id uuid.UUID, summary string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET summary = ?, updated_at = ? WHERE id = ? AND user_id = ? AND deleted = 0`,
		summary, at.UnixNano(), id.String(), userID,
	)
	return affectedOrNotFound(res, err)
}

func (s *SQLiteStore) Touch(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories
		 SET last_referenced_at = MAX(last_referenced_at, ?),
		     reference_count = reference_count + 1,
		     updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted = 0`,
		at.UnixNano(), at.UnixNano(), id.String(), userID,
	)
	return affectedOrNotFound(res, err)
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET deleted = 1, deleted_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted = 0`,
		at.UnixNano(), at.UnixNano(), id.String(), userID,
	)
	return affectedOrNotFound(res, err)
}

func (s *SQLiteStore) FindByTopicsAny(ctx context.Context, userID string, topics []string, limit int) ([]domain.Memory, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(topics)+2)
	args = append(args, userID)
	for _, t := range topics {
		args = append(args, t)
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT `+memoryColumns+`
		 FROM memories
		 WHERE user_id = ? AND deleted = 0
		   AND EXISTS (SELECT 1 FROM json_each(memories.topics) WHERE json_each.value IN (%s))
		 ORDER BY last_referenced_at DESC, id ASC
		 LIMIT ?`,
		placeholders(len(topics)),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find by topics query: %w", err)
	}
	return collectSQLiteMemories(rows)
}

func (s *SQLiteStore) FindRecent(ctx context.Context, userID string, limit int) ([]domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+`
		 FROM memories
		 WHERE user_id = ? AND deleted = 0
		 ORDER BY last_referenced_at DESC, id ASC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find recent query: %w", err)
	}
	return collectSQLiteMemories(rows)
}

func (s *SQLiteStore) ListDistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM memories WHERE deleted = 0 ORDER BY user_id`)
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

func (s *SQLiteStore) GetByUserForDecay(ctx context.Context, userID string) ([]domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND deleted = 0 AND class <> 'deep'`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectSQLiteMemories(rows)
}

func (s *SQLiteStore) MarkDeleted(ctx context.Context, userID string, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mark deleted: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE memories SET deleted = 1, deleted_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted = 0`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare mark deleted: %w", err)
	}
	defer stmt.Close()

	var flipped int64
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, at.UnixNano(), at.UnixNano(), id.String(), userID)
		if err != nil {
			return 0, fmt.Errorf("mark deleted %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		flipped += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mark deleted: %w", err)
	}
	return flipped, nil
}

func (s *SQLiteStore) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE deleted = 1 AND deleted_at IS NOT NULL AND deleted_at < ?`,
		before.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMemory(row rowScanner) (*domain.Memory, error) {
	var (
		m                                   domain.Memory
		id, class, topics                   string
		createdAt, updatedAt, lastReference int64
		deleted                             int
		deletedAt                           sql.NullInt64
	)
	err := row.Scan(
		&id, &m.UserID, &class, &m.Summary, &topics, &m.ImportanceScore, &m.OriginConversationID, &m.OriginMessageID,
		&createdAt, &updatedAt, &lastReference, &m.ReferenceCount, &deleted, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse memory id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(topics), &m.Topics); err != nil {
		return nil, fmt.Errorf("parse topics for %s: %w", id, err)
	}
	m.Class = domain.MemoryClass(class)
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	m.LastReferencedAt = fromNanos(lastReference)
	m.Deleted = deleted != 0
	if deletedAt.Valid {
		t := fromNanos(deletedAt.Int64)
		m.DeletedAt = &t
	}
	return &m, nil
}

func collectSQLiteMemories(rows *sql.Rows) ([]domain.Memory, error) {
	defer rows.Close()

	var memories []domain.Memory
	for rows.Next() {
		m, err := scanSQLiteMemory(rows)
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

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
