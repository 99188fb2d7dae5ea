// Package postgres persists conversation threads and their message logs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

type ThreadRepository struct {
	db *sql.DB
}

var _ ports.ThreadStore = (*ThreadRepository)(nil)

func NewThreadRepository(db *sql.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ThreadRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api instance startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id TEXT PRIMARY KEY,
	current_turn INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS thread_messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL REFERENCES threads(thread_id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_name TEXT,
	tool_call_id TEXT,
	turn INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thread_messages_thread_created
	ON thread_messages(thread_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ThreadRepository) EnsureThread(ctx context.Context, threadID string) (*domain.Thread, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO threads (thread_id, current_turn, created_at, updated_at)
VALUES ($1, 0, $2, $2)
ON CONFLICT (thread_id) DO NOTHING
`, threadID, now)
	if err != nil {
		return nil, fmt.Errorf("ensure thread insert: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT thread_id, current_turn, created_at, updated_at
FROM threads
WHERE thread_id = $1
`, threadID)

	var thread domain.Thread
	if err := row.Scan(
		&thread.ThreadID,
		&thread.CurrentTurn,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("ensure thread select: %w", err)
	}
	return &thread, nil
}

func (r *ThreadRepository) NextTurn(ctx context.Context, threadID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE threads
SET current_turn = current_turn + 1, updated_at = $2
WHERE thread_id = $1
RETURNING current_turn
`, threadID, time.Now().UTC())

	var turn int
	if err := row.Scan(&turn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, ensureErr := r.EnsureThread(ctx, threadID); ensureErr != nil {
				return 0, ensureErr
			}
			return r.NextTurn(ctx, threadID)
		}
		return 0, fmt.Errorf("next turn: %w", err)
	}
	return turn, nil
}

func (r *ThreadRepository) AppendMessage(ctx context.Context, message domain.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO thread_messages (id, thread_id, role, content, tool_name, tool_call_id, turn, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, message.ID, message.ThreadID, message.Role, message.Content,
		nullableString(message.ToolName), nullableString(message.ToolCallID),
		message.Turn, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *ThreadRepository) ListRecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, thread_id, role, content, COALESCE(tool_name, ''), COALESCE(tool_call_id, ''), turn, created_at
FROM thread_messages
WHERE thread_id = $1
ORDER BY created_at DESC
LIMIT $2
`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.Role,
			&msg.Content,
			&msg.ToolName,
			&msg.ToolCallID,
			&msg.Turn,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
