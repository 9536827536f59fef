package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

type attemptRepo struct {
	db dbtx
}

// Create inserts a PostAttempt. A foreign-key violation (the post was
// deleted mid-flight by a concurrent operator action) is reported as
// store.ErrNotFound so the scheduler can log and continue per spec §4.3
// tie-break rule and §7.
func (r *attemptRepo) Create(ctx context.Context, a store.NewAttempt) (*store.PostAttempt, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO post_attempts (id, post_id, bot_id, group_id, chat_id, message_id,
			success, deleted, error_code, error_msg, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9, $10, $10, 0)
		RETURNING id, post_id, bot_id, group_id, chat_id, message_id, success, deleted,
			error_code, error_msg, created_at, updated_at, version`,
		uuid.New(), a.PostID, a.BotID, a.GroupID, a.ChatID, a.MessageID,
		a.Success, a.ErrorCode, a.ErrorMsg, now)

	var pa store.PostAttempt
	err := row.Scan(&pa.ID, &pa.PostID, &pa.BotID, &pa.GroupID, &pa.ChatID, &pa.MessageID,
		&pa.Success, &pa.Deleted, &pa.ErrorCode, &pa.ErrorMsg, &pa.CreatedAt, &pa.UpdatedAt, &pa.Version)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return &pa, nil
}

func (r *attemptRepo) LastUndeletedWithMessage(ctx context.Context, postID uuid.UUID) (*store.PostAttempt, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, post_id, bot_id, group_id, chat_id, message_id, success, deleted,
			error_code, error_msg, created_at, updated_at, version
		FROM post_attempts
		WHERE post_id = $1 AND deleted = false AND message_id IS NOT NULL
		ORDER BY created_at DESC LIMIT 1`, postID)

	var pa store.PostAttempt
	err := row.Scan(&pa.ID, &pa.PostID, &pa.BotID, &pa.GroupID, &pa.ChatID, &pa.MessageID,
		&pa.Success, &pa.Deleted, &pa.ErrorCode, &pa.ErrorMsg, &pa.CreatedAt, &pa.UpdatedAt, &pa.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last undeleted attempt: %w", err)
	}
	return &pa, nil
}

func (r *attemptRepo) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE post_attempts SET deleted = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark attempt deleted: %w", err)
	}
	return nil
}

// isForeignKeyViolation checks the pgx/Postgres SQLSTATE for a foreign key
// violation (23503) without importing the pgconn error type, so it also
// degrades gracefully against other drivers in tests.
func isForeignKeyViolation(err error) bool {
	return containsSQLState(err, "23503")
}

func containsSQLState(err error, code string) bool {
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	for e := err; e != nil; {
		if ss, ok := e.(sqlStater); ok {
			s = ss
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return s != nil && s.SQLState() == code
}
