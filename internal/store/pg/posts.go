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

type postRepo struct {
	db dbtx
}

const postColumns = `id, group_id, bot_id, status, target_chat_id, distribution_name,
	source_channel_username, source_channel_id, source_message_id, last_attempt_at,
	last_error, count_attempts, target_attempts, delete_last_attempt, pin_after_post,
	num_attempt_for_pin_post, pause_between_attempts_s, notify_on_failure,
	created_at, updated_at, version`

func scanPost(row *sql.Row) (*store.Post, error) {
	var p store.Post
	err := row.Scan(&p.ID, &p.GroupID, &p.BotID, &p.Status, &p.TargetChatID, &p.DistributionName,
		&p.SourceChannelUsername, &p.SourceChannelID, &p.SourceMessageID, &p.LastAttemptAt,
		&p.LastError, &p.CountAttempts, &p.TargetAttempts, &p.DeleteLastAttempt, &p.PinAfterPost,
		&p.NumAttemptForPinPost, &p.PauseBetweenAttemptsS, &p.NotifyOnFailure,
		&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return &p, nil
}

func scanPostRows(rows *sql.Rows) ([]*store.Post, error) {
	defer rows.Close()
	var out []*store.Post
	for rows.Next() {
		var p store.Post
		if err := rows.Scan(&p.ID, &p.GroupID, &p.BotID, &p.Status, &p.TargetChatID, &p.DistributionName,
			&p.SourceChannelUsername, &p.SourceChannelID, &p.SourceMessageID, &p.LastAttemptAt,
			&p.LastError, &p.CountAttempts, &p.TargetAttempts, &p.DeleteLastAttempt, &p.PinAfterPost,
			&p.NumAttemptForPinPost, &p.PauseBetweenAttemptsS, &p.NotifyOnFailure,
			&p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *postRepo) Get(ctx context.Context, id uuid.UUID) (*store.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	return scanPost(row)
}

func (r *postRepo) GetBySource(ctx context.Context, groupID uuid.UUID, sourceChannelUsername string, sourceMessageID int64) (*store.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE group_id = $1 AND source_channel_username = $2 AND source_message_id = $3`,
		groupID, sourceChannelUsername, sourceMessageID)
	return scanPost(row)
}

// Create implements the compensating rule of spec §4.1: any existing Post
// for the same (group_id, source_channel_username, source_message_id) is
// deleted before the new row is inserted, so operator re-submission of the
// same source never trips the uniqueness invariant.
func (r *postRepo) Create(ctx context.Context, p store.NewPost) (*store.Post, error) {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM posts WHERE group_id = $1 AND source_channel_username = $2 AND source_message_id = $3`,
		p.GroupID, p.SourceChannelUsername, p.SourceMessageID)
	if err != nil {
		return nil, fmt.Errorf("create post: delete prior: %w", err)
	}

	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO posts (id, group_id, bot_id, status, target_chat_id, distribution_name,
			source_channel_username, source_channel_id, source_message_id, count_attempts,
			target_attempts, delete_last_attempt, pin_after_post, num_attempt_for_pin_post,
			pause_between_attempts_s, notify_on_failure, created_at, updated_at, version)
		VALUES ($1, $2, $3, 'active', $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $13, $14, $15, $15, 0)
		RETURNING `+postColumns,
		uuid.New(), p.GroupID, p.BotID, p.TargetChatID, p.DistributionName,
		p.SourceChannelUsername, p.SourceChannelID, p.SourceMessageID,
		p.TargetAttempts, p.DeleteLastAttempt, p.PinAfterPost, p.NumAttemptForPinPost,
		p.PauseBetweenAttemptsS, p.NotifyOnFailure, now)
	return scanPost(row)
}

func (r *postRepo) ListByBot(ctx context.Context, botID uuid.UUID, limit int) ([]*store.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+` FROM posts WHERE bot_id = $1 ORDER BY created_at DESC LIMIT $2`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by bot: %w", err)
	}
	return scanPostRows(rows)
}

func (r *postRepo) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*store.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+` FROM posts WHERE group_id = $1 ORDER BY created_at DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list by group: %w", err)
	}
	return scanPostRows(rows)
}

// RecordAttemptSuccess bumps count_attempts and last_attempt_at with a
// direct UPDATE, bypassing optimistic locking per spec §5/§9 so it never
// conflicts with a concurrent bulk op's version bump.
func (r *postRepo) RecordAttemptSuccess(ctx context.Context, postID uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE posts SET count_attempts = count_attempts + 1, last_attempt_at = $1, updated_at = $1
		WHERE id = $2`, now, postID)
	if err != nil {
		return fmt.Errorf("record attempt success: %w", err)
	}
	return nil
}

func (r *postRepo) MarkDone(ctx context.Context, postID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE posts SET status = 'done', updated_at = now(), version = version + 1 WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

func (r *postRepo) MarkError(ctx context.Context, postID uuid.UUID, lastError string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE posts SET status = 'error', last_error = $1, last_attempt_at = $2, updated_at = $2, version = version + 1
		WHERE id = $3`, lastError, at, postID)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

// distNameEquality builds the NULL-aware equality predicate spec §4.1
// requires for bulk distribution statements: NULL matches NULL only.
func distNameEquality(arg string) string {
	return "distribution_name IS NOT DISTINCT FROM " + arg
}

// BulkPauseByDistribution pauses every active or error Post of the
// distribution.
func (r *postRepo) BulkPauseByDistribution(ctx context.Context, name *string) (int, error) {
	q := fmt.Sprintf(`
		UPDATE posts SET status = 'paused', updated_at = now(), version = version + 1
		WHERE status IN ('active','error') AND %s`, distNameEquality("$1"))
	result, err := r.db.ExecContext(ctx, q, name)
	if err != nil {
		return 0, fmt.Errorf("bulk pause: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *postRepo) BulkResumeByDistribution(ctx context.Context, name *string) (int, error) {
	return r.bulkUpdateStatus(ctx, name, "paused", "active")
}

func (r *postRepo) bulkUpdateStatus(ctx context.Context, name *string, from, to string) (int, error) {
	q := fmt.Sprintf(`
		UPDATE posts SET status = $1, updated_at = now(), version = version + 1
		WHERE status = $2 AND %s`, distNameEquality("$3"))
	result, err := r.db.ExecContext(ctx, q, to, from, name)
	if err != nil {
		return 0, fmt.Errorf("bulk update status %s->%s: %w", from, to, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *postRepo) BulkSetNotifyByDistribution(ctx context.Context, name *string, notify bool) (int, error) {
	q := fmt.Sprintf(`
		UPDATE posts SET notify_on_failure = $1, updated_at = now(), version = version + 1
		WHERE %s`, distNameEquality("$2"))
	result, err := r.db.ExecContext(ctx, q, notify, name)
	if err != nil {
		return 0, fmt.Errorf("bulk set notify: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *postRepo) DeleteDistribution(ctx context.Context, name *string) (int, error) {
	q := fmt.Sprintf(`DELETE FROM posts WHERE %s`, distNameEquality("$1"))
	result, err := r.db.ExecContext(ctx, q, name)
	if err != nil {
		return 0, fmt.Errorf("delete distribution: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *postRepo) DeleteDistributionGroups(ctx context.Context, name *string, groupIDs []uuid.UUID) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`DELETE FROM posts WHERE %s AND group_id = ANY($2::uuid[])`, distNameEquality("$1"))
	result, err := r.db.ExecContext(ctx, q, name, uuidArray(groupIDs))
	if err != nil {
		return 0, fmt.Errorf("delete distribution groups: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DeleteActiveByGroups removes the current non-done post of each group,
// irrespective of its distribution — used by AddGroups to steal a group
// away from whatever distribution it currently belongs to (spec §4.2).
func (r *postRepo) DeleteActiveByGroups(ctx context.Context, groupIDs []uuid.UUID) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM posts WHERE group_id = ANY($1::uuid[]) AND status IN ('active','paused','error')`,
		uuidArray(groupIDs))
	if err != nil {
		return 0, fmt.Errorf("delete active by groups: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// ListDistributions groups posts by distribution_name, sorted by earliest
// member created_at descending, per spec §4.1. The NULL-named distribution
// is ordered by its created_at like any other.
func (r *postRepo) ListDistributions(ctx context.Context, limit, offset int) ([]*store.Distribution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			min(id::text),
			distribution_name,
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'paused'),
			count(*) FILTER (WHERE status = 'error'),
			count(*) FILTER (WHERE status = 'done'),
			count(*),
			min(created_at),
			max(updated_at),
			(array_agg(source_channel_username ORDER BY created_at))[1],
			(array_agg(source_channel_id ORDER BY created_at))[1],
			(array_agg(source_message_id ORDER BY created_at))[1],
			bool_and(notify_on_failure)
		FROM posts
		GROUP BY distribution_name
		ORDER BY min(created_at) DESC NULLS LAST
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []*store.Distribution
	for rows.Next() {
		d := &store.Distribution{}
		if err := rows.Scan(&d.DistributionID, &d.DistributionName, &d.ActiveCount, &d.PausedCount,
			&d.ErrorCount, &d.DoneCount, &d.TotalPosts, &d.EarliestCreatedAt, &d.LatestUpdatedAt,
			&d.SourceChannelUsername, &d.SourceChannelID, &d.SourceMessageID, &d.NotifyOnFailure); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *postRepo) CountDistributions(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(DISTINCT distribution_name) FROM posts`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distributions: %w", err)
	}
	return n, nil
}

func (r *postRepo) GetDistributionSummary(ctx context.Context, name *string) (*store.Distribution, error) {
	q := fmt.Sprintf(`
		SELECT
			min(id::text), distribution_name,
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'paused'),
			count(*) FILTER (WHERE status = 'error'),
			count(*) FILTER (WHERE status = 'done'),
			count(*), min(created_at), max(updated_at),
			(array_agg(source_channel_username ORDER BY created_at))[1],
			(array_agg(source_channel_id ORDER BY created_at))[1],
			(array_agg(source_message_id ORDER BY created_at))[1],
			bool_and(notify_on_failure)
		FROM posts WHERE %s
		GROUP BY distribution_name`, distNameEquality("$1"))
	row := r.db.QueryRowContext(ctx, q, name)

	d := &store.Distribution{}
	err := row.Scan(&d.DistributionID, &d.DistributionName, &d.ActiveCount, &d.PausedCount,
		&d.ErrorCount, &d.DoneCount, &d.TotalPosts, &d.EarliestCreatedAt, &d.LatestUpdatedAt,
		&d.SourceChannelUsername, &d.SourceChannelID, &d.SourceMessageID, &d.NotifyOnFailure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution summary: %w", err)
	}
	return d, nil
}

// GetDistributionContext reconstructs the earliest surviving member's
// per-post configuration, used by AddGroups to replicate settings onto
// freshly created Posts (spec §4.2).
func (r *postRepo) GetDistributionContext(ctx context.Context, name *string) (*store.DistributionContext, error) {
	q := fmt.Sprintf(`
		SELECT distribution_name, source_channel_username, source_channel_id, source_message_id,
			pause_between_attempts_s, delete_last_attempt, pin_after_post, num_attempt_for_pin_post,
			target_attempts, notify_on_failure
		FROM posts WHERE %s
		ORDER BY created_at ASC LIMIT 1`, distNameEquality("$1"))
	row := r.db.QueryRowContext(ctx, q, name)

	dc := &store.DistributionContext{}
	err := row.Scan(&dc.DistributionName, &dc.SourceChannelUsername, &dc.SourceChannelID, &dc.SourceMessageID,
		&dc.PauseBetweenAttemptsS, &dc.DeleteLastAttempt, &dc.PinAfterPost, &dc.NumAttemptForPinPost,
		&dc.TargetAttempts, &dc.NotifyOnFailure)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution context: %w", err)
	}
	return dc, nil
}

// GroupsDistributionUsage maps each group to the distribution_name of its
// current non-done post, if any, per spec §4.1/§4.2.
func (r *postRepo) GroupsDistributionUsage(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID]*string, error) {
	usage := make(map[uuid.UUID]*string, len(groupIDs))
	if len(groupIDs) == 0 {
		return usage, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, distribution_name FROM posts
		WHERE group_id = ANY($1::uuid[]) AND status IN ('active','paused','error')`, uuidArray(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("groups distribution usage: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gid uuid.UUID
		var name *string
		if err := rows.Scan(&gid, &name); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		usage[gid] = name
	}
	return usage, rows.Err()
}

func (r *postRepo) UnassignByBot(ctx context.Context, botID uuid.UUID) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE posts SET bot_id = NULL, updated_at = now(), version = version + 1
		WHERE bot_id = $1 AND status IN ('active','paused','error')`, botID)
	if err != nil {
		return 0, fmt.Errorf("unassign by bot: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *postRepo) PauseByBot(ctx context.Context, botID uuid.UUID) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE posts SET status = 'paused', updated_at = now(), version = version + 1
		WHERE bot_id = $1 AND status = 'active'`, botID)
	if err != nil {
		return 0, fmt.Errorf("pause by bot: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// uuidArray renders a slice of uuid.UUID as a text array for ANY($n::uuid[]).
func uuidArray(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
