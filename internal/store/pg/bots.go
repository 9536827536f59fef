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

type botRepo struct {
	db dbtx
}

const botColumns = `id, bot_id, username, name, token, server_ip, last_heartbeat_at,
	self_destruction, deactivated, settings_id, max_posts, tracked_branch,
	current_commit_hash, latest_available_commit_hash, commits_behind,
	last_update_check_at, force_update, created_at, updated_at, version`

func scanBot(row *sql.Row) (*store.Bot, error) {
	var b store.Bot
	err := row.Scan(&b.ID, &b.BotID, &b.Username, &b.Name, &b.Token, &b.ServerIP,
		&b.LastHeartbeatAt, &b.SelfDestruction, &b.Deactivated, &b.SettingsID, &b.MaxPosts,
		&b.TrackedBranch, &b.CurrentCommitHash, &b.LatestAvailableCommitHash, &b.CommitsBehind,
		&b.LastUpdateCheckAt, &b.ForceUpdate, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan bot: %w", err)
	}
	return &b, nil
}

func (r *botRepo) Get(ctx context.Context, id uuid.UUID) (*store.Bot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
	return scanBot(row)
}

func (r *botRepo) GetByToken(ctx context.Context, token string) (*store.Bot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE token = $1`, token)
	return scanBot(row)
}

func (r *botRepo) GetByIP(ctx context.Context, serverIP string, activeOnly bool) (*store.Bot, error) {
	q := `SELECT ` + botColumns + ` FROM bots WHERE server_ip = $1`
	if activeOnly {
		q += ` AND deactivated = false`
	}
	q += ` ORDER BY created_at DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, q, serverIP)
	return scanBot(row)
}

// HasIPConflict reports whether another active bot (different token)
// already holds serverIP, per spec §4.5 step 1.
func (r *botRepo) HasIPConflict(ctx context.Context, serverIP, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bots
			WHERE server_ip = $1 AND token != $2 AND deactivated = false
		)`, serverIP, token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ip conflict: %w", err)
	}
	return exists, nil
}

// Upsert inserts a new bot row or updates the existing one matched by
// token, used by heartbeat bootstrap (spec §4.5 step 1).
func (r *botRepo) Upsert(ctx context.Context, b *store.Bot) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO bots (id, bot_id, username, name, token, server_ip, settings_id, max_posts, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, 0)
		ON CONFLICT (token) DO UPDATE SET
			bot_id = EXCLUDED.bot_id,
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			server_ip = EXCLUDED.server_ip,
			settings_id = EXCLUDED.settings_id,
			updated_at = $9,
			version = bots.version + 1
		RETURNING id, created_at, updated_at, version`,
		b.ID, b.BotID, b.Username, b.Name, b.Token, b.ServerIP, b.SettingsID, b.MaxPosts, now)

	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.Version); err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}

func (r *botRepo) UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET last_heartbeat_at = $1, deactivated = false, updated_at = $1, version = version + 1
		WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

func (r *botRepo) MarkSelfDestruction(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET self_destruction = true, updated_at = now(), version = version + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark self destruction: %w", err)
	}
	return nil
}

func (r *botRepo) MarkDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET deactivated = $1, updated_at = now(), version = version + 1 WHERE id = $2`, deactivated, id)
	if err != nil {
		return fmt.Errorf("mark deactivated: %w", err)
	}
	return nil
}

// ClearForceUpdate must commit before the caller execs the update command
// (spec §4.5 step 4, S6): it issues a plain UPDATE, independent of version,
// since it races nothing but the operator's own next toggle.
func (r *botRepo) ClearForceUpdate(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bots SET force_update = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear force_update: %w", err)
	}
	return nil
}

func (r *botRepo) UpdateGitStatus(ctx context.Context, id uuid.UUID, branch, localCommit, remoteCommit string, commitsBehind int, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bots SET tracked_branch = $1, current_commit_hash = $2,
			latest_available_commit_hash = $3, commits_behind = $4,
			last_update_check_at = $5, updated_at = $5
		WHERE id = $6`, branch, localCommit, remoteCommit, commitsBehind, checkedAt, id)
	if err != nil {
		return fmt.Errorf("update git status: %w", err)
	}
	return nil
}

func (r *botRepo) CountActivePosts(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM posts WHERE bot_id = $1 AND status IN ('active','paused','error')`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active posts: %w", err)
	}
	return n, nil
}
