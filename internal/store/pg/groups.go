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

type groupRepo struct {
	db dbtx
}

const groupColumns = `id, tg_chat_id, type, title, username, last_post_at,
	assigned_bot_id, metadata_refreshed_at, created_at, updated_at, version`

func scanGroup(row *sql.Row) (*store.Group, error) {
	var g store.Group
	err := row.Scan(&g.ID, &g.TgChatID, &g.Type, &g.Title, &g.Username, &g.LastPostAt,
		&g.AssignedBotID, &g.MetadataRefreshedAt, &g.CreatedAt, &g.UpdatedAt, &g.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &g, nil
}

func (r *groupRepo) Get(ctx context.Context, id uuid.UUID) (*store.Group, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id)
	return scanGroup(row)
}

func (r *groupRepo) GetByChatID(ctx context.Context, tgChatID int64) (*store.Group, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE tg_chat_id = $1`, tgChatID)
	return scanGroup(row)
}

func (r *groupRepo) GetOrCreate(ctx context.Context, tgChatID int64, groupType store.GroupType) (*store.Group, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO groups (id, tg_chat_id, type, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $4, 0)
		ON CONFLICT (tg_chat_id) DO UPDATE SET tg_chat_id = EXCLUDED.tg_chat_id
		RETURNING `+groupColumns, uuid.New(), tgChatID, groupType, now)
	return scanGroup(row)
}

// AssignToBot upserts a Group per chat id and binds it to botID, returning
// the three disjoint sets spec §4.1 requires: newly created/bound groups,
// groups already bound to this same bot, and groups moved over from a
// different bot (with the bot they were taken from).
func (r *groupRepo) AssignToBot(ctx context.Context, botID uuid.UUID, chatIDs []int64) (*store.AssignResult, error) {
	res := &store.AssignResult{}
	now := time.Now().UTC()

	for _, chatID := range chatIDs {
		var (
			groupID       uuid.UUID
			prevBotID     *uuid.UUID
			wasNew        bool
		)
		row := r.db.QueryRowContext(ctx, `SELECT id, assigned_bot_id FROM groups WHERE tg_chat_id = $1`, chatID)
		err := row.Scan(&groupID, &prevBotID)
		if errors.Is(err, sql.ErrNoRows) {
			groupID = uuid.New()
			_, err = r.db.ExecContext(ctx, `
				INSERT INTO groups (id, tg_chat_id, type, assigned_bot_id, created_at, updated_at, version)
				VALUES ($1, $2, $3, $4, $5, $5, 0)`,
				groupID, chatID, store.GroupTypeSupergroup, botID, now)
			if err != nil {
				return nil, fmt.Errorf("assign_to_bot insert: %w", err)
			}
			wasNew = true
		} else if err != nil {
			return nil, fmt.Errorf("assign_to_bot lookup: %w", err)
		} else {
			_, err = r.db.ExecContext(ctx, `
				UPDATE groups SET assigned_bot_id = $1, updated_at = $2, version = version + 1 WHERE id = $3`,
				botID, now, groupID)
			if err != nil {
				return nil, fmt.Errorf("assign_to_bot update: %w", err)
			}
		}

		switch {
		case wasNew:
			res.NewlyAssigned = append(res.NewlyAssigned, groupID)
		case prevBotID == nil:
			res.NewlyAssigned = append(res.NewlyAssigned, groupID)
		case *prevBotID == botID:
			res.AlreadyAssigned = append(res.AlreadyAssigned, groupID)
		default:
			res.Reassigned = append(res.Reassigned, store.ReassignedGroup{GroupID: groupID, PreviousBotID: *prevBotID})
		}
	}
	return res, nil
}

func scanGroupRow(rows *sql.Rows) (*store.Group, error) {
	var g store.Group
	err := rows.Scan(&g.ID, &g.TgChatID, &g.Type, &g.Title, &g.Username, &g.LastPostAt,
		&g.AssignedBotID, &g.MetadataRefreshedAt, &g.CreatedAt, &g.UpdatedAt, &g.Version)
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &g, nil
}

// ListBound returns every group with a non-null assigned_bot_id, ordered
// newest-first as the ix_groups_created_bound partial index on
// (created_at DESC) WHERE assigned_bot_id IS NOT NULL implies (spec §4.2 "all-bound-groups" selector, §6.2 index list).
func (r *groupRepo) ListBound(ctx context.Context) ([]*store.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM groups WHERE assigned_bot_id IS NOT NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bound groups: %w", err)
	}
	defer rows.Close()

	var out []*store.Group
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListByAssignedBot returns every group currently bound to botID (spec
// §4.2 "groups-of-selected-bots" selector).
func (r *groupRepo) ListByAssignedBot(ctx context.Context, botID uuid.UUID) ([]*store.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM groups WHERE assigned_bot_id = $1 ORDER BY created_at DESC`, botID)
	if err != nil {
		return nil, fmt.Errorf("list groups by assigned bot: %w", err)
	}
	defer rows.Close()

	var out []*store.Group
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *groupRepo) UnassignFromBot(ctx context.Context, botID uuid.UUID) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE groups SET assigned_bot_id = NULL, updated_at = now(), version = version + 1 WHERE assigned_bot_id = $1`, botID)
	if err != nil {
		return 0, fmt.Errorf("unassign from bot: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// UpdateMetadata writes title/username/metadata_refreshed_at via a direct
// UPDATE with no version check, so a concurrent posting update (which does
// bump the version) is never lost to a stale-write conflict (spec §4.1,
// §4.6, §9).
func (r *groupRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, title, username string, refreshedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE groups SET title = $1, username = $2, metadata_refreshed_at = $3 WHERE id = $4`,
		title, username, refreshedAt, id)
	if err != nil {
		return fmt.Errorf("update group metadata: %w", err)
	}
	return nil
}

func (r *groupRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}
