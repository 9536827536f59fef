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

type settingRepo struct {
	db dbtx
}

const settingColumns = `id, name, is_current, heartbeat_interval_s, online_threshold_s,
	offline_threshold_s, pagination_size, max_posts_per_bot, notify_rights_error,
	notify_failures, retention_enabled, retention_days, default_drain_mode,
	created_at, updated_at, version`

func scanSetting(row *sql.Row) (*store.Setting, error) {
	var s store.Setting
	err := row.Scan(&s.ID, &s.Name, &s.IsCurrent, &s.HeartbeatIntervalS, &s.OnlineThresholdS,
		&s.OfflineThresholdS, &s.PaginationSize, &s.MaxPostsPerBot, &s.NotifyRightsError,
		&s.NotifyFailures, &s.RetentionEnabled, &s.RetentionDays, &s.DefaultDrainMode,
		&s.CreatedAt, &s.UpdatedAt, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan setting: %w", err)
	}
	return &s, nil
}

func (r *settingRepo) GetCurrent(ctx context.Context) (*store.Setting, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+settingColumns+` FROM settings WHERE is_current = true LIMIT 1`)
	return scanSetting(row)
}

// EnsureCurrent returns the current Setting, or ErrSettingsMissing if none
// exists — bootstrap never auto-creates one (spec §4.5 step 1, §7: "fail
// bootstrap of the node with a typed SettingsMissing error").
func (r *settingRepo) EnsureCurrent(ctx context.Context) (*store.Setting, error) {
	s, err := r.GetCurrent(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrSettingsMissing
	}
	return s, err
}

// seedDefault inserts a default current Setting row. Nothing in this
// repository calls it; bootstrap does not create Setting rows.
func seedDefault(ctx context.Context, db dbtx, name string) (*store.Setting, error) {
	now := time.Now().UTC()
	row := db.QueryRowContext(ctx, `
		INSERT INTO settings (id, name, is_current, heartbeat_interval_s, online_threshold_s,
			offline_threshold_s, pagination_size, max_posts_per_bot, notify_rights_error,
			notify_failures, retention_enabled, retention_days, default_drain_mode,
			created_at, updated_at, version)
		VALUES ($1, $2, true, 15, 45, 120, 10, 10, true, false, false, 180, 1, $3, $3, 0)
		RETURNING `+settingColumns, uuid.New(), name, now)
	return scanSetting(row)
}
