package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel and typed errors surfaced across the service boundary (spec §7).
var (
	// ErrNestedUnitOfWork is returned when a caller attempts to open a
	// second unit of work inside one already in progress (spec §5).
	ErrNestedUnitOfWork = errors.New("store: nested unit of work")

	// ErrSettingsMissing is returned by bootstrap when no current Setting
	// row exists (spec §4.5 step 1, §7).
	ErrSettingsMissing = errors.New("store: no current settings row")

	// ErrOptimisticConflict names a versioned UPDATE that affects zero
	// rows because the version column has moved (spec §5, §7). No
	// repository method in pg or storetest currently returns it.
	ErrOptimisticConflict = errors.New("store: optimistic concurrency conflict")

	// ErrNotFound is returned by single-row lookups that find nothing.
	ErrNotFound = errors.New("store: not found")
)

// IPConflictError is a typed bootstrap failure: another active bot already
// holds the detected server IP under a different token (spec §4.5 step 1).
type IPConflictError struct {
	ServerIP string
}

func (e *IPConflictError) Error() string {
	return "store: ip conflict for " + e.ServerIP
}

// UnitOfWork exposes the six repositories bound to one transactional scope.
type UnitOfWork interface {
	Bots() BotRepository
	Groups() GroupRepository
	Posts() PostRepository
	Attempts() AttemptRepository
	Settings() SettingRepository
	Users() UserRepository
}

// Store opens transactional units of work. WithinTransaction begins a
// transaction, runs fn with a UnitOfWork bound to it, commits on a nil
// return and rolls back otherwise. Nested calls return ErrNestedUnitOfWork
// (spec §5 "nested UoW entry is forbidden").
type Store interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	Close() error
}

// BotRepository is the C1 contract over the Bot entity.
type BotRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Bot, error)
	GetByToken(ctx context.Context, token string) (*Bot, error)
	GetByIP(ctx context.Context, serverIP string, activeOnly bool) (*Bot, error)
	HasIPConflict(ctx context.Context, serverIP, token string) (bool, error)
	Upsert(ctx context.Context, b *Bot) error
	UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkSelfDestruction(ctx context.Context, id uuid.UUID) error
	MarkDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error
	ClearForceUpdate(ctx context.Context, id uuid.UUID) error
	UpdateGitStatus(ctx context.Context, id uuid.UUID, branch, localCommit, remoteCommit string, commitsBehind int, checkedAt time.Time) error
	CountActivePosts(ctx context.Context, id uuid.UUID) (int, error)
}

// GroupRepository is the C1 contract over the Group entity.
type GroupRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Group, error)
	GetByChatID(ctx context.Context, tgChatID int64) (*Group, error)
	GetOrCreate(ctx context.Context, tgChatID int64, groupType GroupType) (*Group, error)
	// ListBound returns every group with a non-null assigned_bot_id
	// (spec §4.2 "all-bound-groups" selector).
	ListBound(ctx context.Context) ([]*Group, error)
	// ListByAssignedBot returns every group currently bound to botID
	// (spec §4.2 "groups-of-selected-bots" selector).
	ListByAssignedBot(ctx context.Context, botID uuid.UUID) ([]*Group, error)
	AssignToBot(ctx context.Context, botID uuid.UUID, chatIDs []int64) (*AssignResult, error)
	UnassignFromBot(ctx context.Context, botID uuid.UUID) (int, error)
	// UpdateMetadata bypasses optimistic locking (spec §4.1, §4.6, §9).
	UpdateMetadata(ctx context.Context, id uuid.UUID, title, username string, refreshedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostRepository is the C1 contract over the Post entity and the derived
// Distribution read model.
type PostRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Post, error)
	GetBySource(ctx context.Context, groupID uuid.UUID, sourceChannelUsername string, sourceMessageID int64) (*Post, error)

	// Create performs the compensating delete-then-insert described in
	// spec §4.1: any existing Post for the same (group, source channel,
	// source message) is removed before the new row is written.
	Create(ctx context.Context, p NewPost) (*Post, error)

	ListByBot(ctx context.Context, botID uuid.UUID, limit int) ([]*Post, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*Post, error)

	// RecordAttemptSuccess atomically increments CountAttempts and sets
	// LastAttemptAt on the post; the caller inserts the attempt row first
	// via AttemptRepository.Create (spec §4.3 step c, §5 "attempt
	// insertion strictly precedes the count increment").
	// The increment bypasses optimistic locking (spec §9).
	RecordAttemptSuccess(ctx context.Context, postID uuid.UUID, now time.Time) error
	MarkDone(ctx context.Context, postID uuid.UUID) error
	MarkError(ctx context.Context, postID uuid.UUID, lastError string, at time.Time) error

	BulkPauseByDistribution(ctx context.Context, name *string) (int, error)
	BulkResumeByDistribution(ctx context.Context, name *string) (int, error)
	BulkSetNotifyByDistribution(ctx context.Context, name *string, notify bool) (int, error)
	DeleteDistribution(ctx context.Context, name *string) (int, error)
	DeleteDistributionGroups(ctx context.Context, name *string, groupIDs []uuid.UUID) (int, error)
	// DeleteActiveByGroups deletes the current non-done post of each
	// given group, regardless of distribution (used by AddGroups to
	// steal groups away from their current distribution, spec §4.2).
	DeleteActiveByGroups(ctx context.Context, groupIDs []uuid.UUID) (int, error)

	ListDistributions(ctx context.Context, limit, offset int) ([]*Distribution, error)
	CountDistributions(ctx context.Context) (int, error)
	GetDistributionSummary(ctx context.Context, name *string) (*Distribution, error)
	GetDistributionContext(ctx context.Context, name *string) (*DistributionContext, error)

	// GroupsDistributionUsage maps each given group to the distribution
	// name of its current non-done post, if any (spec §4.1, §4.2).
	GroupsDistributionUsage(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID]*string, error)

	UnassignByBot(ctx context.Context, botID uuid.UUID) (int, error)
	PauseByBot(ctx context.Context, botID uuid.UUID) (int, error)
}

// AttemptRepository is the C1 contract over PostAttempt.
type AttemptRepository interface {
	Create(ctx context.Context, a NewAttempt) (*PostAttempt, error)
	LastUndeletedWithMessage(ctx context.Context, postID uuid.UUID) (*PostAttempt, error)
	MarkDeleted(ctx context.Context, id uuid.UUID) error
}

// SettingRepository is the C1 contract over Setting.
type SettingRepository interface {
	GetCurrent(ctx context.Context) (*Setting, error)
	EnsureCurrent(ctx context.Context) (*Setting, error)
}

// UserRepository is the C1 contract over User.
type UserRepository interface {
	ListSuperuserIDs(ctx context.Context, limit int) ([]int64, error)
}
