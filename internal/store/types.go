// Package store defines the repository and unit-of-work contracts over the
// engine's six persistent entities (C1) and the domain types they carry.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Post.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusError  Status = "error"
	StatusDone   Status = "done"
)

// GroupType classifies the kind of chat a Group represents.
type GroupType string

const (
	GroupTypeGroup      GroupType = "group"
	GroupTypeSupergroup GroupType = "supergroup"
	GroupTypeChannel    GroupType = "channel"
)

// DrainMode controls how a bot's posts are freed when the bot is removed.
type DrainMode int

const (
	DrainInstant  DrainMode = 0
	DrainGraceful DrainMode = 1
)

// Base carries the fields every entity shares.
type Base struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// Bot is the node's identity on the messaging platform.
type Bot struct {
	Base

	BotID                     int64
	Username                  string
	Name                      string
	Token                     string
	ServerIP                  string
	LastHeartbeatAt           *time.Time
	SelfDestruction           bool
	Deactivated               bool
	SettingsID                *uuid.UUID
	MaxPosts                  int
	TrackedBranch             string
	CurrentCommitHash         string
	LatestAvailableCommitHash string
	CommitsBehind             int
	LastUpdateCheckAt         *time.Time
	ForceUpdate               bool
}

// TelegramID derives the display-only token-prefix identifier (spec §3,
// §9 open question: the platform numeric BotID is canonical everywhere else).
func (b *Bot) TelegramID() string {
	for i := 0; i < len(b.Token); i++ {
		if b.Token[i] == ':' {
			return b.Token[:i]
		}
	}
	return b.Token
}

// Group is a target chat a bot may forward into.
type Group struct {
	Base

	TgChatID            int64
	Type                GroupType
	Title               string
	Username            string
	LastPostAt          *time.Time
	AssignedBotID       *uuid.UUID
	MetadataRefreshedAt *time.Time
}

// Setting is a named profile of runtime tunables.
type Setting struct {
	Base

	Name                string
	IsCurrent           bool
	HeartbeatIntervalS  int
	OnlineThresholdS    int
	OfflineThresholdS   int
	PaginationSize      int
	MaxPostsPerBot      int
	NotifyRightsError   bool
	NotifyFailures      bool
	RetentionEnabled    bool
	RetentionDays       int
	DefaultDrainMode    DrainMode
}

// Post is a single scheduled forward instance targeting one group.
type Post struct {
	Base

	GroupID               uuid.UUID
	BotID                 *uuid.UUID
	Status                Status
	TargetChatID          int64
	DistributionName      *string
	SourceChannelUsername string
	SourceChannelID       *int64
	SourceMessageID       int64
	LastAttemptAt         *time.Time
	LastError             *string
	CountAttempts         int64
	TargetAttempts        int64
	DeleteLastAttempt     bool
	PinAfterPost          bool
	NumAttemptForPinPost  *int64
	PauseBetweenAttemptsS int64
	NotifyOnFailure       bool
}

// Eligible reports whether the post is a candidate for the current tick,
// per spec §4.3 step 3.
func (p *Post) Eligible(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.TargetAttempts >= 0 && p.CountAttempts >= p.TargetAttempts {
		return false
	}
	if p.LastAttemptAt == nil {
		return true
	}
	return !now.Before(p.LastAttemptAt.Add(time.Duration(p.PauseBetweenAttemptsS) * time.Second))
}

// ShouldPin reports whether a successful attempt that just brought
// CountAttempts to this value should trigger a pin, per spec §4.3 step c
// and the boundary rule in spec §8.
func (p *Post) ShouldPin() bool {
	if !p.PinAfterPost {
		return false
	}
	if p.NumAttemptForPinPost == nil || *p.NumAttemptForPinPost <= 1 {
		return true
	}
	return p.CountAttempts%*p.NumAttemptForPinPost == 0
}

// PostAttempt is evidence of one physical outbound forward try.
type PostAttempt struct {
	Base

	PostID    uuid.UUID
	BotID     *uuid.UUID
	GroupID   *uuid.UUID
	ChatID    int64
	MessageID *int64
	Success   bool
	Deleted   bool
	ErrorCode *string
	ErrorMsg  *string
}

// User is a platform account, tracked only to identify admins.
type User struct {
	Base

	UserID      int64
	Username    string
	IsSuperuser bool
	FullName    string
	Meta        map[string]any
}

// Distribution is the derived (non-physical) grouping of Posts sharing a
// DistributionName, per spec §3.
type Distribution struct {
	DistributionID        string
	DistributionName       *string
	ActiveCount            int
	PausedCount            int
	ErrorCount             int
	DoneCount              int
	TotalPosts             int
	EarliestCreatedAt      time.Time
	LatestUpdatedAt        time.Time
	SourceChannelUsername  string
	SourceChannelID        *int64
	SourceMessageID        int64
	NotifyOnFailure        bool
}

// AssignResult is the three-way disjoint partition returned by
// groups.assign_to_bot (spec §4.1).
type AssignResult struct {
	NewlyAssigned   []uuid.UUID
	AlreadyAssigned []uuid.UUID
	Reassigned      []ReassignedGroup
}

// ReassignedGroup names a group moved from one bot to another by
// assign_to_bot, along with the bot it was taken from.
type ReassignedGroup struct {
	GroupID      uuid.UUID
	PreviousBotID uuid.UUID
}

// DistributionContext is the earliest-member config snapshot used by
// AddGroups to replicate a distribution's settings onto new Posts
// (spec §4.2 "Add groups to distribution").
type DistributionContext struct {
	DistributionName      *string
	SourceChannelUsername  string
	SourceChannelID        *int64
	SourceMessageID         int64
	PauseBetweenAttemptsS   int64
	DeleteLastAttempt       bool
	PinAfterPost            bool
	NumAttemptForPinPost    *int64
	TargetAttempts          int64
	NotifyOnFailure         bool
}

// NewPost is the set of fields a caller supplies to posts.create; the rest
// are repository-managed defaults (status=active, count_attempts=0, ids,
// timestamps).
type NewPost struct {
	GroupID               uuid.UUID
	BotID                 *uuid.UUID
	TargetChatID          int64
	DistributionName      *string
	SourceChannelUsername string
	SourceChannelID       *int64
	SourceMessageID       int64
	TargetAttempts        int64
	DeleteLastAttempt     bool
	PinAfterPost          bool
	NumAttemptForPinPost  *int64
	PauseBetweenAttemptsS int64
	NotifyOnFailure       bool
}

// NewAttempt is the set of fields a caller supplies to attempts.create.
type NewAttempt struct {
	PostID    uuid.UUID
	BotID     *uuid.UUID
	GroupID   *uuid.UUID
	ChatID    int64
	MessageID *int64
	Success   bool
	ErrorCode *string
	ErrorMsg  *string
}
