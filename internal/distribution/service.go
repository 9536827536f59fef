// Package distribution implements C2: the bulk distribution commands
// (create/pause/resume/notify/delete/extend/shrink) laid on top of the
// group-name derived Distribution view (spec §4.2).
package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

// ErrNoTargets is returned when a create request's target selector
// resolves to an empty group set.
var ErrNoTargets = errors.New("distribution: target selector resolved no groups")

// Mode is the create-time collision policy (spec §4.2).
type Mode string

const (
	ModeCreate  Mode = "create"
	ModeReplace Mode = "replace"
)

// Selector picks which groups a Create call targets (spec §4.2).
type Selector struct {
	AllBoundGroups bool
	ChatIDs        []int64
	BotIDs         []uuid.UUID
}

// Source names the origin channel and message a distribution forwards.
type Source struct {
	ChannelUsername string
	ChannelID       *int64
	MessageID       int64
}

// PostSettings are the per-post knobs copied onto every created Post
// (spec §4.2, §3).
type PostSettings struct {
	PauseBetweenAttemptsS int64
	DeleteLastAttempt     bool
	PinAfterPost          bool
	NumAttemptForPinPost  *int64
	TargetAttempts        int64
	NotifyOnFailure       bool
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	Name     *string
	Mode     Mode
	Selector Selector
	Source   Source
	Settings PostSettings
}

// CreateResult reports what Create did, including groups skipped for
// lacking a bot binding (spec §4.2 "groups without binding are skipped
// and reported").
type CreateResult struct {
	DistributionName *string
	Created          int
	SkippedUnbound   []uuid.UUID
}

// Service implements the distribution commands over a store.Store.
type Service struct {
	st store.Store
	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Service.
func New(st store.Store) *Service {
	return &Service{st: st, now: time.Now}
}

// Create resolves the target selector, optionally clears existing non-done
// Posts of those groups (replace mode), then creates one Post per
// bot-bound group (spec §4.2).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	name := req.Name
	if name == nil {
		generated := s.generateName()
		name = &generated
	}

	result := &CreateResult{DistributionName: name}

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		groupIDs, err := s.resolveSelector(ctx, uow, req.Selector)
		if err != nil {
			return err
		}
		if len(groupIDs) == 0 {
			return ErrNoTargets
		}

		if req.Mode == ModeReplace {
			// Clears all non-done Posts of these groups regardless of
			// which distribution they currently belong to (spec §4.2);
			// DeleteDistributionGroups is name-scoped and would miss
			// groups already bound to a different distribution.
			if _, err := uow.Posts().DeleteActiveByGroups(ctx, groupIDs); err != nil {
				return fmt.Errorf("replace mode predelete: %w", err)
			}
		}

		for _, gid := range groupIDs {
			g, err := uow.Groups().Get(ctx, gid)
			if err != nil {
				return err
			}
			if g.AssignedBotID == nil {
				result.SkippedUnbound = append(result.SkippedUnbound, gid)
				continue
			}

			_, err = uow.Posts().Create(ctx, store.NewPost{
				GroupID:               gid,
				BotID:                 g.AssignedBotID,
				TargetChatID:          g.TgChatID,
				DistributionName:      name,
				SourceChannelUsername: req.Source.ChannelUsername,
				SourceChannelID:       req.Source.ChannelID,
				SourceMessageID:       req.Source.MessageID,
				TargetAttempts:        req.Settings.TargetAttempts,
				DeleteLastAttempt:     req.Settings.DeleteLastAttempt,
				PinAfterPost:          req.Settings.PinAfterPost,
				NumAttemptForPinPost:  req.Settings.NumAttemptForPinPost,
				PauseBetweenAttemptsS: req.Settings.PauseBetweenAttemptsS,
				NotifyOnFailure:       req.Settings.NotifyOnFailure,
			})
			if err != nil {
				return fmt.Errorf("create post for group %s: %w", gid, err)
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveSelector turns a Selector into a concrete []uuid.UUID group id
// list (spec §4.2 "target selector resolution").
func (s *Service) resolveSelector(ctx context.Context, uow store.UnitOfWork, sel Selector) ([]uuid.UUID, error) {
	if sel.AllBoundGroups {
		groups, err := uow.Groups().ListBound(ctx)
		if err != nil {
			return nil, err
		}
		return idsOf(groups), nil
	}

	var groupIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			groupIDs = append(groupIDs, id)
		}
	}

	for _, chatID := range sel.ChatIDs {
		g, err := uow.Groups().GetByChatID(ctx, chatID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, err
		}
		add(g.ID)
	}

	for _, botID := range sel.BotIDs {
		groups, err := uow.Groups().ListByAssignedBot(ctx, botID)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			add(g.ID)
		}
	}

	return groupIDs, nil
}

func idsOf(groups []*store.Group) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// generateName auto-generates a distribution name from the current local
// time (spec §4.2 "auto-generated from current local time if omitted").
func (s *Service) generateName() string {
	return "dist-" + s.now().Format("20060102-150405")
}

// List returns a page of distributions.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*store.Distribution, int, error) {
	var (
		items []*store.Distribution
		total int
	)
	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		items, err = uow.Posts().ListDistributions(ctx, limit, offset)
		if err != nil {
			return err
		}
		total, err = uow.Posts().CountDistributions(ctx)
		return err
	})
	return items, total, err
}

// Summary renders the operator-facing label plus per-status counts for
// one distribution (spec §4.2 "List / summarize").
func (s *Service) Summary(ctx context.Context, name *string) (*store.Distribution, string, error) {
	var d *store.Distribution
	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		d, err = uow.Posts().GetDistributionSummary(ctx, name)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return d, SourceLabel(d.SourceChannelUsername, d.SourceChannelID, d.SourceMessageID), nil
}

// SourceLabel reconstructs the operator-facing source reference: a public
// t.me deep link when a username exists, else the private-channel slug
// form (spec §4.2).
func SourceLabel(username string, channelID *int64, messageID int64) string {
	if username != "" {
		return fmt.Sprintf("t.me/%s/%d", username, messageID)
	}
	if channelID != nil {
		return fmt.Sprintf("t.me/c/%s/%d", strings.TrimPrefix(fmt.Sprintf("%d", *channelID), "-100"), messageID)
	}
	return fmt.Sprintf("message %d", messageID)
}

// Pause bulk-pauses every active/error Post in the named distribution.
func (s *Service) Pause(ctx context.Context, name *string) (int, error) {
	return s.bulk(ctx, func(uow store.UnitOfWork) (int, error) {
		return uow.Posts().BulkPauseByDistribution(ctx, name)
	})
}

// Resume bulk-resumes every paused Post in the named distribution.
func (s *Service) Resume(ctx context.Context, name *string) (int, error) {
	return s.bulk(ctx, func(uow store.UnitOfWork) (int, error) {
		return uow.Posts().BulkResumeByDistribution(ctx, name)
	})
}

// SetNotify toggles NotifyOnFailure across the named distribution.
func (s *Service) SetNotify(ctx context.Context, name *string, notify bool) (int, error) {
	return s.bulk(ctx, func(uow store.UnitOfWork) (int, error) {
		return uow.Posts().BulkSetNotifyByDistribution(ctx, name, notify)
	})
}

// Delete removes every Post in the named distribution (cascades to
// attempts).
func (s *Service) Delete(ctx context.Context, name *string) (int, error) {
	return s.bulk(ctx, func(uow store.UnitOfWork) (int, error) {
		return uow.Posts().DeleteDistribution(ctx, name)
	})
}

func (s *Service) bulk(ctx context.Context, fn func(uow store.UnitOfWork) (int, error)) (int, error) {
	var n int
	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		n, err = fn(uow)
		return err
	})
	return n, err
}

// AddGroupsResult reports the outcome of AddGroups.
type AddGroupsResult struct {
	Added          int
	SkippedUnbound []uuid.UUID
}

// AddGroups implements spec §4.2 "Add groups to distribution": replicate
// the distribution's earliest-member config onto fresh Posts for the
// given groups, stealing any group currently bound to a different
// distribution first so the one-non-done-post-per-group invariant holds.
func (s *Service) AddGroups(ctx context.Context, name *string, groupIDs []uuid.UUID) (*AddGroupsResult, error) {
	result := &AddGroupsResult{}

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		distCtx, err := uow.Posts().GetDistributionContext(ctx, name)
		if err != nil {
			return fmt.Errorf("load distribution context: %w", err)
		}

		usage, err := uow.Posts().GroupsDistributionUsage(ctx, groupIDs)
		if err != nil {
			return err
		}

		var stealFrom []uuid.UUID
		for _, gid := range groupIDs {
			if current, ok := usage[gid]; ok && !sameDistName(current, name) {
				stealFrom = append(stealFrom, gid)
			}
		}
		if len(stealFrom) > 0 {
			if _, err := uow.Posts().DeleteActiveByGroups(ctx, stealFrom); err != nil {
				return fmt.Errorf("steal groups from prior distribution: %w", err)
			}
		}

		for _, gid := range groupIDs {
			g, err := uow.Groups().Get(ctx, gid)
			if err != nil {
				return err
			}
			if g.AssignedBotID == nil {
				result.SkippedUnbound = append(result.SkippedUnbound, gid)
				continue
			}
			_, err = uow.Posts().Create(ctx, store.NewPost{
				GroupID:               gid,
				BotID:                 g.AssignedBotID,
				TargetChatID:          g.TgChatID,
				DistributionName:      distCtx.DistributionName,
				SourceChannelUsername: distCtx.SourceChannelUsername,
				SourceChannelID:       distCtx.SourceChannelID,
				SourceMessageID:       distCtx.SourceMessageID,
				TargetAttempts:        distCtx.TargetAttempts,
				DeleteLastAttempt:     distCtx.DeleteLastAttempt,
				PinAfterPost:          distCtx.PinAfterPost,
				NumAttemptForPinPost:  distCtx.NumAttemptForPinPost,
				PauseBetweenAttemptsS: distCtx.PauseBetweenAttemptsS,
				NotifyOnFailure:       distCtx.NotifyOnFailure,
			})
			if err != nil {
				return fmt.Errorf("create post for group %s: %w", gid, err)
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func sameDistName(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RemoveGroups implements spec §4.2 "Remove groups from distribution":
// delete_distribution_groups only, relying on the Post->attempt cascade.
func (s *Service) RemoveGroups(ctx context.Context, name *string, groupIDs []uuid.UUID) (int, error) {
	return s.bulk(ctx, func(uow store.UnitOfWork) (int, error) {
		return uow.Posts().DeleteDistributionGroups(ctx, name, groupIDs)
	})
}
