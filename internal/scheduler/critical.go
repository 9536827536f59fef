package scheduler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/notify"
	"github.com/devstz/autoposter-node/internal/store"
)

// handleCritical implements C4's Critical Handler (spec §4.4): notify
// admins, then delete the group (cascading away the post and its
// attempts). All three steps run under a fresh unit of work, independent
// of the dispatcher's own, using a short-lived client so admin-delivery
// failures never destabilize the scheduler's main client (spec §9).
func (s *Scheduler) handleCritical(ctx context.Context, p *store.Post, kind messaging.Kind, errMsg string) {
	client := s.client
	if s.freshClient != nil {
		client = s.freshClient()
	}

	botID := uuid.Nil
	if p.BotID != nil {
		botID = *p.BotID
	}

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		bot, err := uow.Bots().Get(ctx, botID)
		if err != nil {
			return err
		}
		group, err := uow.Groups().Get(ctx, p.GroupID)
		if err != nil {
			return err
		}

		adminIDs, err := uow.Users().ListSuperuserIDs(ctx, 100)
		if err != nil {
			return err
		}

		if len(adminIDs) > 0 {
			body := notify.DistributionFailure(bot.Username, bot.BotID, group.Title, group.TgChatID, sourceLabel(p), kind, errMsg)
			for _, adminID := range adminIDs {
				if err := s.limiter.Acquire(ctx); err != nil {
					break
				}
				if err := client.SendText(ctx, adminID, body); err != nil {
					slog.Warn("failed to notify admin of critical failure", "admin_id", adminID, "error", err)
				}
			}
		}

		return uow.Groups().Delete(ctx, p.GroupID)
	})
	if err != nil {
		slog.Error("critical handler failed", "post_id", p.ID, "error", err)
	}
}

// sourceLabel renders the alert template's "Post" line (spec §6.3):
// distribution_name if set, else the post's own id.
func sourceLabel(p *store.Post) string {
	if p.DistributionName != nil && *p.DistributionName != "" {
		return *p.DistributionName
	}
	return p.ID.String()
}
