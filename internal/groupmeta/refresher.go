// Package groupmeta implements C6: the stale-metadata refresh policy
// applied to groups on read, using the owning bot's own client.
package groupmeta

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/store"
)

// staleAfter is the refresh TTL (spec §4.6).
const staleAfter = 7 * 24 * time.Hour

// Refresher is stateless; it is safe for concurrent use.
type Refresher struct {
	// ClientForBot resolves the MessagingClient bound to a bot's token.
	// Required so a refresh always calls get_chat via the owning bot,
	// not some other bot's session (spec §4.6).
	ClientForBot func(botID uuid.UUID) messaging.Client
}

// Refresh applies the policy of spec §4.6 to one group: if it qualifies
// as stale and is bot-bound, fetch fresh metadata and persist it via the
// direct-UPDATE repo method. SDK failures are logged and swallowed.
func (r *Refresher) Refresh(ctx context.Context, uow store.UnitOfWork, g *store.Group, now time.Time) {
	if g.AssignedBotID == nil {
		return
	}
	if !needsRefresh(g, now) {
		return
	}

	client := r.ClientForBot(*g.AssignedBotID)
	if client == nil {
		return
	}

	chat, err := client.GetChat(ctx, g.TgChatID)
	if err != nil {
		slog.Warn("group metadata refresh failed", "group_id", g.ID, "error", err)
		return
	}

	title := g.Title
	if chat.Title != "" {
		title = chat.Title
	}
	username := g.Username
	if chat.Username != "" {
		username = chat.Username
	}

	if err := uow.Groups().UpdateMetadata(ctx, g.ID, title, username, now); err != nil {
		slog.Warn("failed to persist refreshed group metadata", "group_id", g.ID, "error", err)
		return
	}
	g.Title = title
	g.Username = username
	g.MetadataRefreshedAt = &now
}

func needsRefresh(g *store.Group, now time.Time) bool {
	if g.Title == "" && g.Username == "" {
		return true
	}
	if g.MetadataRefreshedAt == nil {
		return true
	}
	return now.Sub(*g.MetadataRefreshedAt) >= staleAfter
}
