package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

type memGroups struct{ m *MemStore }

func (r *memGroups) Get(ctx context.Context, id uuid.UUID) (*store.Group, error) {
	g, ok := r.m.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGroups) GetByChatID(ctx context.Context, tgChatID int64) (*store.Group, error) {
	for _, g := range r.m.groups {
		if g.TgChatID == tgChatID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memGroups) GetOrCreate(ctx context.Context, tgChatID int64, groupType store.GroupType) (*store.Group, error) {
	if g, err := r.GetByChatID(ctx, tgChatID); err == nil {
		return g, nil
	}
	g := &store.Group{Base: store.Base{ID: uuid.New(), CreatedAt: now(), UpdatedAt: now()}, TgChatID: tgChatID, Type: groupType}
	r.m.groups[g.ID] = g
	cp := *g
	return &cp, nil
}

func (r *memGroups) ListBound(ctx context.Context) ([]*store.Group, error) {
	var out []*store.Group
	for _, g := range r.m.groups {
		if g.AssignedBotID != nil {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memGroups) ListByAssignedBot(ctx context.Context, botID uuid.UUID) ([]*store.Group, error) {
	var out []*store.Group
	for _, g := range r.m.groups {
		if g.AssignedBotID != nil && *g.AssignedBotID == botID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memGroups) AssignToBot(ctx context.Context, botID uuid.UUID, chatIDs []int64) (*store.AssignResult, error) {
	res := &store.AssignResult{}
	for _, chatID := range chatIDs {
		g, err := r.GetByChatID(ctx, chatID)
		if err != nil {
			ng, _ := r.GetOrCreate(ctx, chatID, store.GroupTypeSupergroup)
			real := r.m.groups[ng.ID]
			real.AssignedBotID = &botID
			res.NewlyAssigned = append(res.NewlyAssigned, ng.ID)
			continue
		}
		real := r.m.groups[g.ID]
		switch {
		case real.AssignedBotID == nil:
			real.AssignedBotID = &botID
			res.NewlyAssigned = append(res.NewlyAssigned, real.ID)
		case *real.AssignedBotID == botID:
			res.AlreadyAssigned = append(res.AlreadyAssigned, real.ID)
		default:
			prev := *real.AssignedBotID
			real.AssignedBotID = &botID
			res.Reassigned = append(res.Reassigned, store.ReassignedGroup{GroupID: real.ID, PreviousBotID: prev})
		}
	}
	return res, nil
}

func (r *memGroups) UnassignFromBot(ctx context.Context, botID uuid.UUID) (int, error) {
	n := 0
	for _, g := range r.m.groups {
		if g.AssignedBotID != nil && *g.AssignedBotID == botID {
			g.AssignedBotID = nil
			n++
		}
	}
	return n, nil
}

func (r *memGroups) UpdateMetadata(ctx context.Context, id uuid.UUID, title, username string, refreshedAt time.Time) error {
	g, ok := r.m.groups[id]
	if !ok {
		return store.ErrNotFound
	}
	g.Title = title
	g.Username = username
	g.MetadataRefreshedAt = &refreshedAt
	return nil
}

func (r *memGroups) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.m.groups, id)
	for pid, p := range r.m.posts {
		if p.GroupID == id {
			delete(r.m.posts, pid)
		}
	}
	return nil
}
