package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

type memBots struct{ m *MemStore }

func (r *memBots) Get(ctx context.Context, id uuid.UUID) (*store.Bot, error) {
	b, ok := r.m.bots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBots) GetByToken(ctx context.Context, token string) (*store.Bot, error) {
	for _, b := range r.m.bots {
		if b.Token == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memBots) GetByIP(ctx context.Context, serverIP string, activeOnly bool) (*store.Bot, error) {
	for _, b := range r.m.bots {
		if b.ServerIP != serverIP {
			continue
		}
		if activeOnly && b.Deactivated {
			continue
		}
		cp := *b
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (r *memBots) HasIPConflict(ctx context.Context, serverIP, token string) (bool, error) {
	for _, b := range r.m.bots {
		if b.ServerIP == serverIP && b.Token != token && !b.Deactivated {
			return true, nil
		}
	}
	return false, nil
}

func (r *memBots) Upsert(ctx context.Context, b *store.Bot) error {
	for _, existing := range r.m.bots {
		if existing.Token == b.Token {
			b.ID = existing.ID
			b.Base = existing.Base
			b.Version++
			b.UpdatedAt = now()
			r.m.bots[b.ID] = b
			return nil
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = now()
	b.UpdatedAt = b.CreatedAt
	r.m.bots[b.ID] = b
	return nil
}

func (r *memBots) UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	b, ok := r.m.bots[id]
	if !ok {
		return store.ErrNotFound
	}
	b.LastHeartbeatAt = &at
	b.UpdatedAt = now()
	return nil
}

func (r *memBots) MarkSelfDestruction(ctx context.Context, id uuid.UUID) error {
	b, ok := r.m.bots[id]
	if !ok {
		return store.ErrNotFound
	}
	b.SelfDestruction = true
	b.UpdatedAt = now()
	return nil
}

func (r *memBots) MarkDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error {
	b, ok := r.m.bots[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Deactivated = deactivated
	b.UpdatedAt = now()
	return nil
}

func (r *memBots) ClearForceUpdate(ctx context.Context, id uuid.UUID) error {
	b, ok := r.m.bots[id]
	if !ok {
		return store.ErrNotFound
	}
	b.ForceUpdate = false
	b.UpdatedAt = now()
	return nil
}

func (r *memBots) UpdateGitStatus(ctx context.Context, id uuid.UUID, branch, localCommit, remoteCommit string, commitsBehind int, checkedAt time.Time) error {
	b, ok := r.m.bots[id]
	if !ok {
		return store.ErrNotFound
	}
	b.TrackedBranch = branch
	b.CurrentCommitHash = localCommit
	b.LatestAvailableCommitHash = remoteCommit
	b.CommitsBehind = commitsBehind
	b.LastUpdateCheckAt = &checkedAt
	return nil
}

func (r *memBots) CountActivePosts(ctx context.Context, id uuid.UUID) (int, error) {
	n := 0
	for _, p := range r.m.posts {
		if p.BotID != nil && *p.BotID == id && p.Status != store.StatusDone {
			n++
		}
	}
	return n, nil
}
