package storetest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

type memPosts struct{ m *MemStore }

func (r *memPosts) Get(ctx context.Context, id uuid.UUID) (*store.Post, error) {
	p, ok := r.m.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPosts) GetBySource(ctx context.Context, groupID uuid.UUID, sourceChannelUsername string, sourceMessageID int64) (*store.Post, error) {
	for _, p := range r.m.posts {
		if p.GroupID == groupID && p.SourceChannelUsername == sourceChannelUsername && p.SourceMessageID == sourceMessageID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memPosts) Create(ctx context.Context, np store.NewPost) (*store.Post, error) {
	for id, p := range r.m.posts {
		if p.GroupID == np.GroupID && p.SourceChannelUsername == np.SourceChannelUsername && p.SourceMessageID == np.SourceMessageID {
			delete(r.m.posts, id)
			for aid, a := range r.m.attempts {
				if a.PostID == id {
					delete(r.m.attempts, aid)
				}
			}
		}
	}
	p := &store.Post{
		Base:                  store.Base{ID: uuid.New(), CreatedAt: now(), UpdatedAt: now()},
		GroupID:               np.GroupID,
		BotID:                 np.BotID,
		Status:                store.StatusActive,
		TargetChatID:          np.TargetChatID,
		DistributionName:      np.DistributionName,
		SourceChannelUsername: np.SourceChannelUsername,
		SourceChannelID:       np.SourceChannelID,
		SourceMessageID:       np.SourceMessageID,
		TargetAttempts:        np.TargetAttempts,
		DeleteLastAttempt:     np.DeleteLastAttempt,
		PinAfterPost:          np.PinAfterPost,
		NumAttemptForPinPost:  np.NumAttemptForPinPost,
		PauseBetweenAttemptsS: np.PauseBetweenAttemptsS,
		NotifyOnFailure:       np.NotifyOnFailure,
	}
	r.m.posts[p.ID] = p
	cp := *p
	return &cp, nil
}

func (r *memPosts) ListByBot(ctx context.Context, botID uuid.UUID, limit int) ([]*store.Post, error) {
	var out []*store.Post
	for _, p := range r.m.posts {
		if p.BotID != nil && *p.BotID == botID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPosts) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*store.Post, error) {
	var out []*store.Post
	for _, p := range r.m.posts {
		if p.GroupID == groupID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPosts) RecordAttemptSuccess(ctx context.Context, postID uuid.UUID, at time.Time) error {
	p, ok := r.m.posts[postID]
	if !ok {
		return store.ErrNotFound
	}
	p.CountAttempts++
	p.LastAttemptAt = &at
	return nil
}

func (r *memPosts) MarkDone(ctx context.Context, postID uuid.UUID) error {
	p, ok := r.m.posts[postID]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = store.StatusDone
	p.Version++
	p.UpdatedAt = now()
	return nil
}

func (r *memPosts) MarkError(ctx context.Context, postID uuid.UUID, lastError string, at time.Time) error {
	p, ok := r.m.posts[postID]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = store.StatusError
	p.LastError = &lastError
	p.LastAttemptAt = &at
	p.Version++
	p.UpdatedAt = now()
	return nil
}

func (r *memPosts) BulkPauseByDistribution(ctx context.Context, name *string) (int, error) {
	n := 0
	for _, p := range r.m.posts {
		if strEq(p.DistributionName, name) && (p.Status == store.StatusActive || p.Status == store.StatusError) {
			p.Status = store.StatusPaused
			n++
		}
	}
	return n, nil
}

func (r *memPosts) BulkResumeByDistribution(ctx context.Context, name *string) (int, error) {
	n := 0
	for _, p := range r.m.posts {
		if strEq(p.DistributionName, name) && p.Status == store.StatusPaused {
			p.Status = store.StatusActive
			n++
		}
	}
	return n, nil
}

func (r *memPosts) BulkSetNotifyByDistribution(ctx context.Context, name *string, notify bool) (int, error) {
	n := 0
	for _, p := range r.m.posts {
		if strEq(p.DistributionName, name) {
			p.NotifyOnFailure = notify
			n++
		}
	}
	return n, nil
}

func (r *memPosts) DeleteDistribution(ctx context.Context, name *string) (int, error) {
	n := 0
	for id, p := range r.m.posts {
		if strEq(p.DistributionName, name) {
			delete(r.m.posts, id)
			n++
		}
	}
	return n, nil
}

func (r *memPosts) DeleteDistributionGroups(ctx context.Context, name *string, groupIDs []uuid.UUID) (int, error) {
	set := map[uuid.UUID]bool{}
	for _, g := range groupIDs {
		set[g] = true
	}
	n := 0
	for id, p := range r.m.posts {
		if set[p.GroupID] && strEq(p.DistributionName, name) {
			delete(r.m.posts, id)
			n++
		}
	}
	return n, nil
}

func (r *memPosts) DeleteActiveByGroups(ctx context.Context, groupIDs []uuid.UUID) (int, error) {
	set := map[uuid.UUID]bool{}
	for _, g := range groupIDs {
		set[g] = true
	}
	n := 0
	for id, p := range r.m.posts {
		if set[p.GroupID] && p.Status != store.StatusDone {
			delete(r.m.posts, id)
			n++
		}
	}
	return n, nil
}

func (r *memPosts) ListDistributions(ctx context.Context, limit, offset int) ([]*store.Distribution, error) {
	byName := map[string][]*store.Post{}
	for _, p := range r.m.posts {
		key := "\x00nil"
		if p.DistributionName != nil {
			key = *p.DistributionName
		}
		byName[key] = append(byName[key], p)
	}
	var out []*store.Distribution
	for _, members := range byName {
		out = append(out, summarize(members))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarliestCreatedAt.After(out[j].EarliestCreatedAt) })
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPosts) CountDistributions(ctx context.Context) (int, error) {
	names := map[string]bool{}
	for _, p := range r.m.posts {
		key := "\x00nil"
		if p.DistributionName != nil {
			key = *p.DistributionName
		}
		names[key] = true
	}
	return len(names), nil
}

func (r *memPosts) GetDistributionSummary(ctx context.Context, name *string) (*store.Distribution, error) {
	var members []*store.Post
	for _, p := range r.m.posts {
		if strEq(p.DistributionName, name) {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return nil, store.ErrNotFound
	}
	return summarize(members), nil
}

func (r *memPosts) GetDistributionContext(ctx context.Context, name *string) (*store.DistributionContext, error) {
	var earliest *store.Post
	for _, p := range r.m.posts {
		if !strEq(p.DistributionName, name) {
			continue
		}
		if earliest == nil || p.CreatedAt.Before(earliest.CreatedAt) {
			earliest = p
		}
	}
	if earliest == nil {
		return nil, store.ErrNotFound
	}
	return &store.DistributionContext{
		DistributionName:      earliest.DistributionName,
		SourceChannelUsername: earliest.SourceChannelUsername,
		SourceChannelID:       earliest.SourceChannelID,
		SourceMessageID:       earliest.SourceMessageID,
		PauseBetweenAttemptsS: earliest.PauseBetweenAttemptsS,
		DeleteLastAttempt:     earliest.DeleteLastAttempt,
		PinAfterPost:          earliest.PinAfterPost,
		NumAttemptForPinPost:  earliest.NumAttemptForPinPost,
		TargetAttempts:        earliest.TargetAttempts,
		NotifyOnFailure:       earliest.NotifyOnFailure,
	}, nil
}

func (r *memPosts) GroupsDistributionUsage(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID]*string, error) {
	set := map[uuid.UUID]bool{}
	for _, g := range groupIDs {
		set[g] = true
	}
	out := map[uuid.UUID]*string{}
	for _, p := range r.m.posts {
		if set[p.GroupID] && p.Status != store.StatusDone {
			out[p.GroupID] = p.DistributionName
		}
	}
	return out, nil
}

func (r *memPosts) UnassignByBot(ctx context.Context, botID uuid.UUID) (int, error) {
	n := 0
	for _, p := range r.m.posts {
		if p.BotID != nil && *p.BotID == botID {
			p.BotID = nil
			n++
		}
	}
	return n, nil
}

func (r *memPosts) PauseByBot(ctx context.Context, botID uuid.UUID) (int, error) {
	n := 0
	for _, p := range r.m.posts {
		if p.BotID != nil && *p.BotID == botID && p.Status == store.StatusActive {
			p.Status = store.StatusPaused
			n++
		}
	}
	return n, nil
}

func summarize(members []*store.Post) *store.Distribution {
	d := &store.Distribution{TotalPosts: len(members)}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	first := members[0]
	d.DistributionName = first.DistributionName
	d.SourceChannelUsername = first.SourceChannelUsername
	d.SourceChannelID = first.SourceChannelID
	d.SourceMessageID = first.SourceMessageID
	d.NotifyOnFailure = true
	d.EarliestCreatedAt = first.CreatedAt
	d.DistributionID = first.ID.String()
	for _, p := range members {
		d.NotifyOnFailure = d.NotifyOnFailure && p.NotifyOnFailure
		if id := p.ID.String(); id < d.DistributionID {
			d.DistributionID = id
		}
		if p.UpdatedAt.After(d.LatestUpdatedAt) {
			d.LatestUpdatedAt = p.UpdatedAt
		}
		switch p.Status {
		case store.StatusActive:
			d.ActiveCount++
		case store.StatusPaused:
			d.PausedCount++
		case store.StatusError:
			d.ErrorCount++
		case store.StatusDone:
			d.DoneCount++
		}
	}
	return d
}
