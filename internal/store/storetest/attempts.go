package storetest

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

type memAttempts struct{ m *MemStore }

func (r *memAttempts) Create(ctx context.Context, na store.NewAttempt) (*store.PostAttempt, error) {
	if _, ok := r.m.posts[na.PostID]; !ok {
		return nil, store.ErrNotFound
	}
	a := &store.PostAttempt{
		Base:      store.Base{ID: uuid.New(), CreatedAt: now(), UpdatedAt: now()},
		PostID:    na.PostID,
		BotID:     na.BotID,
		GroupID:   na.GroupID,
		ChatID:    na.ChatID,
		MessageID: na.MessageID,
		Success:   na.Success,
		ErrorCode: na.ErrorCode,
		ErrorMsg:  na.ErrorMsg,
	}
	r.m.attempts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r *memAttempts) LastUndeletedWithMessage(ctx context.Context, postID uuid.UUID) (*store.PostAttempt, error) {
	var candidates []*store.PostAttempt
	for _, a := range r.m.attempts {
		if a.PostID == postID && !a.Deleted && a.MessageID != nil {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	cp := *candidates[0]
	return &cp, nil
}

func (r *memAttempts) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	a, ok := r.m.attempts[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Deleted = true
	return nil
}
