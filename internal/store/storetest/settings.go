package storetest

import (
	"context"

	"github.com/devstz/autoposter-node/internal/store"
)

type memSettings struct{ m *MemStore }

func (r *memSettings) GetCurrent(ctx context.Context) (*store.Setting, error) {
	for _, s := range r.m.settings {
		if s.IsCurrent {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrSettingsMissing
}

// EnsureCurrent mirrors pg: it returns the current Setting, or
// ErrSettingsMissing if none exists, and never creates one.
func (r *memSettings) EnsureCurrent(ctx context.Context) (*store.Setting, error) {
	s, err := r.GetCurrent(ctx)
	if err != nil {
		return nil, store.ErrSettingsMissing
	}
	return s, nil
}

type memUsers struct{ m *MemStore }

func (r *memUsers) ListSuperuserIDs(ctx context.Context, limit int) ([]int64, error) {
	var out []int64
	for _, u := range r.m.users {
		if u.IsSuperuser {
			out = append(out, u.UserID)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
