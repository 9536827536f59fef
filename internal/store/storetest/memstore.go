// Package storetest provides an in-memory store.Store for unit tests of
// the services layered on top of C1, so distribution/scheduler/heartbeat
// logic can be exercised without a live Postgres instance.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
)

// MemStore is a single-process, mutex-guarded stand-in for store.Store.
// It does not emulate transactional isolation (WithinTransaction holds
// one global lock for its duration) but does emulate nested-UoW rejection.
// Version columns are not checked, so optimistic-concurrency conflicts
// never occur.
type MemStore struct {
	mu sync.Mutex

	bots     map[uuid.UUID]*store.Bot
	groups   map[uuid.UUID]*store.Group
	posts    map[uuid.UUID]*store.Post
	attempts map[uuid.UUID]*store.PostAttempt
	settings map[uuid.UUID]*store.Setting
	users    map[uuid.UUID]*store.User
}

type uowKey struct{}

// New constructs an empty MemStore.
func New() *MemStore {
	return &MemStore{
		bots:     map[uuid.UUID]*store.Bot{},
		groups:   map[uuid.UUID]*store.Group{},
		posts:    map[uuid.UUID]*store.Post{},
		attempts: map[uuid.UUID]*store.PostAttempt{},
		settings: map[uuid.UUID]*store.Setting{},
		users:    map[uuid.UUID]*store.User{},
	}
}

func (m *MemStore) Close() error { return nil }

// WithinTransaction mirrors pg.pgStore.WithinTransaction's nested-call
// rejection (spec §5) but holds a single process-wide lock instead of a
// real *sql.Tx, since every repo method here mutates the shared maps
// in place.
func (m *MemStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	if ctx.Value(uowKey{}) != nil {
		return store.ErrNestedUnitOfWork
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	uow := &memUOW{m: m}
	return fn(context.WithValue(ctx, uowKey{}, struct{}{}), uow)
}

// Seed* helpers let tests populate the store directly, bypassing
// WithinTransaction (no concurrent access during setup).
func (m *MemStore) SeedBot(b *store.Bot) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.bots[b.ID] = b
}

func (m *MemStore) SeedGroup(g *store.Group) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	m.groups[g.ID] = g
}

func (m *MemStore) SeedSetting(s *store.Setting) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.settings[s.ID] = s
}

func (m *MemStore) SeedUser(u *store.User) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.ID] = u
}

func (m *MemStore) SeedPost(p *store.Post) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.posts[p.ID] = p
}

type memUOW struct {
	m *MemStore
}

func (u *memUOW) Bots() store.BotRepository         { return &memBots{u.m} }
func (u *memUOW) Groups() store.GroupRepository     { return &memGroups{u.m} }
func (u *memUOW) Posts() store.PostRepository       { return &memPosts{u.m} }
func (u *memUOW) Attempts() store.AttemptRepository { return &memAttempts{u.m} }
func (u *memUOW) Settings() store.SettingRepository { return &memSettings{u.m} }
func (u *memUOW) Users() store.UserRepository       { return &memUsers{u.m} }

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func now() time.Time { return time.Now().UTC() }
