package groupmeta

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/store"
	"github.com/devstz/autoposter-node/internal/store/storetest"
)

func TestRefreshSkipsUnbound(t *testing.T) {
	ms := storetest.New()
	g := &store.Group{Base: store.Base{ID: uuid.New()}, TgChatID: 1}
	ms.SeedGroup(g)

	r := &Refresher{ClientForBot: func(uuid.UUID) messaging.Client { t.Fatal("should not be called"); return nil }}
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		r.Refresh(ctx, uow, g, time.Now())
		return nil
	})
}

func TestRefreshFetchesWhenStale(t *testing.T) {
	ms := storetest.New()
	botID := uuid.New()
	g := &store.Group{Base: store.Base{ID: uuid.New()}, TgChatID: 1, AssignedBotID: &botID}
	ms.SeedGroup(g)

	fake := &messaging.Fake{GetChatFunc: func(ctx context.Context, chatID int64) (*messaging.Chat, error) {
		return &messaging.Chat{ID: chatID, Title: "New Title", Username: "newuser"}, nil
	}}
	r := &Refresher{ClientForBot: func(uuid.UUID) messaging.Client { return fake }}

	now := time.Now().UTC()
	err := ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		r.Refresh(ctx, uow, g, now)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var got *store.Group
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		got, err = uow.Groups().Get(ctx, g.ID)
		return err
	})
	if got.Title != "New Title" || got.Username != "newuser" {
		t.Fatalf("expected refreshed metadata, got %+v", got)
	}
	if got.MetadataRefreshedAt == nil {
		t.Fatal("expected metadata_refreshed_at to be set")
	}
}

func TestRefreshSkipsWhenFresh(t *testing.T) {
	ms := storetest.New()
	botID := uuid.New()
	recent := time.Now().Add(-time.Hour)
	g := &store.Group{Base: store.Base{ID: uuid.New()}, TgChatID: 1, AssignedBotID: &botID, Title: "Existing", MetadataRefreshedAt: &recent}
	ms.SeedGroup(g)

	r := &Refresher{ClientForBot: func(uuid.UUID) messaging.Client { t.Fatal("should not be called"); return nil }}
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		r.Refresh(ctx, uow, g, time.Now())
		return nil
	})
}
