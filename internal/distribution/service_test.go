package distribution

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/store"
	"github.com/devstz/autoposter-node/internal/store/storetest"
)

func newFixture() (*storetest.MemStore, uuid.UUID, uuid.UUID, uuid.UUID) {
	ms := storetest.New()
	botID := uuid.New()
	ms.SeedBot(&store.Bot{Base: store.Base{ID: botID}, Token: "123:abc"})

	g1 := uuid.New()
	ms.SeedGroup(&store.Group{Base: store.Base{ID: g1}, TgChatID: 100, AssignedBotID: &botID})
	g2 := uuid.New()
	ms.SeedGroup(&store.Group{Base: store.Base{ID: g2}, TgChatID: 200})

	return ms, botID, g1, g2
}

func TestCreateSkipsUnboundGroups(t *testing.T) {
	ms, _, g1, g2 := newFixture()
	svc := New(ms)

	res, err := svc.Create(context.Background(), CreateRequest{
		Mode:     ModeCreate,
		Selector: Selector{ChatIDs: []int64{100, 200}},
		Source:   Source{ChannelUsername: "chan", MessageID: 5},
		Settings: PostSettings{TargetAttempts: -1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 {
		t.Fatalf("expected 1 created, got %d", res.Created)
	}
	if len(res.SkippedUnbound) != 1 || res.SkippedUnbound[0] != g2 {
		t.Fatalf("expected g2 skipped as unbound, got %v", res.SkippedUnbound)
	}
	_ = g1
}

func TestCreateAutoGeneratesName(t *testing.T) {
	ms, _, _, _ := newFixture()
	svc := New(ms)

	res, err := svc.Create(context.Background(), CreateRequest{
		Mode:     ModeCreate,
		Selector: Selector{ChatIDs: []int64{100}},
		Source:   Source{ChannelUsername: "chan", MessageID: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.DistributionName == nil || *res.DistributionName == "" {
		t.Fatal("expected an auto-generated distribution name")
	}
}

func TestAddGroupsStealsFromOtherDistribution(t *testing.T) {
	ms, botID, g1, g2 := newFixture()
	botID2 := uuid.New()
	ms.SeedBot(&store.Bot{Base: store.Base{ID: botID2}, Token: "456:def"})
	assignedG2 := g2
	ms.SeedGroup(&store.Group{Base: store.Base{ID: assignedG2}, TgChatID: 200, AssignedBotID: &botID2})

	svc := New(ms)
	ctx := context.Background()

	name := "alpha"
	_, err := svc.Create(ctx, CreateRequest{
		Name:     &name,
		Mode:     ModeCreate,
		Selector: Selector{ChatIDs: []int64{100}},
		Source:   Source{ChannelUsername: "chan", MessageID: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	other := "beta"
	_, err = svc.Create(ctx, CreateRequest{
		Name:     &other,
		Mode:     ModeCreate,
		Selector: Selector{ChatIDs: []int64{200}},
		Source:   Source{ChannelUsername: "chan2", MessageID: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.AddGroups(ctx, &name, []uuid.UUID{assignedG2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 {
		t.Fatalf("expected 1 group added, got %d", res.Added)
	}

	summary, _, err := svc.Summary(ctx, &name)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalPosts != 2 {
		t.Fatalf("expected stolen group's post to now belong to %q, total=%d", name, summary.TotalPosts)
	}
	_ = g1
}
