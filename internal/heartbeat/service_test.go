package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/store"
	"github.com/devstz/autoposter-node/internal/store/storetest"
)

func TestTickBootstrapsUnknownBot(t *testing.T) {
	ms := storetest.New()
	ms.SeedSetting(&store.Setting{Name: "default", IsCurrent: true, HeartbeatIntervalS: 15, MaxPostsPerBot: 10})
	fake := &messaging.Fake{}
	svc := New(Options{Store: ms, Client: fake, Token: "123:abc", MinInterval: time.Second})

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var bot *store.Bot
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		bot, err = uow.Bots().GetByToken(ctx, "123:abc")
		return err
	})
	if bot == nil {
		t.Fatal("expected a bot row to be created")
	}
	if bot.Username != "fakebot" {
		t.Errorf("expected bootstrap to use GetMe's username, got %q", bot.Username)
	}
	if bot.LastHeartbeatAt == nil {
		t.Error("expected heartbeat timestamp to be set on bootstrap tick")
	}
}

func TestTickSkipsHeartbeatWhenDeactivated(t *testing.T) {
	ms := storetest.New()
	bot := &store.Bot{Token: "123:abc", Username: "fakebot", Deactivated: true}
	ms.SeedBot(bot)

	fake := &messaging.Fake{}
	svc := New(Options{Store: ms, Client: fake, Token: "123:abc", MinInterval: time.Second})

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bot.LastHeartbeatAt != nil {
		t.Error("deactivated bot should not receive a heartbeat update")
	}
}

func TestTickSelfDestructionStopsPermanently(t *testing.T) {
	ms := storetest.New()
	bot := &store.Bot{Token: "123:abc", Username: "fakebot", SelfDestruction: true}
	ms.SeedBot(bot)

	svc := New(Options{Store: ms, Client: &messaging.Fake{}, Token: "123:abc", MinInterval: time.Second})

	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.IsStoppedPermanently() {
		t.Error("expected self_destruction to flip the permanent-stop flag")
	}
	if !bot.Deactivated {
		t.Error("expected self_destruction to also mark the bot deactivated")
	}
}
