package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/ratelimit"
	"github.com/devstz/autoposter-node/internal/store"
	"github.com/devstz/autoposter-node/internal/store/storetest"
)

func newTestFixture(t *testing.T) (*storetest.MemStore, *messaging.Fake, *Scheduler, *store.Post) {
	t.Helper()
	ms := storetest.New()
	botID := uuid.New()
	ms.SeedBot(&store.Bot{Base: store.Base{ID: botID}, Token: "tok", MaxPosts: 10})
	ms.SeedSetting(&store.Setting{Base: store.Base{ID: uuid.New()}, IsCurrent: true, MaxPostsPerBot: 10})

	groupID := uuid.New()
	ms.SeedGroup(&store.Group{Base: store.Base{ID: groupID}, TgChatID: 555, AssignedBotID: &botID})

	postID := uuid.New()
	p := &store.Post{
		Base:                  store.Base{ID: postID, CreatedAt: time.Now().UTC()},
		GroupID:               groupID,
		BotID:                 &botID,
		Status:                store.StatusActive,
		TargetChatID:          555,
		SourceChannelUsername: "chan",
		SourceMessageID:       1,
		TargetAttempts:        -1,
	}
	ms.SeedPost(p)

	fake := &messaging.Fake{}
	sched := New(Options{
		Store:          ms,
		Client:         fake,
		Token:          "tok",
		Limiter:        ratelimit.New(1000, time.Second),
		MaxPostsPerSec: 1000,
	})
	return ms, fake, sched, p
}

// S1-style: a successful forward writes an attempt and advances counters.
func TestCycleForwardSuccessRecordsAttempt(t *testing.T) {
	ms, fake, sched, p := newTestFixture(t)
	fake.ForwardFunc = func(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
		return 999, nil
	}

	if err := sched.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	var got *store.Post
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		got, err = uow.Posts().Get(ctx, p.ID)
		return err
	})
	if got.CountAttempts != 1 {
		t.Fatalf("expected count_attempts=1, got %d", got.CountAttempts)
	}
	if got.Status != store.StatusActive {
		t.Fatalf("expected post to remain active with infinite target_attempts, got %s", got.Status)
	}
}

// S2-style: three transient failures in one tick skip silently, post
// stays active with zero attempts recorded.
func TestCycleTransientStormSkipsSilently(t *testing.T) {
	ms, fake, sched, p := newTestFixture(t)
	calls := 0
	fake.ForwardFunc = func(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
		calls++
		return 0, messaging.NewNetworkError("network error: connection reset")
	}

	if err := sched.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != forwardRetries {
		t.Fatalf("expected exactly %d forward attempts, got %d", forwardRetries, calls)
	}

	var got *store.Post
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		got, err = uow.Posts().Get(ctx, p.ID)
		return err
	})
	if got.CountAttempts != 0 || got.Status != store.StatusActive {
		t.Fatalf("expected untouched active post, got status=%s attempts=%d", got.Status, got.CountAttempts)
	}
}

// S3-style: a non-transient error transitions the post to error and
// records the failure in last_error.
func TestCycleNonTransientFailureMarksError(t *testing.T) {
	ms, fake, sched, p := newTestFixture(t)
	fake.ForwardFunc = func(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
		return 0, messaging.NewChatNotFoundError("chat not found")
	}

	if err := sched.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	var got *store.Post
	_ = ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		var err error
		got, err = uow.Posts().Get(ctx, p.ID)
		return err
	})
	if got.Status != store.StatusError {
		t.Fatalf("expected status=error, got %s", got.Status)
	}
	if got.LastError == nil {
		t.Fatal("expected last_error to be set")
	}
}

// notify_on_failure + critical kind triggers the critical handler, which
// deletes the group (cascading the post away).
func TestCycleCriticalFailureDeletesGroup(t *testing.T) {
	ms, fake, sched, p := newTestFixture(t)
	groupID := p.GroupID
	fake.ForwardFunc = func(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
		return 0, messaging.NewChatNotFoundError("chat not found")
	}
	p.NotifyOnFailure = true
	ms.SeedPost(p)

	if err := sched.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := ms.WithinTransaction(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		_, err := uow.Groups().Get(ctx, groupID)
		return err
	})
	if err != store.ErrNotFound {
		t.Fatalf("expected group to be deleted by critical handler, got err=%v", err)
	}
}
