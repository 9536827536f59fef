package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/store"
)

// cycle implements spec §4.3 steps 1-5: load the bot, fetch its assigned
// posts, filter to eligible ones, and process each in order with uniform
// spacing.
func (s *Scheduler) cycle(ctx context.Context) error {
	var (
		bot   *store.Bot
		posts []*store.Post
	)

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		b, err := uow.Bots().GetByToken(ctx, s.token)
		if err != nil {
			return err
		}
		bot = b

		setting, err := uow.Settings().GetCurrent(ctx)
		if err != nil {
			return err
		}
		limit := setting.MaxPostsPerBot
		if limit <= 0 {
			limit = bot.MaxPosts
		}

		all, err := uow.Posts().ListByBot(ctx, bot.ID, limit)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, p := range all {
			if p.Eligible(now) {
				posts = append(posts, p)
			}
		}
		return nil
	})
	if err != nil {
		// Step 1: a missing Bot row is resolved out-of-band by the
		// heartbeat service's bootstrap; this cycle is simply skipped.
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	spacing := time.Duration(float64(time.Second) / s.maxPostsPerSec)

	for i, p := range posts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(spacing):
			}
		}
		if err := s.processPost(ctx, p.ID); err != nil {
			slog.Error("process post failed", "post_id", p.ID, "error", err)
		}
	}
	return nil
}

// criticalTask captures a critical failure that must be handled after the
// dispatcher's own unit of work has committed, since the Critical Handler
// runs under its own fresh unit of work (spec §4.4).
type criticalTask struct {
	post   *store.Post
	kind   messaging.Kind
	errMsg string
}

// processPost re-checks eligibility then runs the per-post state machine
// (spec §4.3 steps a-d) inside its own unit of work.
func (s *Scheduler) processPost(ctx context.Context, postID uuid.UUID) error {
	var pending *criticalTask

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		p, err := uow.Posts().Get(ctx, postID)
		if err != nil {
			if err == store.ErrNotFound {
				return nil
			}
			return err
		}
		if !p.Eligible(time.Now().UTC()) {
			return nil
		}

		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}

		if p.DeleteLastAttempt {
			s.runDeleteLastAttempt(ctx, uow, p)
		}

		messageID, transientExhausted, forwardErr := s.forwardWithRetries(ctx, p)
		if transientExhausted {
			// Step b: all 3 retries transient -> skip silently, no
			// attempt row, no state change.
			return nil
		}

		if forwardErr != nil {
			kind := messaging.Classify(forwardErr)
			task, err := s.onForwardFailure(ctx, uow, p, kind, forwardErr)
			if err != nil {
				return err
			}
			pending = task
			return nil
		}

		return s.onForwardSuccess(ctx, uow, p, messageID)
	})
	if err != nil {
		return err
	}

	if pending != nil {
		s.handleCritical(ctx, pending.post, pending.kind, pending.errMsg)
	}
	return nil
}

// runDeleteLastAttempt implements spec §4.3 step a. Failures are
// non-critical: logged and swallowed, the post continues to (b).
func (s *Scheduler) runDeleteLastAttempt(ctx context.Context, uow store.UnitOfWork, p *store.Post) {
	last, err := uow.Attempts().LastUndeletedWithMessage(ctx, p.ID)
	if err != nil {
		return
	}

	for attempt := 0; attempt < deleteRetries; attempt++ {
		if err := s.limiter.Acquire(ctx); err != nil {
			return
		}
		err := s.client.Delete(ctx, last.ChatID, *last.MessageID)
		if err == nil {
			_ = uow.Attempts().MarkDeleted(ctx, last.ID)
			return
		}
		if messaging.IsMessageNotFound(err) {
			_ = uow.Attempts().MarkDeleted(ctx, last.ID)
			return
		}
		if ra, ok := messaging.AsRetryAfter(err); ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(ra.RetryAfterSeconds) * time.Second):
			}
			continue
		}
		slog.Warn("delete_last_attempt failed", "post_id", p.ID, "error", err)
		return
	}
}

// forwardWithRetries implements spec §4.3 step b: up to 3 immediate
// retries with 2s fixed backoff for transient errors; any other error (or
// exhaustion) is reported to the caller.
func (s *Scheduler) forwardWithRetries(ctx context.Context, p *store.Post) (messageID int64, transientExhausted bool, err error) {
	for attempt := 0; attempt < forwardRetries; attempt++ {
		if acqErr := s.limiter.Acquire(ctx); acqErr != nil {
			return 0, false, acqErr
		}
		mid, fErr := s.client.Forward(ctx, p.TargetChatID, derefInt64(p.SourceChannelID), p.SourceMessageID)
		if fErr == nil {
			return mid, false, nil
		}
		kind := messaging.Classify(fErr)
		if !kind.IsTransient() {
			return 0, false, fErr
		}
		err = fErr
		if attempt < forwardRetries-1 {
			select {
			case <-ctx.Done():
				return 0, false, ctx.Err()
			case <-time.After(forwardBackoff):
			}
		}
	}
	return 0, true, err
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// onForwardSuccess implements spec §4.3 step c.
func (s *Scheduler) onForwardSuccess(ctx context.Context, uow store.UnitOfWork, p *store.Post, messageID int64) error {
	now := time.Now().UTC()
	mid := messageID

	_, err := uow.Attempts().Create(ctx, store.NewAttempt{
		PostID:    p.ID,
		BotID:     p.BotID,
		GroupID:   &p.GroupID,
		ChatID:    p.TargetChatID,
		MessageID: &mid,
		Success:   true,
	})
	if err != nil {
		if isPostGone(err) {
			slog.Warn("post deleted mid-flight, dropping attempt", "post_id", p.ID)
			return nil
		}
		return err
	}

	if err := uow.Posts().RecordAttemptSuccess(ctx, p.ID, now); err != nil {
		return err
	}
	p.CountAttempts++
	p.LastAttemptAt = &now

	if p.ShouldPin() {
		s.runPin(ctx, p, mid)
	}

	if p.TargetAttempts >= 0 && p.CountAttempts >= p.TargetAttempts {
		return uow.Posts().MarkDone(ctx, p.ID)
	}
	return nil
}

// runPin implements spec §4.3 step c's pin sub-protocol: pin with the
// same 3-retry/RetryAfter policy, then request deletion of the platform's
// automatic "pinned a message" service notice (messageID+1).
func (s *Scheduler) runPin(ctx context.Context, p *store.Post, messageID int64) {
	for attempt := 0; attempt < pinRetries; attempt++ {
		if err := s.limiter.Acquire(ctx); err != nil {
			return
		}
		err := s.client.Pin(ctx, p.TargetChatID, messageID)
		if err == nil {
			if err := s.limiter.Acquire(ctx); err == nil {
				if dErr := s.client.Delete(ctx, p.TargetChatID, messageID+1); dErr != nil {
					slog.Warn("failed to delete pin service notice", "post_id", p.ID, "error", dErr)
				}
			}
			return
		}
		if ra, ok := messaging.AsRetryAfter(err); ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(ra.RetryAfterSeconds) * time.Second):
			}
			continue
		}
		slog.Warn("pin failed", "post_id", p.ID, "error", err)
		return
	}
}

// onForwardFailure implements spec §4.3 step d. A critical+notify-eligible
// failure is returned as a pending criticalTask rather than handled
// in-line, since the Critical Handler must run under its own fresh unit
// of work (spec §4.4), not nested inside this one.
func (s *Scheduler) onForwardFailure(ctx context.Context, uow store.UnitOfWork, p *store.Post, kind messaging.Kind, fErr error) (*criticalTask, error) {
	now := time.Now().UTC()
	errCode := messaging.ClassName(fErr)
	if errCode == "" {
		errCode = string(kind)
	}
	errMsg := fErr.Error()

	_, err := uow.Attempts().Create(ctx, store.NewAttempt{
		PostID:    p.ID,
		BotID:     p.BotID,
		GroupID:   &p.GroupID,
		ChatID:    p.TargetChatID,
		Success:   false,
		ErrorCode: &errCode,
		ErrorMsg:  &errMsg,
	})
	if err != nil {
		if isPostGone(err) {
			slog.Warn("post deleted mid-flight, dropping failed attempt", "post_id", p.ID)
			return nil, nil
		}
		return nil, err
	}

	if err := uow.Posts().MarkError(ctx, p.ID, errMsg, now); err != nil {
		return nil, err
	}

	if kind.IsCritical() && p.NotifyOnFailure {
		return &criticalTask{post: p, kind: kind, errMsg: errMsg}, nil
	}
	return nil, nil
}

// isPostGone reports whether an attempt insert failed because the post it
// references was deleted mid-flight (spec §4.3 "race against operator
// delete"). AttemptRepository.Create maps the underlying FK-violation
// SQLSTATE to ErrNotFound (internal/store/pg/attempts.go).
func isPostGone(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
