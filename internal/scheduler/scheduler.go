// Package scheduler implements C3 (the posting scheduler) and C4's
// critical handler (invoked in-line from the posting loop, spec §4.4).
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/ratelimit"
	"github.com/devstz/autoposter-node/internal/store"
)

// deleteRetries/forwardRetries/pinRetries are the 3-attempt policies spec
// §4.3 mandates for the delete-last-attempt, forward, and pin protocols.
const (
	deleteRetries  = 3
	forwardRetries = 3
	pinRetries     = 3
	forwardBackoff = 2 * time.Second
)

var tracer = otel.Tracer("scheduler")

// Scheduler drives one posting cycle per tick for one node/bot (spec
// §4.3). It is grounded on the teacher's Channel.Start ticker+select
// shutdown idiom.
type Scheduler struct {
	st          store.Store
	client      messaging.Client
	freshClient func() messaging.Client
	limiter     *ratelimit.Limiter
	token       string

	tickInterval    time.Duration
	maxPostsPerSec  float64

	cancel context.CancelFunc
	doneCh chan struct{}
}

// Options configures a Scheduler.
type Options struct {
	Store          store.Store
	Client         messaging.Client
	FreshClient    func() messaging.Client
	Limiter        *ratelimit.Limiter
	Token          string
	TickInterval   time.Duration
	MaxPostsPerSec float64
}

// New constructs a Scheduler.
func New(opts Options) *Scheduler {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 5 * time.Second
	}
	maxPerSec := opts.MaxPostsPerSec
	if maxPerSec <= 0 {
		maxPerSec = 8
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(25, time.Second)
	}
	return &Scheduler{
		st:             opts.Store,
		client:         opts.Client,
		freshClient:    opts.FreshClient,
		limiter:        limiter,
		token:          opts.Token,
		tickInterval:   tick,
		maxPostsPerSec: maxPerSec,
	}
}

// Start runs the ticker loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := s.Cycle(loopCtx); err != nil {
					slog.Error("scheduler cycle failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits (bounded) for the goroutine to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.doneCh != nil {
		select {
		case <-s.doneCh:
		case <-time.After(s.tickInterval + 5*time.Second):
			slog.Warn("scheduler loop did not exit within timeout")
		}
	}
}

// Cycle performs one posting cycle: spec §4.3 steps 1-5.
func (s *Scheduler) Cycle(ctx context.Context) error {
	cctx, span := tracer.Start(ctx, "cycle")
	defer span.End()
	return s.cycle(cctx)
}
