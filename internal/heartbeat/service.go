// Package heartbeat implements C5: node bootstrap, liveness, git-revision
// tracking, and the force_update/self_destruction lifecycle.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devstz/autoposter-node/internal/gitrev"
	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/notify"
	"github.com/devstz/autoposter-node/internal/store"
)

// updateCommandTimeout is the hard wall-clock limit on the force_update
// subprocess (spec §5).
const updateCommandTimeout = 300 * time.Second

// Service runs the heartbeat loop as a long-lived goroutine, following the
// teacher's context.WithCancel + done-channel shutdown idiom.
type Service struct {
	st            store.Store
	client        messaging.Client
	freshClient   func() messaging.Client
	token         string
	tracker       *gitrev.Tracker
	gitCheckEvery time.Duration
	minInterval   time.Duration
	updateCommand string
	updateDir     string

	initMu      sync.Mutex
	initialized bool

	stoppedMu          sync.Mutex
	stoppedPermanently bool

	lastGitCheck time.Time

	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// Options configures a Service.
type Options struct {
	Store         store.Store
	Client        messaging.Client
	FreshClient   func() messaging.Client
	Token         string
	Tracker       *gitrev.Tracker
	GitCheckEvery time.Duration
	MinInterval   time.Duration
	UpdateCommand string
	UpdateDir     string
}

// New constructs a heartbeat Service.
func New(opts Options) *Service {
	min := opts.MinInterval
	if min < time.Second {
		min = time.Second
	}
	return &Service{
		st:            opts.Store,
		client:        opts.Client,
		freshClient:   opts.FreshClient,
		token:         opts.Token,
		tracker:       opts.Tracker,
		gitCheckEvery: opts.GitCheckEvery,
		minInterval:   min,
		updateCommand: opts.UpdateCommand,
		updateDir:     opts.UpdateDir,
	}
}

// Start begins the heartbeat loop. It ticks at the current Setting's
// HeartbeatIntervalS (re-read every iteration, never below MinInterval,
// itself at least 1s), per spec §4.5.
func (s *Service) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)
		interval := s.minInterval
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(interval):
			}

			if err := s.Tick(loopCtx); err != nil {
				slog.Error("heartbeat tick failed", "error", err)
			}

			if s.IsStoppedPermanently() {
				slog.Info("heartbeat observed self_destruction, stopping")
				return
			}

			interval = s.nextInterval(loopCtx)
		}
	}()

	return nil
}

// Stop cancels the loop and waits (bounded) for it to exit.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.doneCh != nil {
		select {
		case <-s.doneCh:
		case <-time.After(10 * time.Second):
			slog.Warn("heartbeat loop did not exit within timeout")
		}
	}
}

// IsStoppedPermanently reports whether self_destruction forced quiescence.
func (s *Service) IsStoppedPermanently() bool {
	s.stoppedMu.Lock()
	defer s.stoppedMu.Unlock()
	return s.stoppedPermanently
}

func (s *Service) nextInterval(ctx context.Context) time.Duration {
	var interval time.Duration
	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		setting, err := uow.Settings().GetCurrent(ctx)
		if err != nil {
			return err
		}
		secs := setting.HeartbeatIntervalS
		if secs < 1 {
			secs = 1
		}
		interval = time.Duration(secs) * time.Second
		return nil
	})
	if err != nil || interval < s.minInterval {
		return s.minInterval
	}
	return interval
}

// Tick runs one heartbeat iteration under a unit of work, per spec §4.5.
func (s *Service) Tick(ctx context.Context) error {
	var (
		bot             *store.Bot
		shouldCheckGit  bool
		shouldRunUpdate bool
	)

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		b, err := uow.Bots().GetByToken(ctx, s.token)
		if err != nil {
			if err != store.ErrNotFound {
				return fmt.Errorf("lookup bot: %w", err)
			}
			b, err = s.bootstrap(ctx, uow)
			if err != nil {
				return err
			}
		}
		bot = b

		switch {
		case bot.SelfDestruction:
			if err := uow.Bots().MarkDeactivated(ctx, bot.ID, true); err != nil {
				return err
			}
			s.stoppedMu.Lock()
			s.stoppedPermanently = true
			s.stoppedMu.Unlock()
			return nil
		case bot.Deactivated:
			return nil
		default:
			if err := uow.Bots().UpdateHeartbeat(ctx, bot.ID, time.Now().UTC()); err != nil {
				return err
			}
		}

		if s.gitCheckEvery > 0 && time.Since(s.lastGitCheck) >= s.gitCheckEvery {
			shouldCheckGit = true
		}
		shouldRunUpdate = bot.ForceUpdate
		return nil
	})
	if err != nil {
		return err
	}
	if bot == nil || bot.Deactivated || bot.SelfDestruction {
		return nil
	}

	if shouldCheckGit {
		s.checkGit(ctx, bot.ID)
	}

	if shouldRunUpdate {
		s.runForceUpdate(ctx, bot)
	}

	return nil
}

// bootstrap performs node initialization per spec §4.5 step 1, ported from
// the original's BotInitializationUseCase. Re-checking for the bot row
// under initMu mirrors BotInitializationMiddleware's "init once" guard
// (spec §5); initialized records that bootstrap has completed but is not
// consulted as a guard.
func (s *Service) bootstrap(ctx context.Context, uow store.UnitOfWork) (*store.Bot, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if b, err := uow.Bots().GetByToken(ctx, s.token); err == nil {
		s.initialized = true
		return b, nil
	}

	setting, err := uow.Settings().EnsureCurrent(ctx)
	if err != nil {
		return nil, err
	}

	me, err := s.client.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_me during bootstrap: %w", err)
	}

	serverIP := detectPrimaryIP(ctx)

	conflict, err := uow.Bots().HasIPConflict(ctx, serverIP, s.token)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, &store.IPConflictError{ServerIP: serverIP}
	}

	bot := &store.Bot{
		BotID:      me.ID,
		Username:   me.Username,
		Name:       me.FullName,
		Token:      s.token,
		ServerIP:   serverIP,
		SettingsID: &setting.ID,
		MaxPosts:   setting.MaxPostsPerBot,
	}
	if err := uow.Bots().Upsert(ctx, bot); err != nil {
		return nil, err
	}
	s.initialized = true
	return bot, nil
}

func (s *Service) checkGit(ctx context.Context, botID uuid.UUID) {
	if s.tracker == nil {
		return
	}
	status, err := s.tracker.CheckStatus(ctx)
	now := time.Now().UTC()
	if err != nil {
		slog.Warn("git status check failed", "error", err)
		return
	}
	s.lastGitCheck = now

	err = s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.Bots().UpdateGitStatus(ctx, botID, status.Branch, status.LocalCommit, status.RemoteCommit, status.CommitsBehind, now)
	})
	if err != nil {
		slog.Warn("persist git status failed", "error", err)
	}
}

// runForceUpdate implements spec §4.5 step 4's mandatory ordering: the
// force_update flag is cleared and committed BEFORE the update command
// runs, since the command itself typically restarts this process (S6).
func (s *Service) runForceUpdate(ctx context.Context, bot *store.Bot) {
	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.Bots().ClearForceUpdate(ctx, bot.ID)
	})
	if err != nil {
		slog.Error("failed to clear force_update before running update command", "error", err)
		return
	}

	if s.updateCommand == "" {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, updateCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", s.updateCommand)
	cmd.Dir = s.updateDir
	stdout, stderr, runErr := runCaptured(cmd)
	if runErr == nil {
		return
	}

	exitCode := -1
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	slog.Error("update command failed", "error", runErr, "exit_code", exitCode)
	s.notifyUpdateFailure(ctx, exitCode, stdout, stderr)
}

func (s *Service) notifyUpdateFailure(ctx context.Context, exitCode int, stdout, stderr string) {
	client := s.client
	if s.freshClient != nil {
		client = s.freshClient()
	}
	body := notify.UpdateFailure(exitCode, stdout, stderr)

	err := s.st.WithinTransaction(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		ids, err := uow.Users().ListSuperuserIDs(ctx, 100)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := client.SendText(ctx, id, body); err != nil {
				slog.Warn("failed to notify admin of update failure", "admin_id", id, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("failed to load admins for update-failure notification", "error", err)
	}
}
