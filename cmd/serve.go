package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devstz/autoposter-node/internal/applog"
	"github.com/devstz/autoposter-node/internal/config"
	"github.com/devstz/autoposter-node/internal/gitrev"
	"github.com/devstz/autoposter-node/internal/heartbeat"
	"github.com/devstz/autoposter-node/internal/messaging"
	"github.com/devstz/autoposter-node/internal/messaging/telegoclient"
	"github.com/devstz/autoposter-node/internal/ratelimit"
	"github.com/devstz/autoposter-node/internal/scheduler"
	"github.com/devstz/autoposter-node/internal/store/pg"
)

// serveCmd runs one node: the heartbeat/lifecycle loop (C5) and the
// posting scheduler (C3) against the shared Postgres store, mirroring the
// teacher's gateway command's signal-driven graceful shutdown.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the node's heartbeat and posting scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
}

func runServe(ctx context.Context, envPath string) error {
	cfg, err := config.Load(envPath)
	if err != nil {
		return err
	}
	applog.Setup(cfg.LogLevel, cfg.LogFile)

	db, err := pg.OpenDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	st := pg.NewStore(db)
	defer st.Close()

	client, err := telegoclient.New(cfg.Token)
	if err != nil {
		return err
	}
	freshClient := func() messaging.Client {
		c, err := telegoclient.New(cfg.Token)
		if err != nil {
			slog.Error("failed to build fresh messaging client", "error", err)
			return client
		}
		return c
	}

	tracker := gitrev.New(cfg.GitRepoPath, cfg.GitRemote, cfg.GitBranch)

	hb := heartbeat.New(heartbeat.Options{
		Store:         st,
		Client:        client,
		FreshClient:   freshClient,
		Token:         cfg.Token,
		Tracker:       tracker,
		GitCheckEvery: time.Duration(cfg.GitCheckIntervalS) * time.Second,
		MinInterval:   time.Duration(cfg.HeartbeatMinIntervalS) * time.Second,
		UpdateCommand: cfg.UpdateCommand,
		UpdateDir:     cfg.UpdateInstallDir,
	})

	sched := scheduler.New(scheduler.Options{
		Store:          st,
		Client:         client,
		FreshClient:    freshClient,
		Limiter:        ratelimit.New(25, time.Second),
		Token:          cfg.Token,
		TickInterval:   time.Duration(cfg.SchedulerTickIntervalS) * time.Second,
		MaxPostsPerSec: float64(cfg.MaxPostsPerSecond),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := hb.Start(runCtx); err != nil {
		return err
	}
	sched.Start(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-runCtx.Done():
	}

	cancel()
	sched.Stop()
	hb.Stop()
	return nil
}
