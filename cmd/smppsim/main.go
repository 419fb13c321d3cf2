// Command smppsim runs the SMPP v5.0 server simulator: the wire listener,
// the lifecycle scheduler, the MO injector, and the observability API, all
// wired together and supervised until SIGINT/SIGTERM. Startup and
// graceful-shutdown shape follows the teacher's cmd/smpp-gateway, with
// golang.org/x/sync/errgroup standing in for its ad-hoc sync.WaitGroup
// pairs.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/smppsim/smppsim/internal/account"
	"github.com/smppsim/smppsim/internal/config"
	"github.com/smppsim/smppsim/internal/lifecycle"
	"github.com/smppsim/smppsim/internal/logging"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/mo"
	"github.com/smppsim/smppsim/internal/observability"
	"github.com/smppsim/smppsim/internal/queue"
	"github.com/smppsim/smppsim/internal/server"
	"github.com/smppsim/smppsim/internal/session"
	"github.com/smppsim/smppsim/internal/smpppdu"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	levelVar := &logging.LevelVar{}
	if err := levelVar.Set(cfg.LogLevel); err != nil {
		log.Printf("unrecognized LOG_LEVEL %q, defaulting to info: %v", cfg.LogLevel, err)
	}
	baseHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar})
	broadcaster := logging.NewBroadcaster(logging.NewContextHandler(baseHandler))
	logger := slog.New(broadcaster)
	slog.SetDefault(logger)
	slog.Info("smppsim starting", slog.String("log_level", levelVar.String()))

	accounts := account.NewStore()
	if err := accounts.Add(cfg.SMPP.SystemID, cfg.SMPP.Password, smpppdu.BindTX, smpppdu.BindRX, smpppdu.BindTRX); err != nil {
		log.Fatalf("failed to seed default account: %v", err)
	}

	inbound := queue.NewInbound(cfg.Queue.InboundCapacity)
	// Message-id allocation is independent of TEST_SEED: that seed exists
	// to make the lifecycle/MO RNGs reproducible, not to pin message ids.
	// Passing 0 here lets NewIDAllocator fall back to epoch seconds (§4.5).
	ids := queue.NewIDAllocator(0)
	m := metrics.New()
	registry := session.NewRegistry()

	scheduler := lifecycle.New(lifecycle.Config{
		MaxTimeEnroute:       cfg.Lifecycle.MaxTimeEnroute,
		PercentDelivered:     cfg.Lifecycle.PercentDelivered,
		PercentUndeliverable: cfg.Lifecycle.PercentUndeliverable,
		PercentAccepted:      cfg.Lifecycle.PercentAccepted,
		PercentRejected:      cfg.Lifecycle.PercentRejected,
		Seed:                 cfg.TestSeed,
	}, inbound, registry, m)

	injector := mo.New(mo.Config{Interval: cfg.MO.IntervalMS}, defaultMOEntries(cfg.SMPP.SystemID), registry, m, cfg.TestSeed)

	sessionDeps := session.Deps{
		Accounts:  accounts,
		Inbound:   inbound,
		IDs:       ids,
		Metrics:   m,
		Scheduler: scheduler,
		Registry:  registry,
	}
	sessionCfg := session.DefaultConfig()
	sessionCfg.ServerSystemID = cfg.SMPP.SystemID
	sessionCfg.MailboxSize = cfg.SMPP.MailboxSize
	sessionCfg.IdleSoft = cfg.SMPP.IdleSoft
	sessionCfg.IdleHard = cfg.SMPP.IdleHard
	sessionCfg.MaxMissedEnquire = cfg.SMPP.MaxMissedEnquire
	sessionCfg.SubmitRateLimit = rate.Limit(cfg.SMPP.SubmitRatePerSec)
	sessionCfg.SubmitBurst = cfg.SMPP.SubmitBurst
	sessionCfg.ShutdownDrain = cfg.SMPP.ShutdownDrain

	listener := server.New(server.Config{
		Addr:          addr(cfg.SMPP.Port),
		MaxSessions:   cfg.SMPP.MaxSessions,
		SessionConfig: sessionCfg,
	}, sessionDeps, registry, m)

	obs := observability.New(
		observability.Config{Addr: addr(cfg.HTTP.Port)},
		registry, inbound, m, scheduler, injector, broadcaster,
		observability.NewRuntimeConfig(levelVar),
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return listener.Run(gctx) })
	group.Go(func() error { return scheduler.Run(gctx) })
	group.Go(func() error { return injector.Run(gctx) })
	group.Go(func() error { return obs.ListenAndServe() })
	group.Go(func() error {
		<-gctx.Done()
		return obs.Shutdown()
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		slog.Error("smppsim exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("smppsim stopped")
}

func addr(port int) string {
	return ":" + strconv.Itoa(port)
}

// defaultMOEntries seeds the MO Injector's source table with a couple of
// example templates so the periodic tick has something to deliver (§4.7).
// The table is fixed for the process lifetime: the observability API can
// inject ad-hoc entries, but does not add them to it.
func defaultMOEntries(targetSystemID string) []mo.Entry {
	return []mo.Entry{
		{SourceAddr: "15550100", DestAddr: "15550199", ShortMessage: "Hello from the network", TargetSystemID: targetSystemID},
		{SourceAddr: "15550101", DestAddr: "15550199", ShortMessage: "STOP", TargetSystemID: targetSystemID},
	}
}
