package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/yogasync/internal/adapters/http"
	"github.com/dkeye/yogasync/internal/adapters/natsbus"
	"github.com/dkeye/yogasync/internal/adapters/rtc"
	wssignal "github.com/dkeye/yogasync/internal/adapters/signal"
	"github.com/dkeye/yogasync/internal/adapters/store"
	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/app/orch"
	"github.com/dkeye/yogasync/internal/app/sched"
	"github.com/dkeye/yogasync/internal/config"
	"github.com/dkeye/yogasync/internal/core"
	"github.com/dkeye/yogasync/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if err := rtc.ValidateICEServers(cfg.ICEServers); err != nil {
		log.Fatal().Err(err).Msg("bad ice servers")
	}

	roomStore, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open room store")
	}
	defer closeStore()

	sessions := app.NewRegistry()
	rooms := app.NewRoomManager(domain.CoursePlan{TotalRounds: cfg.Round.Total, RoundDuration: cfg.Round.Duration})
	hub := wssignal.NewHub(sessions, app.SimplePolicy{})

	var (
		pub      core.Publisher = hub
		notifier core.Notifier
	)
	if cfg.NATS.URL != "" {
		bus, err := natsbus.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer func() { _ = bus.Close() }()
		pub = &natsbus.Mirror{Primary: hub, Bus: bus}
		notifier = bus
		log.Info().Str("url", cfg.NATS.URL).Msg("mirroring room events to nats")
	}

	dispatcher := app.NewWorkerDispatcher(cfg.Dispatch.Workers, cfg.Dispatch.Queue, cfg.Dispatch.Timeout)
	defer dispatcher.Stop()

	monitor := app.NewMonitor(pub, core.SystemClock{}, cfg.ICEServers)
	fx := orch.Effects{
		Pub:      pub,
		Store:    roomStore,
		Notifier: notifier,
		Dispatch: dispatcher,
		Clock:    core.SystemClock{},
	}

	coord := &orch.Coordinator{
		Effects:    fx,
		Sessions:   sessions,
		Rooms:      rooms,
		Monitor:    monitor,
		AutoCreate: cfg.Rooms.AutoCreate,
	}
	relay := &orch.Relay{Effects: fx, Sessions: sessions, Rooms: rooms, Monitor: monitor}
	scheduler := &sched.Scheduler{
		Effects:   fx,
		Rooms:     rooms,
		Interval:  cfg.Round.Interval,
		Monitor:   monitor,
		IdleAfter: cfg.Liveness.IdleAfter,
	}
	go scheduler.Run(ctx)

	ctl := &wssignal.SignalWSController{
		Coord:   coord,
		Relay:   relay,
		Hub:     hub,
		Limiter: wssignal.NewRoomRateLimiter(cfg.JoinLimit.Count, cfg.JoinLimit.Window),
		EvictDuplicates: cfg.Auth.EvictDuplicates,
		Opts: wssignal.Options{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			WriteWait:  cfg.WriteWait,
			SendBuffer: cfg.SendBuffer,
		},
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{Signal: ctl, Rooms: rooms, Hub: hub})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("YogaSync server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (core.RoomStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		s, err := store.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		log.Warn().Msg("using in-memory room store, every join needs rooms.auto_create")
		return store.NewMemoryStore(), func() {}, nil
	}
}
