// README: Entry point; loads config, wires services, starts HTTP server and background workers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oxymore-tech/liane-sub002/internal/config"
	httptransport "github.com/oxymore-tech/liane-sub002/internal/http"
	"github.com/oxymore-tech/liane-sub002/internal/infra"
	"github.com/oxymore-tech/liane-sub002/internal/logging"
	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/join"
	"github.com/oxymore-tech/liane-sub002/internal/modules/match"
	"github.com/oxymore-tech/liane-sub002/internal/modules/tracking"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/notify"
	"github.com/oxymore-tech/liane-sub002/internal/routing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Route geometry: Google when a key is configured, else a local OSRM,
	// else the deterministic fixed-speed fallback for local runs.
	var provider routing.Provider
	switch {
	case cfg.Routing.GoogleAPIKey != "":
		provider, err = routing.NewGoogleProvider(cfg.Routing.GoogleAPIKey)
		if err != nil {
			log.Fatalf("google maps init: %v", err)
		}
	case cfg.Routing.OSRMEndpoint != "":
		provider = routing.NewOSRMProvider(cfg.Routing.OSRMEndpoint)
	default:
		logger.Warn("no routing backend configured, using fixed-speed estimates")
		provider = routing.NewFixedSpeedProvider(0)
	}
	provider = routing.NewCachedProvider(provider, cfg.Routing.CacheTTL)

	var tripStore trip.Store
	var joinStore join.Store
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		tripStore = trip.NewPGStore(pool)
		joinStore = join.NewPGStore(pool)
	} else {
		logger.Warn("no database configured, using in-memory stores")
		tripStore = trip.NewMemoryStore()
		joinStore = join.NewMemoryStore()
	}

	var trackingStore tracking.Store
	var tokens notify.TokenRegistry
	if cfg.Redis.Addr != "" {
		rdb := infra.NewRedis(cfg.Redis.Addr)
		trackingStore = tracking.NewRedisStore(rdb, cfg.Tracking.SnapshotTTL)
		tokens = notify.NewRedisTokenRegistry(rdb)
	} else {
		logger.Warn("no redis configured, using in-memory tracking store")
		trackingStore = tracking.NewMemoryStore()
		tokens = notify.NewMemoryTokenRegistry()
	}

	trips := trip.NewService(tripStore, provider, trip.Config{
		NotStartedGrace:   cfg.Trip.NotStartedGrace,
		SweepInterval:     cfg.Trip.SweepInterval,
		DriverLeavePolicy: trip.LeavePolicy(cfg.Trip.DriverLeavePolicy),
	}, logger)
	engine := match.NewEngine(provider, match.Config{
		MaxDetour:       cfg.Match.MaxDetour,
		MaxDetourMeters: cfg.Match.MaxDetourMeters,
	})
	estimator := tracking.NewEstimator(trips, trackingStore, tracking.Config{
		PreDepartureGrace:     cfg.Tracking.PreDepartureGrace,
		MovingThresholdMeters: cfg.Tracking.MovingThresholdMeters,
		MovingWindow:          cfg.Tracking.MovingWindow,
	}, logger)
	joins := join.NewService(joinStore, trips, engine, logger)

	bus := event.NewBus(logger)
	joins.SetBus(bus)
	bus.WithAnswerPolicy(event.NoAutomaticAnswer{}, joins)

	var verifier infra.TokenVerifier
	var sink notify.Sink = notify.LogSink{Logger: logger}
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		messagingClient, err := infra.NewMessagingClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase messaging init: %v", err)
		}
		sink = notify.NewFCMSink(messagingClient, tokens)
	}
	worker := notify.NewWorker(sink, cfg.Notify.Buffer, cfg.Notify.SendTimeout, logger)

	// Listener order matters: the join cascade and tracking run fail-loud
	// before best-effort notifications.
	bus.Register(event.ListenerFunc(joins.OnEvent))
	bus.Register(event.ListenerFunc(estimator.OnEvent))
	bus.Register(event.BestEffort(notify.NewListener(worker, trips, estimator), logger))

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:     trips,
		Joins:     joins,
		Engine:    engine,
		Estimator: estimator,
		Bus:       bus,
		Tokens:    tokens,
		Verifier:  verifier,
		Logger:    logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go worker.Run(ctx)
	go trips.RunStatusSweep(ctx)
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
