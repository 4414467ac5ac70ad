package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/scouting-backend/internal/config"
	"github.com/DoyleJ11/scouting-backend/internal/dashboard"
	"github.com/DoyleJ11/scouting-backend/internal/httpapi"
	"github.com/DoyleJ11/scouting-backend/internal/hub"
	"github.com/DoyleJ11/scouting-backend/internal/logging"
	"github.com/DoyleJ11/scouting-backend/internal/relay"
	"github.com/DoyleJ11/scouting-backend/internal/room"
	"github.com/DoyleJ11/scouting-backend/internal/scanner"
	"github.com/DoyleJ11/scouting-backend/internal/store"
	"github.com/DoyleJ11/scouting-backend/internal/tba"
)

const pgRelayChannel = "picklist_updates"

// resources holds what needs closing once the HTTP server has stopped.
type resources struct {
	hub   *hub.Hub
	relay relay.Relay
	store store.Store
	redis *redis.Client
	log   *zap.Logger
}

func (r *resources) cleanup(ctx context.Context) error {
	r.log.Info("starting graceful shutdown")
	var err error

	if r.hub != nil {
		if e := r.hub.Shutdown(ctx); e != nil {
			err = multierr.Append(err, fmt.Errorf("hub: %w", e))
		}
	}
	if r.relay != nil {
		err = multierr.Append(err, r.relay.Close())
	}
	if r.store != nil {
		err = multierr.Append(err, r.store.Close())
	}
	if r.redis != nil {
		err = multierr.Append(err, r.redis.Close())
	}

	if err != nil {
		r.log.Error("cleanup completed with errors", zap.Int("error_count", len(multierr.Errors(err))), zap.Error(err))
		return err
	}
	r.log.Info("graceful shutdown completed")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &resources{log: log}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = res.cleanup(shutdownCtx)
	}()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	res.store = st
	checks := map[string]httpapi.HealthCheck{"store": st.Ping}

	var dedupe scanner.Deduper = scanner.NewMemoryDeduper(cfg.DedupeTTL)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		res.redis = rdb
		dedupe = scanner.NewRedisDeduper(rdb, cfg.DedupeTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("scan dedupe using redis")
	}

	tbaClient := tba.New(cfg.TBABaseURL, cfg.TBAAuthKey)
	var teams httpapi.TeamSource
	var events httpapi.EventSource
	if cfg.TBAAuthKey != "" {
		teams = tbaClient
		events = tbaClient
	} else {
		log.Warn("TBA_AUTH_KEY not set; new picklists start empty and the dashboard cannot resolve matches")
	}

	// Rooms outlive the signal context; cleanup stops them after the HTTP
	// server has drained.
	origin := uuid.NewString()
	changes := make(chan room.Change, 256)
	h := hub.NewHub(context.Background(), room.WithLogger(log), room.WithChanges(changes), room.WithOrigin(origin))
	res.hub = h

	g, gctx := errgroup.WithContext(ctx)

	rl, err := openRelay(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rl != nil {
		res.relay = rl
		bridge := relay.NewBridge(rl, h, origin, log)
		g.Go(func() error { return bridge.Run(gctx, changes) })
		log.Info("picklist relay enabled", zap.String("relay", cfg.Relay), zap.String("origin", bridge.Origin()))
	} else {
		g.Go(func() error {
			// Nothing consumes changes without a relay.
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-changes:
				}
			}
		})
	}

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:            h,
		Store:          st,
		Teams:          teams,
		Events:         events,
		HomeTeam:       cfg.HomeTeam,
		Season:         cfg.Season,
		Dashboard:      dashboard.NewService(tbaClient, st),
		Dedupe:         dedupe,
		Checks:         checks,
		Log:            log,
		CSRF:           cfg.CSRFEnabled,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("db", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return store.OpenPostgres(cfg.DatabaseURL, log)
	case "sqlite":
		return store.OpenSQLite(cfg.SQLiteFile, log)
	default:
		log.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

func openRelay(ctx context.Context, cfg *config.Config, log *zap.Logger) (relay.Relay, error) {
	switch cfg.Relay {
	case "nats":
		return relay.DialNATS(cfg.NATSURL, cfg.NATSSubject, log)
	case "postgres":
		return relay.NewPostgres(ctx, cfg.DatabaseURL, pgRelayChannel, log)
	default:
		return nil, nil
	}
}
