package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcnetwork/app/internal/cache"
	"mcnetwork/app/internal/checker"
	"mcnetwork/app/internal/collector"
	"mcnetwork/app/internal/config"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/handlers"
	"mcnetwork/app/internal/logging"
	"mcnetwork/app/internal/monitor"
	"mcnetwork/app/internal/publish"
	"mcnetwork/app/internal/ratelimit"
	"mcnetwork/app/internal/stats"
	"mcnetwork/app/internal/supervisor"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	once := flag.Bool("once", false, "run a single collection, print the result and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open store")
	}
	defer store.Close()

	if err := seedServers(ctx, store, cfg.ServersFile); err != nil {
		logging.Fatal().Err(err).Msg("failed to seed servers")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = publish.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
	}

	summaryCache := cache.New[stats.SummaryResult](cfg.CacheTTL)
	predictionCache := cache.New[stats.PredictionResult](cfg.CacheTTL)
	defer summaryCache.Stop()
	defer predictionCache.Stop()

	chain := checker.New(cfg.ProbeSRV)
	prober := checker.WithTimeout(chain, cfg.ProbeTimeout)

	var guard collector.Guard = &collector.LocalGuard{}
	var publisher *publish.Publisher
	if rdb != nil {
		guard = collector.NewRedisGuard(rdb, "mcnetwork:collect:lock", cfg.CollectInterval)
		publisher = publish.New(rdb, cfg.EventChannel, publish.DefaultBreaker)
	}

	coll := collector.New(store, store, prober, collector.Options{
		Workers:      cfg.CollectWorkers,
		ProbeTimeout: cfg.ProbeTimeout,
		Guard:        guard,
		Tracker:      monitor.NewOfflineTracker(3),
		Publisher:    publisher,
		Invalidate:   []collector.Invalidator{summaryCache, predictionCache},
	})

	if *once {
		if err := runOnce(ctx, coll); err != nil {
			logging.Fatal().Err(err).Msg("collection failed")
		}
		return
	}

	limiter := ratelimit.New(ratelimit.Config{TokensPerMinute: 120})
	defer limiter.Stop()

	health := map[string]handlers.HealthChecker{"store": store.Ping}
	if rdb != nil {
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// on-demand probes come from the public API; cap how hard they can hit game servers.
	// The deadline covers the wait for a token as well as the probe itself.
	liveProber := checker.WithTimeout(checker.WithRateLimit(chain, rate.NewLimiter(5, 10)), cfg.ProbeTimeout)

	router := handlers.SetupRoutes(handlers.Deps{
		Store:      store,
		Aggregator: stats.NewAggregator(store, summaryCache),
		Predictor:  stats.NewPredictor(store, predictionCache),
		Collector:  coll,
		Prober:     liveProber,
		Auth:       cfg,
		Limiter:    limiter,
		Health:     health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // collect waits for a full run
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(srv, 10*time.Second))
	if cfg.EnableScheduler {
		tree.AddCollectionService(collector.NewScheduler(coll, cfg.CollectInterval))
	} else {
		logging.Info().Msg("scheduler disabled; collection only via /api/analytics/collect")
	}

	logging.Info().
		Str("port", cfg.Port).
		Str("driver", cfg.DBDriver).
		Bool("redis", rdb != nil).
		Bool("trigger_protected", !cfg.TriggerOpen()).
		Msg("server starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("supervisor stopped")
	}
	logging.Info().Msg("shutdown complete")
}

// seedServers upserts the servers listed in path, if any
func seedServers(ctx context.Context, reg database.Registry, path string) error {
	if path == "" {
		return nil
	}
	servers, err := database.LoadServersFile(path)
	if err != nil {
		return err
	}
	if err := database.Seed(ctx, reg, servers); err != nil {
		return err
	}
	logging.Info().Int("servers", len(servers)).Str("file", path).Msg("server registry seeded")
	return nil
}

// runOnce performs one collection and prints the report to stdout
func runOnce(ctx context.Context, coll *collector.Collector) error {
	res, err := coll.Run(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
