// Command floodwatch runs the flood risk engine: the zone simulator, the
// observation pipeline, the snapshot read API and the real-time websocket
// feed.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/flood-risk-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-risk-engine/internal/adapter/kafka"
	"github.com/couchcryptid/flood-risk-engine/internal/adapter/ngsild"
	redisadapter "github.com/couchcryptid/flood-risk-engine/internal/adapter/redis"
	"github.com/couchcryptid/flood-risk-engine/internal/config"
	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
	"github.com/couchcryptid/flood-risk-engine/internal/simulation"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
	"github.com/couchcryptid/flood-risk-engine/internal/zones"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	bounds := domain.BoundingBox{
		MinLat: cfg.BoundsMinLat, MaxLat: cfg.BoundsMaxLat,
		MinLng: cfg.BoundsMinLng, MaxLng: cfg.BoundsMaxLng,
	}

	registry, err := loadZones(cfg)
	if err != nil {
		logger.Error("failed to load zone catalogue", "error", err)
		os.Exit(1)
	}
	logger.Info("zone catalogue loaded", "zones", registry.Len())

	// Entity store: NGSI-LD broker with retries, or in-memory.
	var entities store.EntityStore
	if cfg.NGSILDURL != "" {
		client := ngsild.NewClient(cfg.NGSILDURL, cfg.NGSILDTimeout, logger, metrics)
		entities = store.NewRetrying(client, store.DefaultRetryPolicy(cfg.StoreMaxRetries), logger, metrics)
		logger.Info("ngsi-ld store enabled", "url", cfg.NGSILDURL, "max_retries", cfg.StoreMaxRetries)
	} else {
		entities = store.NewMemory()
		logger.Info("in-memory entity store enabled")
	}

	var ready httpadapter.AllReady
	var closers []io.Closer

	// Snapshot cache.
	var cache snapshot.Cache
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rc := redisadapter.NewCache(cfg.RedisAddr, cfg.RedisDB, cfg.CacheTTL)
		cache = rc
		ready = append(ready, rc)
		closers = append(closers, rc)
		logger.Info("redis snapshot cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	case config.CacheNone:
		cache = snapshot.NopCache{}
		logger.Info("snapshot cache disabled")
	default:
		cache = snapshot.NewMemoryCache(cfg.CacheTTL, cfg.CacheSize, clock)
		logger.Info("memory snapshot cache enabled", "ttl", cfg.CacheTTL, "size", cfg.CacheSize)
	}

	snapshots := snapshot.New(entities, cache, snapshot.Options{
		Bounds:         bounds,
		CoordPrecision: cfg.CoordPrecision,
		DeltaPageSize:  cfg.DeltaPageSize,
		QueryLimit:     cfg.SnapshotQueryLimit,
	}, logger, metrics)

	assessor := pipeline.NewAssessor(registry)
	loader := pipeline.NewLoader(entities, snapshots)
	reports := pipeline.NewReportService(entities, assessor, loader, bounds, metrics)

	// Readings reach the assessor through Kafka when enabled, in-process otherwise.
	sinks := simulation.MultiSink{simulation.NewStoreSink(entities)}
	var p *pipeline.Pipeline
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		closers = append(closers, reader, writer)
		sinks = append(sinks, writer)

		p = pipeline.New(reader, pipeline.NewTransformer(assessor, bounds), loader, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
		logger.Info("kafka pipeline enabled", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	} else {
		sinks = append(sinks, pipeline.NewInlineSink(assessor, loader))
		logger.Info("inline assessment enabled")
	}

	var sim *simulation.Simulator
	if cfg.SimEnabled {
		sim = simulation.New(registry.All(), simulation.ParamsFromConfig(cfg), sinks, clock, logger, metrics)
		ready = append(ready, sim)
	} else {
		logger.Info("simulator disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, httpadapter.API{
		Snapshots: snapshots,
		Zones:     registry,
		Reports:   reports,
		Bounds:    bounds,
		Metrics:   metrics,
		Clock:     clock,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}
	if sim != nil {
		go func() {
			if err := sim.Run(ctx); err != nil {
				logger.Error("simulator error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func loadZones(cfg *config.Config) (*zones.Registry, error) {
	if cfg.ZonesFile != "" {
		return zones.Load(cfg.ZonesFile)
	}
	return zones.Default()
}
