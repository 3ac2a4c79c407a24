package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/api"
	"github.com/nidhogg/semfield/internal/config"
	"github.com/nidhogg/semfield/internal/events"
	"github.com/nidhogg/semfield/internal/field"
	"github.com/nidhogg/semfield/internal/graph"
	"github.com/nidhogg/semfield/internal/persist"
	"github.com/nidhogg/semfield/internal/protocol"
	"github.com/nidhogg/semfield/internal/scheduler"
	"github.com/nidhogg/semfield/internal/similarity"
	"github.com/nidhogg/semfield/internal/vectors"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting field engine...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/semfield.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not loaded, using defaults", zap.String("path", cfgPath), zap.Error(err))
		cfg = config.Default()
	} else {
		logger.Info("Config loaded", zap.String("path", cfgPath))
	}

	// Initialize resonance scorer
	scorer, err := similarity.New(similarity.Config{
		Provider:  cfg.Similarity.Provider,
		Endpoint:  cfg.Similarity.Endpoint,
		Model:     cfg.Similarity.Model,
		APIKey:    cfg.Similarity.APIKey,
		Dimension: cfg.Similarity.Dimension,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build similarity scorer", zap.Error(err))
	}
	logger.Info("Similarity scorer ready", zap.String("provider", scorer.Name()))

	manager := field.NewManager(scorer, logger)
	runner := protocol.NewRunner(logger)
	defaults := fieldDefaults(cfg.Field)

	// Initialize PostgreSQL persistence
	var store *persist.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := persist.New(context.Background(), cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
		}
	}

	// Initialize Redis event stream
	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := events.NewBus(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(busErr))
		} else {
			bus = b
			logger.Info("Event stream initialized")
		}
	}

	// Initialize Neo4j topology mirror
	var mirror *graph.Mirror
	if cfg.Database.Neo4j.URI != "" {
		m, gErr := graph.NewMirror(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr != nil || m.Ping(context.Background()) != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(gErr))
		} else {
			mirror = m
			logger.Info("Graph mirror initialized")
		}
	}

	// Initialize Qdrant vector index; requires an embedding scorer.
	var index *vectors.Index
	if cfg.Database.Qdrant.Host != "" {
		if es, ok := scorer.(*similarity.EmbeddingScorer); ok {
			ix, vErr := vectors.NewIndex(cfg.Database.Qdrant.Host, cfg.Database.Qdrant.Port, es, cfg.Similarity.Dimension, logger)
			if vErr != nil {
				logger.Warn("Qdrant unavailable, running without vector index", zap.Error(vErr))
			} else {
				index = ix
				logger.Info("Vector index initialized")
			}
		} else {
			logger.Warn("Qdrant configured but similarity provider has no embeddings, skipping vector index")
		}
	}

	// Background decay
	var decay *scheduler.Scheduler
	if cfg.Decay.Enabled {
		var pub scheduler.Publisher
		if bus != nil {
			pub = bus
		}
		decay = scheduler.New(manager, time.Duration(cfg.Decay.IntervalSeconds)*time.Second, pub, logger)
		decay.Start()
	}

	// Best-effort mirror refresh alongside decay ticks.
	var mirrorStop chan struct{}
	if mirror != nil || index != nil {
		mirrorStop = make(chan struct{})
		go func() {
			ticker := time.NewTicker(time.Duration(cfg.Decay.IntervalSeconds) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-mirrorStop:
					return
				case <-ticker.C:
					syncMirrors(manager, mirror, index, logger)
				}
			}
		}()
	}

	handler := api.NewHandler(manager, runner, store, index, scorer, defaults, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Field engine listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down field engine...")
	ctx := context.Background()
	srv.Shutdown(ctx)
	if decay != nil {
		decay.Stop()
	}
	if mirrorStop != nil {
		close(mirrorStop)
	}
	if bus != nil {
		bus.Close()
	}
	if mirror != nil {
		mirror.Close(ctx)
	}
	if index != nil {
		index.Close()
	}
	if store != nil {
		store.Close()
	}
}

// fieldDefaults merges configured overrides onto the built-in parameters.
func fieldDefaults(fc config.FieldConfig) field.Params {
	p := field.DefaultParams()
	if fc.Dimensions > 0 {
		p.Dimensions = fc.Dimensions
	}
	if fc.DecayRate > 0 {
		p.DecayRate = fc.DecayRate
	}
	if fc.BoundaryPermeability > 0 {
		p.BoundaryPermeability = fc.BoundaryPermeability
	}
	if fc.ResonanceBandwidth > 0 {
		p.ResonanceBandwidth = fc.ResonanceBandwidth
	}
	if fc.ResonanceThreshold > 0 {
		p.ResonanceThreshold = fc.ResonanceThreshold
	}
	if fc.AttractorThreshold > 0 {
		p.AttractorThreshold = fc.AttractorThreshold
	}
	if fc.AttractorProtection > 0 {
		p.AttractorProtection = fc.AttractorProtection
	}
	if fc.MaxCapacity > 0 {
		p.MaxCapacity = fc.MaxCapacity
	}
	if fc.ReservedTokens > 0 {
		p.ReservedTokens = fc.ReservedTokens
	}
	if fc.OverflowStrategy != "" {
		p.OverflowStrategy = field.OverflowStrategy(fc.OverflowStrategy)
	}
	if fc.ConsolidationThreshold > 0 {
		p.ConsolidationThreshold = fc.ConsolidationThreshold
	}
	if fc.AccessBoost > 0 {
		p.AccessBoost = fc.AccessBoost
	}
	if fc.HealthThreshold > 0 {
		p.HealthThreshold = fc.HealthThreshold
	}
	if fc.RepairStrength > 0 {
		p.RepairStrength = fc.RepairStrength
	}
	if fc.MaxStrength > 0 {
		p.MaxStrength = fc.MaxStrength
	}
	if fc.AmplificationFactor > 0 {
		p.AmplificationFactor = fc.AmplificationFactor
	}
	if fc.StrengthFactor > 0 {
		p.StrengthFactor = fc.StrengthFactor
	}
	if fc.PruneFloor > 0 {
		p.PruneFloor = fc.PruneFloor
	}
	return p
}

// syncMirrors refreshes the external mirrors for every field. Mirror
// failures are logged and never interrupt the engine.
func syncMirrors(manager *field.Manager, mirror *graph.Mirror, index *vectors.Index, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range manager.IDs() {
		f, err := manager.Get(id)
		if err != nil {
			continue
		}
		if mirror != nil {
			if err := mirror.SyncField(ctx, f); err != nil {
				logger.Warn("graph mirror sync failed", zap.String("field", id), zap.Error(err))
			}
		}
		if index != nil {
			if err := index.SyncField(ctx, f); err != nil {
				logger.Warn("vector index sync failed", zap.String("field", id), zap.Error(err))
			}
		}
	}
}
