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
	"github.com/nidhogg/skillvault/internal/api"
	"github.com/nidhogg/skillvault/internal/config"
	"github.com/nidhogg/skillvault/internal/embedding"
	"github.com/nidhogg/skillvault/internal/evolution"
	"github.com/nidhogg/skillvault/internal/library"
	"github.com/nidhogg/skillvault/internal/retrieval"
	"github.com/nidhogg/skillvault/internal/skill"
	"github.com/nidhogg/skillvault/internal/store"
	"github.com/nidhogg/skillvault/internal/vectorstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting SkillVault...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/skillvault.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Skill store: PostgreSQL when configured, in-memory otherwise.
	var skillStore skill.Store = store.NewMemory()
	if cfg.Database.Postgres.DSN != "" {
		pg, pgErr := store.NewPostgres(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running with in-memory store", zap.Error(pgErr))
		} else {
			if mErr := pg.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			defer pg.Close()
			skillStore = pg
		}
	}

	// Embedding client: remote provider when an endpoint is configured,
	// deterministic hash embedding otherwise.
	embedder := embedding.NewClient(embedding.Config{
		Endpoint:       cfg.Embedding.Endpoint,
		Model:          cfg.Embedding.Model,
		APIKey:         cfg.Embedding.APIKey,
		Dimension:      cfg.Embedding.Dimension,
		TimeoutSeconds: cfg.Embedding.TimeoutSeconds,
	}, logger)
	if cfg.Database.Redis.URL != "" {
		rc, rErr := embedding.NewRedisCache(cfg.Database.Redis.URL, 0, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without persistent embedding cache", zap.Error(rErr))
		} else {
			defer rc.Close()
			embedder.SetRedisCache(rc)
			logger.Info("Redis embedding cache attached")
		}
	}

	retrievalEngine := retrieval.NewEngine(skillStore, embedder, logger)
	retrievalEngine.SetDefaults(cfg.Retrieval.TopK, cfg.Retrieval.MinSimilarity)
	evolutionEngine := evolution.NewEngine(skillStore, evolution.Config{
		PromotionMinUsage:  cfg.Evolution.PromotionMinUsage,
		PromotionThreshold: cfg.Evolution.PromotionThreshold,
		DemotionMinUsage:   cfg.Evolution.DemotionMinUsage,
		DemotionThreshold:  cfg.Evolution.DemotionThreshold,
		PruneMinUsage:      cfg.Evolution.PruneMinUsage,
		PruneThreshold:     cfg.Evolution.PruneThreshold,
		MaxUnusedAgeDays:   cfg.Evolution.MaxUnusedAgeDays,
	}, logger)

	svc := library.New(skillStore, retrievalEngine, evolutionEngine, embedder, logger)

	if cfg.Database.Qdrant.Host != "" {
		idx, qErr := vectorstore.NewIndex(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, running without vector index", zap.Error(qErr))
		} else if qErr = idx.EnsureCollection(context.Background(), uint64(embedder.Dimension())); qErr != nil {
			logger.Warn("Qdrant collection init failed, running without vector index", zap.Error(qErr))
		} else {
			defer idx.Close()
			svc.SetIndex(idx)
			logger.Info("Qdrant vector index attached")
		}
	}

	handler := api.NewHandler(svc, logger)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
