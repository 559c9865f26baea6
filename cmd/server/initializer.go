package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/alerts"
	"github.com/pauubach/narrassist/internal/capability"
	"github.com/pauubach/narrassist/internal/collections"
	"github.com/pauubach/narrassist/internal/config"
	"github.com/pauubach/narrassist/internal/coref"
	"github.com/pauubach/narrassist/internal/embeddings"
	"github.com/pauubach/narrassist/internal/identity"
	"github.com/pauubach/narrassist/internal/llm"
	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/orchestration"
	"github.com/pauubach/narrassist/internal/scheduler"
	"github.com/pauubach/narrassist/internal/server"
	"github.com/pauubach/narrassist/internal/snapshot"
	"github.com/pauubach/narrassist/internal/speech"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/style"
	"github.com/pauubach/narrassist/internal/types"
)

// app owns the process-wide components with an explicit lifecycle, so
// tests and shutdown paths can substitute or tear them down.
type app struct {
	Server    *server.Server
	store     storage.Storage
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

func (a *app) Close() {
	a.scheduler.Shutdown()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("storage close failed", zap.Error(err))
	}
}

// initialize builds the dependency graph bottom-up: capability
// detection → scheduler → storage → embeddings/LLM capabilities →
// scoring methods → resolver → analyzers → pipeline → server.
func initialize(cfg *config.Config, logger *zap.Logger) (*app, error) {
	capRegistry := capability.NewRegistry(logger.Named("capability"))
	recommendation := capRegistry.Recommend()

	sched := scheduler.New(recommendation.MaxConcurrentHeavyTasks, logger.Named("scheduler"))

	store, err := storage.New(cfg.Storage, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Embeddings: the hash embedder backs everything when no external
	// model is configured; the pipeline stays correct either way.
	var embedder embeddings.Embedder
	if cfg.Embeddings.Enabled {
		embedder = embeddings.NewCachedEmbedder(
			embeddings.NewHashEmbedder(cfg.Embeddings.Dimension),
			cfg.Embeddings.CacheSize,
			cfg.Embeddings.CacheTTL,
		)
	}

	// LLM is optional: absent means the LLM method abstains and the
	// narrator detector falls back to patterns.
	var llmClient llm.Client
	if cfg.LLM.Enabled {
		llmClient = llm.NewHTTPClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Timeout:     cfg.LLM.Timeout,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
	}

	methods := []coref.Method{
		coref.NewMorphologyMethod(),
		coref.NewHeuristicsMethod(),
		coref.NewEmbeddingMethod(embedder),
		coref.NewProDropMethod(),
	}
	if llmClient != nil {
		methods = append(methods, coref.NewLLMMethod(llmClient, logger.Named("coref")))
	}

	resolverCfg := coref.DefaultConfig()
	if len(cfg.Analysis.MethodWeights) > 0 {
		resolverCfg.MethodWeights = cfg.Analysis.MethodWeights
	}
	resolverCfg.MaxAntecedentDistance = cfg.Analysis.MaxAntecedentDistance
	resolverCfg.RespectChapterBoundaries = cfg.Analysis.UseChapterBoundaries

	resolver := coref.NewResolver(
		resolverCfg,
		methods,
		coref.NewNarratorDetector(llmClient, logger.Named("narrator")),
		logger.Named("coref"),
	)

	metricsCache := speech.NewMetricsCache(cfg.Analysis.MetricsCacheSize)
	detector := speech.NewDetector(
		cfg.Analysis.SpeechWindowSize,
		cfg.Analysis.SpeechWindowOverlap,
		cfg.Analysis.SpeechMinWords,
		cfg.Analysis.SpeechMinConfidence,
		metricsCache,
		logger.Named("speech"),
	)

	var redundancy *style.RedundancyDetector
	if recommendation.EnableSemanticRedundancy && embedder != nil {
		redundancy = style.NewRedundancyDetector(embedder, cfg.Analysis.RedundancyMode, logger.Named("style"))
	}

	alertEngine := alerts.NewEngine(store, types.AlertSeverity(cfg.Analysis.MinSeverity), logger.Named("alerts"))
	comparator := snapshot.NewComparator(store, logger.Named("snapshot"))
	progress := orchestration.NewProgressRegistry()

	pipeline := orchestration.NewPipeline(orchestration.Deps{
		Store:             store,
		Extractor:         nlp.NewExtractor(nil, logger.Named("nlp")),
		Resolver:          resolver,
		Attributor:        speech.NewAttributor(logger.Named("speech")),
		Detector:          detector,
		Redundancy:        redundancy,
		Alerts:            alertEngine,
		Comparator:        comparator,
		Scheduler:         sched,
		Capability:        capRegistry,
		Progress:          progress,
		Logger:            logger.Named("pipeline"),
		SnapshotRetention: cfg.Storage.MaxSnapshotsPerProject,
	})

	identitySvc := identity.NewService(store, cfg.Identity.UncertainLimit30d, logger.Named("identity"))
	collectionsSvc := collections.NewService(store, logger.Named("collections"))
	if cfg.Neo4j.URI != "" {
		exporter, err := collections.NewNeo4jExporter(context.Background(),
			cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database,
			store, logger.Named("neo4j"))
		if err != nil {
			// The graph export is an optional capability; a dead
			// backend degrades to the no-op exporter.
			logger.Warn("neo4j exporter unavailable", zap.Error(err))
		} else {
			collectionsSvc.SetExporter(exporter)
		}
	}

	srv := server.New(store, pipeline, progress, comparator, identitySvc, collectionsSvc, capRegistry, logger.Named("server"))

	return &app{
		Server:    srv,
		store:     store,
		scheduler: sched,
		logger:    logger,
	}, nil
}
