package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/internal/database"
	"github.com/temcen/lotus/internal/messaging"
	"github.com/temcen/lotus/internal/ml"
	"github.com/temcen/lotus/internal/store"
	"github.com/temcen/lotus/internal/validation"
)

type Services struct {
	Health     *HealthService
	RateLimit  *RateLimitService
	MessageBus *messaging.MessageBus
	Metrics    *Metrics
	Embeddings *EmbeddingGenerator
	Search     *SimilaritySearchEngine
	Assessment *AssessmentService
	Library    *IngredientLibrary
	Schemas    *validation.SchemaValidator
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	metrics := NewMetrics(prometheus.DefaultRegisterer, logger)
	healthService := NewHealthService(prometheus.DefaultRegisterer, logger)
	rateLimitService := NewRateLimitService(cfg.RateLimit, logger, db.Redis.Hot)

	embeddingClient, err := newEmbeddingClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	embeddings, err := NewEmbeddingGenerator(embeddingClient, cfg.Embedding.CacheSize, metrics, logger)
	if err != nil {
		return nil, err
	}

	pgRefs := store.NewPostgresReferenceStore(db.PG, logger)
	var references store.ReferenceStore = pgRefs
	if !cfg.Database.UseVectorIndex {
		references = pgRefs.WithoutVectorIndex()
	}

	cache, err := newSearchCache(cfg.Search, db.Redis.Warm, logger)
	if err != nil {
		return nil, err
	}
	search := NewSimilaritySearchEngine(embeddings, references, cache, cfg.Search, metrics, logger)

	profiles := store.NewPostgresProfileStore(db.PG)
	fanOut := NewFanOutOrchestrator(search, profiles, cfg.Search, cfg.Assessment, metrics, logger)

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load response schemas: %w", err)
	}
	chat := ml.NewOpenAIChatClient(cfg.Reasoning, cfg.Breaker, logger)
	synthesizer := NewAssessmentSynthesizer(chat, validator, metrics, logger)

	var related store.RelatedLookup
	if db.Neo4j != nil {
		related = store.NewNeo4jRelatedGraph(db.Neo4j)
	}
	library := NewIngredientLibrary(references, related, search, logger)

	var messageBus *messaging.MessageBus
	var publisher EventPublisher
	if cfg.Kafka.Enabled {
		messageBus, err = messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, err
		}
		publisher = messageBus
	}

	assessment := NewAssessmentService(fanOut, synthesizer, search, publisher, cfg.Assessment.Timeout, metrics, logger)

	healthService.WatchPool(db.PG)
	healthService.AddCheck("postgresql", true, db.PG.Ping)
	healthService.AddCheck("redis_hot", true, func(ctx context.Context) error {
		return db.Redis.Hot.Ping(ctx).Err()
	})
	healthService.AddCheck("redis_warm", false, func(ctx context.Context) error {
		return db.Redis.Warm.Ping(ctx).Err()
	})
	if db.Neo4j != nil {
		healthService.AddCheck("neo4j", false, db.Neo4j.VerifyConnectivity)
	}

	return &Services{
		Health:     healthService,
		RateLimit:  rateLimitService,
		MessageBus: messageBus,
		Metrics:    metrics,
		Embeddings: embeddings,
		Search:     search,
		Assessment: assessment,
		Library:    library,
		Schemas:    validator,
	}, nil
}

// Close waits for pending event publications and stops the message bus.
func (s *Services) Close() error {
	s.Assessment.Wait()
	if s.MessageBus != nil {
		return s.MessageBus.Close()
	}
	return nil
}

func newEmbeddingClient(cfg *config.Config, logger *logrus.Logger) (ml.EmbeddingClient, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return ml.NewOpenAIEmbeddingClient(cfg.Embedding, cfg.Breaker, logger), nil
	case "local":
		logger.WithField("dimensions", cfg.Embedding.Dimensions).Warn("Using local hashing embedder; similarity quality is reduced")
		return ml.NewLocalEmbedder(cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newSearchCache(cfg config.SearchConfig, warm *redis.Client, logger *logrus.Logger) (SearchCache, error) {
	switch cfg.CacheBackend {
	case "", "memory":
		return NewMemorySearchCache(cfg.CacheTTL, cfg.CacheCleanupInterval), nil
	case "redis":
		if warm == nil {
			return nil, fmt.Errorf("redis search cache requires the warm redis tier")
		}
		return NewRedisSearchCache(warm, cfg.CacheTTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown search cache backend %q", cfg.CacheBackend)
	}
}
