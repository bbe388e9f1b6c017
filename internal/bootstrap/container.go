package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"

	"rag-chat-be/internal/config"
	"rag-chat-be/internal/controller"
	"rag-chat-be/internal/handler"
	"rag-chat-be/internal/pkg/logger"
	"rag-chat-be/internal/repository/memory"
	"rag-chat-be/internal/repository/unitofwork"
	"rag-chat-be/internal/service"
	"rag-chat-be/internal/websocket"
	"rag-chat-be/pkg/events"
	"rag-chat-be/pkg/llm/factory"
	pktNats "rag-chat-be/pkg/nats"
	"rag-chat-be/pkg/rag/engine"
	"rag-chat-be/pkg/rag/history"
	"rag-chat-be/pkg/rag/prompt"
	"rag-chat-be/pkg/rag/search"
	"rag-chat-be/pkg/rag/tokens"
	"rag-chat-be/pkg/rag/vectorindex"
	"rag-chat-be/pkg/utils"
)

// teardownTopic carries index teardown jobs for deleted sessions.
const teardownTopic = "session_index_teardown"

type Container struct {
	Logger logger.ILogger

	// Controllers
	ChatController   controller.IChatController
	FileController   controller.IFileController
	HealthController controller.IHealthController

	// Live channel
	ChatSocketHandler *handler.ChatSocketHandler
	WebSocketHub      *websocket.Hub

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	closers []func() error
}

// NewContainer wires every dependency. ctx bounds background work and the
// lifetime of chat turns; cancel it on shutdown.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(filepath.Join(cfg.App.LogDir, "websocket.log"))
	ragLogger := logger.NewIsolatedLogger(filepath.Join(cfg.App.LogDir, "llm_rag.log"))

	c := &Container{Logger: sysLogger}

	// 2. Infrastructure
	rdb, err := OpenRedis(ctx, cfg.App.RedisURL, sysLogger)
	if err != nil {
		sysLogger.Warn(bootstrapModule, "Redis unavailable, live events stay on this instance", map[string]interface{}{"error": err.Error()})
		rdb = nil
	}
	if rdb != nil {
		c.closers = append(c.closers, rdb.Close)
	}

	var sink events.Sink
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn(bootstrapModule, "Failed to connect to NATS, domain events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			sink = natsPub
			c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
		}
	}
	chatEvents := events.NewChatPublisher(sink, sysLogger)

	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.closers = append(c.closers, pubSub.Close)

	// 3. AI Providers
	embeddingBaseURL := cfg.Ai.EmbeddingBaseURL
	if embeddingBaseURL == "" && cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingBaseURL = cfg.Ai.OllamaBaseURL
	}
	embeddingProvider, err := factory.NewEmbeddingProvider(factory.EmbeddingConfig{
		Provider: cfg.Ai.EmbeddingProvider,
		Model:    cfg.Ai.EmbeddingModel,
		BaseURL:  embeddingBaseURL,
		ApiKey:   cfg.Ai.EmbeddingApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	llmBaseURL := cfg.Ai.LLMBaseURL
	if llmBaseURL == "" && cfg.Ai.LLMProvider == "ollama" {
		llmBaseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(factory.LLMConfig{
		Provider:    cfg.Ai.LLMProvider,
		Model:       cfg.Ai.LLMModel,
		BaseURL:     llmBaseURL,
		ApiKey:      cfg.Ai.LLMApiKey,
		Temperature: cfg.Ai.LLMTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	sysLogger.Info(bootstrapModule, "AI providers ready", map[string]interface{}{
		"llm_provider":       cfg.Ai.LLMProvider,
		"llm_model":          cfg.Ai.LLMModel,
		"embedding_provider": cfg.Ai.EmbeddingProvider,
		"index_store":        cfg.Rag.IndexStore,
	})

	estimator, err := tokens.GetEstimator()
	if err != nil {
		sysLogger.Warn(bootstrapModule, "Token estimator unavailable, prompt sizes will not be logged", map[string]interface{}{"error": err.Error()})
		estimator = nil
	}

	// 4. Retrieval pipeline
	splitter, err := utils.NewTextSplitter(cfg.Rag.ChunkSize, cfg.Rag.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	persister, closePersister, err := OpenIndexPersister(cfg.Rag, db, rdb)
	if err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}
	c.closers = append(c.closers, closePersister)

	store := vectorindex.NewStore(embeddingProvider, splitter, persister, ragLogger)
	chatEngine := engine.NewEngine(
		llmProvider,
		search.NewRetriever(store, cfg.Rag.TopK),
		prompt.NewBuilder(cfg.Rag.HistoryWindow),
		estimator,
		ragLogger,
	)

	// 5. Services
	wsHub := websocket.NewHub(rdb, wsLogger)
	sessionCache := memory.NewSessionRepository()

	chatService := service.NewChatService(
		uowFactory,
		sessionCache,
		chatEngine,
		history.NewLoader(uowFactory),
		wsHub,
		chatEvents,
		service.NewPublisherService(teardownTopic, pubSub),
		sysLogger,
		cfg.Rag.HistoryWindow,
	)
	fileService := service.NewFileService(uowFactory, sessionCache, chatService, store, chatEvents, sysLogger)

	c.ConsumerService = service.NewConsumerService(pubSub, teardownTopic, store, sysLogger)
	c.WebSocketHub = wsHub

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService)
	c.FileController = controller.NewFileController(fileService, cfg.App.MaxUploadBytes)
	c.HealthController = controller.NewHealthController()
	c.ChatSocketHandler = handler.NewChatSocketHandler(ctx, chatService, fileService, wsHub, cfg.App.JwtSecret, wsLogger)

	return c, nil
}

// Close releases connections and stores in reverse order of creation.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	// Syncing a console sink fails on some terminals; nothing to act on.
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}
