package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/common"
	"github.com/jeiths2202/ims-crawler/internal/handlers"
	"github.com/jeiths2202/ims-crawler/internal/interfaces"
	"github.com/jeiths2202/ims-crawler/internal/services/attachments"
	"github.com/jeiths2202/ims-crawler/internal/services/chat"
	"github.com/jeiths2202/ims-crawler/internal/services/crawler"
	"github.com/jeiths2202/ims-crawler/internal/services/credentials"
	"github.com/jeiths2202/ims-crawler/internal/services/events"
	"github.com/jeiths2202/ims-crawler/internal/services/intent"
	"github.com/jeiths2202/ims-crawler/internal/services/llm"
	"github.com/jeiths2202/ims-crawler/internal/services/scraper"
	"github.com/jeiths2202/ims-crawler/internal/services/search"
	"github.com/jeiths2202/ims-crawler/internal/storage/postgres"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *postgres.Manager

	// Core services
	EventService      interfaces.EventService
	ScraperService    interfaces.ScraperService
	CredentialService interfaces.CredentialService
	LLMService        interfaces.LLMService
	EmbeddingService  interfaces.EmbeddingService
	IntentService     interfaces.IntentService
	SearchService     interfaces.SearchService
	ChatService       interfaces.ChatService
	CrawlerService    *crawler.Service

	// HTTP handlers
	JobHandler        *handlers.JobHandler
	ChatHandler       *handlers.ChatHandler
	CredentialHandler *handlers.CredentialHandler
	SearchHandler     *handlers.SearchHandler
	StatusHandler     *handlers.StatusHandler
	WSHandler         *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storage, err := postgres.NewManager(ctx, &cfg.Database, cfg.Embedding.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storage

	app.EventService = events.NewService(logger)

	scraperService := scraper.NewService(&cfg.Scraper, logger)
	app.ScraperService = scraperService

	credentialService, err := credentials.NewService(storage.CredentialStorage(), scraperService, cfg.Security.EncryptionKey, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize credential service: %w", err)
	}
	app.CredentialService = credentialService

	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	app.LLMService = llmService

	embeddingService, err := llm.NewEmbeddingService(cfg, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	app.EmbeddingService = embeddingService

	app.IntentService = intent.NewService(llmService, logger)
	app.SearchService = search.NewService(storage.IssueStorage(), embeddingService, &cfg.Search, logger)
	app.ChatService = chat.NewService(storage.IssueStorage(), llmService, &cfg.Chat, logger)

	app.CrawlerService = crawler.NewService(
		cfg,
		scraperService,
		credentialService,
		app.IntentService,
		embeddingService,
		attachments.NewExtractor(logger),
		storage.IssueStorage(),
		storage.JobStorage(),
		app.EventService,
		logger,
	)

	app.JobHandler = handlers.NewJobHandler(app.CrawlerService, storage.IssueStorage(), app.EventService, logger)
	app.ChatHandler = handlers.NewChatHandler(app.ChatService, logger)
	app.CredentialHandler = handlers.NewCredentialHandler(app.CredentialService, logger)
	app.SearchHandler = handlers.NewSearchHandler(app.SearchService, app.CrawlerService, storage.IssueStorage(), logger)
	app.StatusHandler = handlers.NewStatusHandler(storage.JobStorage(), logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, &cfg.WebSocket, logger)

	logger.Info().
		Str("llm_provider", cfg.LLM.Provider).
		Str("embedding_provider", cfg.Embedding.Provider).
		Msg("Application initialized")

	return app, nil
}

// Close releases application resources
func (a *App) Close() {
	if a.CrawlerService != nil {
		a.CrawlerService.StopCleanup()
	}
	if a.StorageManager != nil {
		a.StorageManager.Close()
	}
	a.Logger.Info().Msg("Application closed")
}
