package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/cache"
	"github.com/voxtro/voxtro-engine/pkg/config"
	"github.com/voxtro/voxtro-engine/pkg/database"
	"github.com/voxtro/voxtro-engine/pkg/handlers"
	"github.com/voxtro/voxtro-engine/pkg/llm"
	"github.com/voxtro/voxtro-engine/pkg/logging"
	"github.com/voxtro/voxtro-engine/pkg/middleware"
	"github.com/voxtro/voxtro-engine/pkg/repositories"
	"github.com/voxtro/voxtro-engine/pkg/services"
	"github.com/voxtro/voxtro-engine/pkg/tokens"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("ai_endpoint", cfg.AI.Endpoint),
		zap.String("default_model", cfg.AI.DefaultModel))

	ctx := context.Background()
	connStr := cfg.Database.ConnectionString()

	if err := database.Migrate(connStr, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	chatbotRepo := repositories.NewChatbotRepository(db)
	conversationRepo := repositories.NewConversationRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	cacheRepo := repositories.NewCacheRepository(db)
	usageRepo := repositories.NewUsageRepository(db)
	leadRepo := repositories.NewLeadRepository(db)
	faqRepo := repositories.NewFAQRepository(db)

	// Provider client with model fallback on top
	provider, err := llm.NewProviderClient(&llm.ClientConfig{
		Endpoint:       cfg.AI.Endpoint,
		APIKey:         cfg.AI.APIKey,
		RequestTimeout: time.Duration(cfg.AI.RequestTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create provider client", zap.Error(err))
	}

	completions := llm.NewFallbackClient(provider, &llm.FallbackConfig{
		Chains:     llm.DefaultFallbackChains(),
		MaxRetries: cfg.AI.MaxRetries,
		MaxBackoff: time.Duration(cfg.AI.MaxBackoffSeconds) * time.Second,
	}, logger)

	executor := llm.NewActionExecutor(time.Duration(cfg.AI.ToolTimeoutSeconds)*time.Second, logger)
	responseCache := cache.NewResponseCache(cacheRepo, logger)
	accountant := tokens.NewAccountant(usageRepo, tokens.DefaultPricing(), cfg.AI.DefaultModel, logger)

	chatService := services.NewChatService(&services.ChatServiceConfig{
		Chatbots:      chatbotRepo,
		Conversations: conversationRepo,
		Messages:      messageRepo,
		FAQs:          faqRepo,
		ResponseCache: responseCache,
		Accountant:    accountant,
		Completions:   completions,
		Executors:     executor,
		DefaultModel:  cfg.AI.DefaultModel,
	}, logger)

	summaryService := services.NewSummaryService(&services.SummaryServiceConfig{
		Chatbots:      chatbotRepo,
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Leads:         leadRepo,
		Accountant:    accountant,
		Completions:   completions,
		DefaultModel:  cfg.AI.DefaultModel,
	}, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chatService, summaryService, logger).RegisterRoutes(mux)
	handlers.NewLeadsHandler(leadRepo, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting voxtro-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
