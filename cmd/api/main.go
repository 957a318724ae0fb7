package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/db"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/infra/geoip"
	"server/internal/infra/google"
	"server/internal/providers/detector"
	"server/internal/providers/genai"
	"server/internal/providers/prompt"
	"server/internal/storage"
	"server/internal/tools"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Database-stored tokens take precedence over environment keys so they
	// can be rotated with the providerkey command without a restart of env.
	creds := credentials.NewStore(dbpool)
	for provider, target := range map[string]*string{
		credentials.ProviderGemini:   &cfg.GeminiAPIKey,
		credentials.ProviderOpenAI:   &cfg.OpenAIAPIKey,
		credentials.ProviderDetector: &cfg.DetectorAPIKey,
	} {
		token, err := creds.Token(ctx, provider)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("failed to load stored token")
			continue
		}
		if token != "" {
			*target = token
		}
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize file store")
	}

	countryResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country detection degraded")
	}

	accounts := repo.NewAccountRepository(dbpool)
	transactions := repo.NewTransactionRepository(dbpool)
	usage := repo.NewUsageRepository(dbpool)
	results := repo.NewResultRepository(dbpool)

	registry := credits.NewRegistry()
	tracker := credits.NewTracker(usage, logger)
	ledger := credits.NewLedger(registry, transactions, logger)
	validator := credits.NewValidator(registry, accounts, tracker, logger)
	allocator := credits.NewAllocator(registry, accounts, transactions, logger)

	generator := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	detection := detector.NewClient(detector.Options{
		APIKey:  cfg.DetectorAPIKey,
		BaseURL: cfg.DetectorBaseURL,
		Logger:  &logger,
	})
	enhancer, err := prompt.NewOpenAIEnhancer(prompt.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		Fallback:     prompt.NewStaticEnhancer(),
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("prompt enhancer degraded to fallback")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize prompt enhancer")
	}

	orch := tools.NewOrchestrator(validator, ledger, tracker, results, logger, cfg.ProviderCallTimeout)

	app := &handlers.App{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		GoogleVerifier:  google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID),
		Accounts:        accounts,
		Results:         results,
		Validator:       validator,
		Ledger:          ledger,
		Tracker:         tracker,
		Allocator:       allocator,
		Writer:          tools.NewWriter(orch, generator, fileStore),
		Researcher:      tools.NewResearcher(orch, generator, fileStore),
		Detector:        tools.NewDetector(orch, detection),
		PromptOptimizer: tools.NewPromptOptimizer(orch, enhancer),
		FileStore:       fileStore,
	}

	var lookup func(ip string) (string, error)
	if countryResolver != nil {
		lookup = countryResolver.CountryCode
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
