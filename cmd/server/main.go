package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panrag/internal/api"
	"panrag/internal/app/bootstrap"
	"panrag/internal/db/postgres"
	redisdb "panrag/internal/db/redis"
	"panrag/internal/domain/rag"
	"panrag/internal/platform/config"
	applog "panrag/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(cfg.LogLevel, cfg.LogFormat)

	ledger, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		applog.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer ledger.Close()
	applog.Info("✅ Connected to PostgreSQL")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migrateCancel()
	if err := ledger.EnsureTables(migrateCtx); err != nil {
		applog.Fatalf("❌ Failed to ensure ledger tables: %v", err)
	}
	applog.Info("✅ Ledger tables ready (documents, chunks)")

	ragCfg := &cfg.RAG
	ingestor := rag.NewIngestor(ledger, ragCfg)
	retriever := rag.NewRetriever(ragCfg)

	if cfg.OpenAI.APIKey != "" {
		embedder := rag.NewOpenAIEmbedder(rag.OpenAIEmbedderConfig{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
			Model:   ragCfg.EmbeddingModel,
			Dims:    ragCfg.EmbeddingDims,
		})
		ingestor.SetEmbedder(embedder)
		retriever.SetEmbedder(embedder)
		applog.Infof("✅ Embedder initialized (model: %s, dims: %d)", ragCfg.EmbeddingModel, embedder.Dims())
	} else {
		applog.Warn("⚠️  No OPENAI_API_KEY set, ingestion and retrieval will fail until configured")
	}

	if ragCfg.HasCache() && cfg.Redis.URL != "" {
		redisClient, err := redisdb.NewClient(cfg.Redis.URL)
		if err != nil {
			applog.Warnf("⚠️  Redis connection failed, query cache disabled: %v", err)
		} else {
			defer redisClient.Close()
			searchCache := redisdb.NewSearchCache(redisClient, ragCfg.CacheTTL)
			ingestor.SetCache(searchCache)
			retriever.SetCache(searchCache)
			applog.Infof("✅ Query cache initialized (TTL: %ds)", ragCfg.CacheTTL)
		}
	}

	providerName := bootstrap.RegisterLLMProvider(cfg.LLM.Provider, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Gemini.APIKey)
	synthesizer := rag.NewSynthesizer(providerName, cfg.LLM.Model)
	if synthesizer.Available() {
		applog.Infof("✅ Answer synthesizer ready (provider: %s, model: %s)", providerName, cfg.LLM.Model)
	}

	applog.Infof("✅ Parser registry initialized (types: %s)", ingestor.Parsers().SupportedTypes())
	applog.Infof("✅ Vector index directory: %s", ragCfg.IndexDir)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	server := api.NewServer(serverConfig, ledger, ingestor, retriever, synthesizer, ragCfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
