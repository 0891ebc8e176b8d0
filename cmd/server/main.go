package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/audit"
	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core"
	"github.com/agenthands/strata/internal/core/scanner"
	"github.com/agenthands/strata/internal/driver"
	"github.com/agenthands/strata/internal/llm"
	"github.com/agenthands/strata/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("config/config.toml"); err == nil {
			cfgPath = "config/config.toml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := driver.NewMemgraphStore(ctx, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, logger)
	if err != nil {
		logger.Fatal("failed to connect to graph store", zap.Error(err))
	}
	defer store.Close(context.Background())

	var extractor *llm.Extractor
	var embedder llm.EmbedderClient
	if cfg.LLM.Provider != "" {
		llmClient, embedderClient, err := llm.NewClient(ctx, cfg.LLM)
		if err != nil {
			logger.Fatal("failed to initialize LLM client", zap.Error(err))
		}
		extractor = llm.NewExtractor(llmClient)
		embedder = embedderClient
	} else {
		logger.Warn("no LLM provider configured, document extraction disabled")
	}

	sink, err := audit.NewSink(cfg.Audit.Path, logger)
	if err != nil {
		logger.Fatal("failed to open audit log", zap.Error(err))
	}
	defer sink.Close()

	strata := core.New(store, embedder, sink, cfg, logger)
	if err := strata.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to bootstrap", zap.Error(err))
	}

	sc := scanner.New(store, strata.Machine(), strata.Engine(), sink, cfg.Scanner, logger)
	go sc.Run(ctx, cfg.ScanInterval())

	srv := server.New(strata, extractor, sc, sink, logger)
	r := srv.SetupRouter()

	logger.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
