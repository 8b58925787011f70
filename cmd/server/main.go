package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agenthands/argus/internal/config"
	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/structure"
	"github.com/agenthands/argus/internal/driver"
	"github.com/agenthands/argus/internal/ingest"
	"github.com/agenthands/argus/internal/llm"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/logger/console"
	"github.com/agenthands/argus/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		logger.Init(console.New(console.Params{}))
		logger.Fatal("Failed to load configuration", "path", cfgPath, "err", err)
	}
	cfg.ApplyEnv()

	logger.Init(console.New(console.Params{Debug: cfg.Debug, Prefix: "argus"}))
	if envErr != nil {
		logger.Debug("No .env file found, using environment and config only")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmClient, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", "err", err)
	}
	if closer, ok := llmClient.(io.Closer); ok {
		defer closer.Close()
	}
	if embedder == nil {
		logger.Warn("No embedding provider configured; queries run without semantic retrieval")
	}

	engine, err := core.NewEngine(cfg.EngineOptions(), embedder)
	if err != nil {
		logger.Fatal("Failed to build engine", "err", err)
	}
	if cfg.LLM.Narrative && llmClient != nil {
		narrator, err := llm.NewNarrator(llmClient, cfg.Prompts.Narrative)
		if err != nil {
			logger.Fatal("Failed to build narrator", "err", err)
		}
		engine.Narrator = narrator
	}

	if cfg.Memgraph.Hydrate {
		hydrate(ctx, cfg, engine)
	}

	scheduler := structure.NewScheduler(cfg.RefreshInterval(), engine.Refresh)
	go scheduler.Run(ctx)
	scheduler.Trigger()

	if cfg.Ingest.AMQPURL != "" {
		consumer, err := ingest.NewConsumer(cfg.Ingest.AMQPURL, cfg.Ingest.Queue, cfg.Ingest.Prefetch, engine, scheduler.Trigger)
		if err != nil {
			logger.Fatal("Failed to start ingest consumer", "err", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Ingest consumer stopped", "err", err)
			}
		}()
	}

	if cfg.Ingest.WatchDir != "" {
		watcher, err := ingest.NewWatcher(cfg.Ingest.WatchDir, engine, scheduler.Trigger)
		if err != nil {
			logger.Fatal("Failed to start ingest watcher", "err", err)
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("Ingest watcher stopped", "err", err)
			}
		}()
	}

	srv := server.NewServer(engine, scheduler.Trigger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.SetupRouter(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "err", err)
		}
	}()

	logger.Info("Starting server", "port", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", "err", err)
	}
	logger.Info("Server stopped")
}

// hydrate loads the persisted graph before the server starts taking queries. A store that
// cannot be reached is logged and skipped; the engine then starts empty.
func hydrate(ctx context.Context, cfg *config.Config, engine *core.Engine) {
	d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password)
	if err != nil {
		logger.Error("Failed to connect to Memgraph, starting with an empty graph", "err", err)
		return
	}
	defer d.Close(ctx)

	if err := d.BuildIndices(ctx); err != nil {
		logger.Warn("Failed to build graph store indices", "err", err)
	}
	batch, err := driver.Hydrate(ctx, d)
	if err != nil {
		logger.Error("Failed to hydrate graph", "err", err)
		return
	}
	res, err := engine.Apply(ctx, batch)
	if err != nil {
		logger.Error("Hydrated graph only partially applied", "err", err, "entities", res.Entities, "relationships", res.Relationships)
		return
	}
	logger.Info("Graph hydrated", "entities", res.Entities, "relationships", res.Relationships, "evidence", res.Evidence, "embeddings", res.Embeddings)
}
