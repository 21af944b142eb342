package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragserver/internal/api"
	"ragserver/internal/auth"
	"ragserver/internal/config"
	"ragserver/internal/core"
	"ragserver/internal/llm"
	"ragserver/internal/store"
)

func main() {
	config.LoadConfig()

	level := slog.LevelInfo
	if config.AppConfig.LogLevel == "DEBUG" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Optional one-shot ingestion of a local file before serving requests.
	ingestFile := flag.String("ingest", "", "Ingest a local text file into the shared knowledge base and exit")
	ingestCollection := flag.String("collection", "Seed Data", "Collection name used with -ingest")
	flag.Parse()

	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	llmService, err := llm.NewService(
		config.AppConfig.OllamaURL,
		config.AppConfig.HostedAPIURL,
		config.AppConfig.EmbeddingModel,
		config.AppConfig.DefaultModel,
	)
	if err != nil {
		log.Fatalf("Failed to initialize model service: %v", err)
	}

	collectionService, err := core.NewCollectionService(
		dbStore, llmService.Embedder(),
		config.AppConfig.ChunkSize, config.AppConfig.ChunkOverlap,
	)
	if err != nil {
		log.Fatalf("Failed to initialize collection service: %v", err)
	}
	defer collectionService.Close()

	if *ingestFile != "" {
		data, err := os.ReadFile(*ingestFile)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *ingestFile, err)
		}
		// Ingesting under the shared tenant makes the data visible to everyone.
		if _, err := collectionService.IngestText(context.Background(), store.SharedTenant, *ingestCollection, string(data)); err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		slog.Info("ingestion complete", "file", *ingestFile, "collection", *ingestCollection)
		os.Exit(0)
	}

	chatService := core.NewChatService(dbStore, llmService)
	provider := auth.NewJWTProvider(config.AppConfig.JWTSecret)

	apiHandler := api.NewAPIHandler(provider, dbStore, collectionService, chatService)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls and repository fetches can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("server exited gracefully")
}
