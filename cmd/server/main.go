// Package main provides the VOC auto-processing API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/api"
	"github.com/geonhos/poc-voc-auto-processing/internal/auth"
	"github.com/geonhos/poc-voc-auto-processing/internal/database"
	"github.com/geonhos/poc-voc-auto-processing/internal/llm"
	"github.com/geonhos/poc-voc-auto-processing/internal/logstore"
	"github.com/geonhos/poc-voc-auto-processing/internal/normalizer"
	"github.com/geonhos/poc-voc-auto-processing/internal/notify"
	"github.com/geonhos/poc-voc-auto-processing/internal/rag"
	"github.com/geonhos/poc-voc-auto-processing/internal/registry"
	"github.com/geonhos/poc-voc-auto-processing/internal/solver"
	"github.com/geonhos/poc-voc-auto-processing/internal/voc"
	"github.com/geonhos/poc-voc-auto-processing/internal/worker"
)

func main() {
	var (
		port        = flag.String("port", getEnv("PORT", "8080"), "Server port")
		migrateOnly = flag.Bool("migrate", false, "Run migrations and exit")
		scenarioDir = flag.String("scenarios", getEnv("LOG_SCENARIO_DIR", "scenarios"), "Log scenario directory")
		registryLoc = flag.String("registry", getEnv("SYSTEM_REGISTRY_FILE", ""), "System registry YAML file")
	)
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	log.Println("Running database migrations...")
	if err := database.Migrate(dbURL); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations complete")

	if *migrateOnly {
		return
	}

	ctx := context.Background()
	db, err := database.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	gen, embed, err := buildLLMClients()
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	// Auth is optional: without a domain the admin actions run unguarded,
	// which is only acceptable for local development.
	var authVerifier *auth.Verifier
	if domain := os.Getenv("AUTH_DOMAIN"); domain != "" {
		authVerifier, err = auth.NewVerifier(auth.Config{
			Domain:   domain,
			Audience: os.Getenv("AUTH_AUDIENCE"),
		})
		if err != nil {
			log.Fatalf("Failed to create auth verifier: %v", err)
		}
	} else {
		log.Println("AUTH_DOMAIN not set, admin actions are unauthenticated")
	}

	logs, err := logstore.LoadDir(*scenarioDir)
	if err != nil {
		log.Fatalf("Failed to load log scenarios: %v", err)
	}

	systems := registry.Default()
	if *registryLoc != "" {
		systems, err = registry.LoadFile(*registryLoc)
		if err != nil {
			log.Fatalf("Failed to load system registry: %v", err)
		}
	}

	retriever := rag.NewRetriever(embed, db)
	solve := solver.New(gen, logs, retriever, systems)
	norm := normalizer.New(gen)
	notifier := notify.New(os.Getenv("SLACK_WEBHOOK_URL"))

	service := voc.New(db, norm, solve, retriever, notifier)

	// Background runner picks up tickets created through any entry point.
	workerCtx, stopWorker := context.WithCancel(ctx)
	runner := worker.New(db, service)
	workerDone := make(chan struct{})
	go func() {
		runner.Run(workerCtx)
		close(workerDone)
	}()

	server := api.NewServer(api.Config{
		Service:      service,
		AuthVerifier: authVerifier,
	})

	addr := fmt.Sprintf(":%s", *port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	stopWorker()
	<-workerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server stopped")
}

// buildLLMClients selects the reasoning and embedding backend from
// LLM_PROVIDER. "openai" accepts any OpenAI-compatible endpoint, including a
// local Ollama instance via OPENAI_BASE_URL. The embedding model must
// produce 768-dimensional vectors to match the corpus schema.
func buildLLMClients() (llm.Generator, llm.Embedder, error) {
	switch provider := getEnv("LLM_PROVIDER", "google"); provider {
	case "google":
		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, nil, fmt.Errorf("GOOGLE_API_KEY is required")
		}
		client, err := llm.NewGoogleClient(apiKey)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case "openai":
		var opts []llm.OpenAIOption
		if embedModel := os.Getenv("OPENAI_EMBED_MODEL"); embedModel != "" {
			opts = append(opts, llm.WithEmbedModel(embedModel))
		}
		client := llm.NewOpenAIClient(
			os.Getenv("OPENAI_API_KEY"),
			getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			os.Getenv("OPENAI_BASE_URL"),
			opts...,
		)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", provider)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
