// EchoLens Insight Engine — market-intelligence core service.
//
// This is the main entry point for the insight engine server. It wires:
//   - Campaign workflow orchestrator (scout → clean → analyze)
//   - Hybrid RAG chat pipeline (guardrails, intent, retrieval, synthesis)
//   - Circuit-breaker resilience layer
//   - Monitoring sink and error statistics
//   - In-memory store with JSON snapshots (zero config), pgvector optional

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/internal/api"
	"github.com/echolens/echolens/insight-engine/internal/config"
	"github.com/echolens/echolens/insight-engine/internal/embeddings"
	"github.com/echolens/echolens/insight-engine/internal/guardrails"
	"github.com/echolens/echolens/insight-engine/internal/intent"
	"github.com/echolens/echolens/insight-engine/internal/llm"
	"github.com/echolens/echolens/insight-engine/internal/monitoring"
	"github.com/echolens/echolens/insight-engine/internal/rag"
	"github.com/echolens/echolens/insight-engine/internal/resilience"
	"github.com/echolens/echolens/insight-engine/internal/retrieval"
	"github.com/echolens/echolens/insight-engine/internal/scout"
	"github.com/echolens/echolens/insight-engine/internal/store"
	"github.com/echolens/echolens/insight-engine/internal/telemetry"
	"github.com/echolens/echolens/insight-engine/internal/vectorstore"
	"github.com/echolens/echolens/insight-engine/internal/workflow"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("🔎 EchoLens insight engine starting...")

	cfg := config.Load()
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer shutdownTelemetry(ctx)

	storage := store.NewMemoryStore()
	defer storage.Close()

	// Embeddings
	embedOpts := []embeddings.OpenAIOption{
		embeddings.WithBatchSize(cfg.Retrieval.EmbedBatchSize),
		embeddings.WithMaxInputRunes(cfg.Retrieval.MaxInputRunes),
	}
	if cfg.Provider.Endpoint != "" {
		embedOpts = append(embedOpts, embeddings.WithEndpoint(cfg.Provider.Endpoint))
	}
	embedRegistry := embeddings.NewRegistry()
	embedRegistry.Register(embeddings.NewOpenAIDriver(cfg.Provider.OpenAIKey, cfg.Provider.EmbedModel, embedOpts...))
	embedDriver, err := embedRegistry.Get("openai")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve embedding driver")
	}
	batcher := embeddings.NewBatcher(embedDriver)

	// Document store: pgvector when configured, embedded otherwise.
	docRegistry := vectorstore.NewRegistry()
	docKind := "embedded"
	docRegistry.Register(vectorstore.NewEmbeddedStore())
	if cfg.Pgvector.URL != "" {
		pg, err := vectorstore.NewPgvectorStore(ctx, cfg.Pgvector.URL, cfg.Pgvector.Dimensions)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect pgvector store")
		}
		docRegistry.Register(pg)
		docKind = pg.Kind()
	}
	docs, err := docRegistry.Get(docKind)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve document store")
	}
	log.Info().Str("store", docKind).Msg("document store ready")

	// Completion providers behind the fallback router
	providerOpts := []llm.ProviderOption{llm.WithHTTPTimeout(cfg.Provider.CallTimeout)}
	if cfg.Provider.Endpoint != "" {
		providerOpts = append(providerOpts, llm.WithProviderEndpoint(cfg.Provider.Endpoint))
	}
	completions := llm.NewRouter(llm.NewOpenAIProvider(cfg.Provider.OpenAIKey, cfg.Provider.OpenAIModel, providerOpts...))

	// Resilience layer, mirroring error stats into the store
	manager := resilience.NewManager(cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeout, storage)

	// Chat pipeline
	validator := guardrails.NewValidator(
		guardrails.WithLengthBounds(cfg.Guardrail.MinQueryLen, cfg.Guardrail.MaxQueryLen),
		guardrails.WithRateLimit(cfg.Guardrail.RatePerMinute),
	)
	classifier := intent.NewClassifier(completions)
	engine := retrieval.NewEngine(embedDriver, docs, docs, retrieval.WithTopK(cfg.Retrieval.TopK))
	sink := monitoring.NewSink()
	synthesizer := rag.NewSynthesizer(validator, classifier, engine, completions, sink, manager.Breakers,
		rag.WithTopK(cfg.Retrieval.TopK))

	// Workflow orchestrator
	orchestrator, err := workflow.New(
		storage,
		manager,
		scout.NewFeedScouter(),
		workflow.NewLLMAnalyzer(completions),
		workflow.NewEmbedIndexer(batcher, docs),
		synthesizer,
		sink,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build orchestrator")
	}

	handler := api.NewRouter(cfg, &api.Handlers{
		Store:        storage,
		Orchestrator: orchestrator,
		Monitor:      sink,
		Costs:        completions,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("embed_model", cfg.Provider.EmbedModel).
		Str("chat_model", cfg.Provider.OpenAIModel).
		Msg("🧠 EchoLens is listening")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
