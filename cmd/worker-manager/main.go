// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"service-intake/internal/accumulator"
	"service-intake/internal/audit"
	"service-intake/internal/catalog"
	commonaws "service-intake/internal/common/aws"
	"service-intake/internal/common/camunda"
	"service-intake/internal/common/config"
	"service-intake/internal/common/database"
	"service-intake/internal/common/genai"
	commonhttp "service-intake/internal/common/http"
	"service-intake/internal/common/logger"
	"service-intake/internal/common/observability"
	"service-intake/internal/correction"
	"service-intake/internal/normalizer"
	"service-intake/internal/notify"
	"service-intake/internal/pipeline"
	"service-intake/internal/recovery"
	"service-intake/internal/suggestion"
	"service-intake/internal/validator"

	gs "service-intake/internal/workers/intake/generate-suggestions"
	hf "service-intake/internal/workers/intake/handle-failure"
	pm "service-intake/internal/workers/intake/process-message"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: cfg.App.Name,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.Connect(ctx, camunda.FromConfig(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Elasticsearch ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Audit trail ---
	sink := audit.NewPostgresSink(pg.DB)
	if err := sink.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("audit schema failed", zap.Error(err))
	}

	// --- Catalog ---
	searcher := catalog.NewElasticSearcher(esClient.Client, esClient.Index)
	cat := catalog.NewCachedCatalog(
		catalog.NewPostgresCatalog(pg.DB, searcher, log),
		rdb.GetClient(),
		cfg.Pipeline.CatalogCacheTTLDuration(),
		log,
	)

	// --- Escalation notifications ---
	var notifier notify.EscalationNotifier = notify.Nop{}
	if cfg.Notifications.Escalation.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		notifier = notify.NewSNSNotifier(snsClient, cfg.Notifications.Escalation.TopicARN, log)
	}

	// --- Pipeline ---
	overrides := map[string]string{}
	if path := cfg.Pipeline.SlangDictionaryPath; path != "" {
		overrides, err = normalizer.LoadDictionary(path)
		if err != nil {
			zapLog.Fatal("slang dictionary failed", zap.String("path", path), zap.Error(err))
		}
	}

	history := suggestion.NewRedisHistory(rdb.GetClient(), cfg.Pipeline.HistorySize, cfg.Pipeline.StateTTLDuration())
	suggestions := suggestion.NewEngine(cat, history, suggestion.Config{MaxSuggestions: cfg.Pipeline.MaxSuggestions}, log)

	val := validator.New(
		cat,
		correction.NewEngine(cat, cfg.Pipeline.FuzzyThreshold, log),
		sink,
		validator.Options{
			SemanticThreshold:    cfg.Pipeline.SemanticThreshold,
			AutoCorrectThreshold: cfg.Pipeline.AutoCorrectThreshold,
		},
		log,
	)

	deps := recovery.Deps{
		Sink:      sink,
		Notifier:  notifier,
		Validator: val,
		Suggester: suggestions,
		DBProbe:   recovery.PingProber(pg),
	}
	if cfg.Pipeline.ProbeURL != "" {
		deps.NetworkProbe = recovery.NewHTTPProber(commonhttp.NewClient(cfg.Pipeline.ProbeTimeoutDuration()), cfg.Pipeline.ProbeURL)
	}
	recov := recovery.NewEngine(deps, recovery.Config{
		ProbeTimeout:   cfg.Pipeline.ProbeTimeoutDuration(),
		DefaultTimeout: config.GetDuration(cfg.APIs.GenAI.Timeout),
	}, log)

	ai := cfg.APIs.GenAI
	extractor := genai.NewOpenAIExtractor(genai.Config{
		BaseURL:           ai.BaseURL,
		APIKey:            ai.APIKey,
		Model:             ai.Model,
		Timeout:           config.GetDuration(ai.Timeout),
		MaxTokens:         ai.MaxTokens,
		Temperature:       float32(ai.Temperature),
		RequestsPerSecond: ai.RequestsPerSecond,
		Burst:             ai.Burst,
	}, log)

	acc := accumulator.New(
		accumulator.NewRedisStore(rdb.GetClient(), cfg.Pipeline.StateTTLDuration()),
		log,
		accumulator.WithLocker(accumulator.NewRedisLocker(rdb.GetClient(), cfg.Pipeline.StateLockTTLDuration())),
	)

	pipe := pipeline.New(pipeline.Deps{
		Catalog:      cat,
		Normalizer:   normalizer.New(overrides),
		Extractor:    extractor,
		Accumulator:  acc,
		Conversation: accumulator.NewRedisConversation(rdb.GetClient(), cfg.Pipeline.HistoryLength, cfg.Pipeline.StateTTLDuration()),
		Validator:    val,
		Recovery:     recov,
		Suggestions:  suggestions,
		History:      history,
		Metrics:      obs,
	}, pipeline.Config{
		ExtractTimeout: config.GetDuration(ai.Timeout),
		MaxSuggestions: cfg.Pipeline.MaxSuggestions,
	}, log)

	// --- Workers ---
	client := zeebe.GetClient()
	var workers []worker.JobWorker
	start := func(name, taskType string, h camunda.HandlerFunc) {
		if jw := camunda.StartWorker(client, taskType, config.GetWorkerConfig(cfg, name), h, zapLog); jw != nil {
			workers = append(workers, jw)
		}
	}

	pmCfg := pm.LoadConfig()
	if wc, ok := cfg.Workers["process-message"]; ok && wc.Timeout > 0 {
		pmCfg.Timeout = config.GetDuration(wc.Timeout)
	}
	start("process-message", pm.TaskType, pm.NewHandler(pmCfg, pipe, log).Handle)

	hfCfg := hf.LoadConfig()
	if wc, ok := cfg.Workers["handle-failure"]; ok && wc.Timeout > 0 {
		hfCfg.Timeout = config.GetDuration(wc.Timeout)
	}
	start("handle-failure", hf.TaskType, hf.NewHandler(hfCfg, pipe, log).Handle)

	gsCfg := gs.LoadConfig()
	if wc, ok := cfg.Workers["generate-suggestions"]; ok && wc.Timeout > 0 {
		gsCfg.Timeout = config.GetDuration(wc.Timeout)
	}
	start("generate-suggestions", gs.TaskType, gs.NewHandler(gsCfg, suggestions, log).Handle)

	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]error{
			"postgres":      pg.Ping(checkCtx),
			"elasticsearch": esClient.Ping(checkCtx),
			"redis":         rdb.Ping(checkCtx),
			"zeebe":         zeebe.HealthCheck(checkCtx),
		}
		failed := map[string]string{}
		for name, err := range checks {
			if err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, "not_ready", failed)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.App.HTTPAddress, Handler: r}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range workers {
		jw.Close()
		jw.AwaitClose()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, details map[string]string) {
	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if len(details) > 0 {
		body["checks"] = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
