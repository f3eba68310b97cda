// Command memoryengine-worker is the process that runs the memory
// engine's durable job dispatch (C10) and periodic maintenance (C11):
// config load, logger init, graph/relational store wiring, Kafka
// broker/topic checks, then a consumer loop plus a scheduled sweep
// loop, both shut down on SIGINT/SIGTERM. Grounded on
// cmd/orchestrator/main.go's startup shape (config -> logger -> Redis
// dedupe -> Kafka producer -> broker/topic checks -> signal-based
// graceful shutdown -> start consumer); the teacher's agent-tool
// registry, MCP client, and WARPP workflow loading are not adapted here
// since §1's Non-goals place HTTP hosting, MCP hosting, and tool
// execution outside this engine's scope — this binary only ever
// dispatches the four job kinds §4.10/§2 name.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/engineconfig"
	"github.com/memorybear/memoryengine/internal/engineworker"
	"github.com/memorybear/memoryengine/internal/forgetting"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/ingest"
	"github.com/memorybear/memoryengine/internal/insight"
	"github.com/memorybear/memoryengine/internal/obslog"
	"github.com/memorybear/memoryengine/internal/periodic"
	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/relstore"
	"github.com/memorybear/memoryengine/internal/taskqueue"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("memoryengine-worker exited")
	}
}

func run() error {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := engineconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obslog.Init(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	baseCtx := context.Background()

	llm, err := buildProvider(baseCtx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	store, relStore, err := buildStores(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	history := accesshistory.New(store, cfg.Memory.AccessHistoryCap, cfg.Memory.ActivationDecayD)

	var activity ingest.ActivityRecorder
	if relStore != nil {
		activity = relStore
	}
	pipeline := ingest.New(store, llm, cfg.Memory.LLMModelID, llm, cfg.Memory.EmbeddingModelID, history, activity)

	var lister periodic.EndUserLister
	var insightOut insight.Store
	if relStore != nil {
		lister = relStore
		insightOut = relStore
	}

	generator := &insight.Generator{Store: store, LLM: llm, ModelRef: cfg.Memory.LLMModelID, Out: insightOut}
	reflection := &periodic.ReflectionSweep{Store: store, Lister: lister, LLM: llm, ModelRef: cfg.Memory.LLMModelID, Insight: generator}
	forgettingCycle := forgetting.New(store, llm, cfg.Memory.LLMModelID, 0)
	forgettingJob := &periodic.ForgettingCycleJob{Cycle: forgettingCycle, Lister: lister, Threshold: cfg.Memory.ForgettingThreshold}
	cacheRegen := &periodic.CacheRegeneration{Lister: lister, Insight: generator}

	dispatcher := &engineworker.Dispatcher{
		Ingestor:            pipeline,
		Reflection:          reflection,
		Forgetting:          forgettingCycle,
		CacheRegen:          cacheRegen,
		ForgettingThreshold: cfg.Memory.ForgettingThreshold,
	}

	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.TaskQueue.Brokers,
		Balancer: &kafka.LeastBytes{},
	})
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka producer")
		}
	}()

	dedupe, err := taskqueue.NewRedisDedupeStore(redisAddr(cfg.Redis))
	if err != nil {
		return fmt.Errorf("init redis dedupe store: %w", err)
	}
	defer func() {
		if err := dedupe.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis dedupe client")
		}
	}()

	lock, err := periodic.NewRedisLock(redisAddr(cfg.Redis))
	if err != nil {
		return fmt.Errorf("init redis lock: %w", err)
	}
	defer func() {
		if err := lock.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis lock client")
		}
	}()
	scheduler := periodic.NewScheduler(lock, 10*time.Minute)

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctxAdmin, cancelAdmin := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancelAdmin()
	if err := taskqueue.CheckBrokers(ctxAdmin, cfg.TaskQueue.Brokers, 3*time.Second); err != nil {
		return fmt.Errorf("reach kafka brokers: %w", err)
	}

	jobsCfg := kafka.TopicConfig{Topic: cfg.TaskQueue.CommandsTopic, NumPartitions: 1, ReplicationFactor: 1}
	replyCfg := kafka.TopicConfig{Topic: cfg.TaskQueue.DefaultReply, NumPartitions: 1, ReplicationFactor: 1}
	dlqCfg := kafka.TopicConfig{Topic: cfg.TaskQueue.DefaultReply + ".dlq", NumPartitions: 1, ReplicationFactor: 1}
	if err := taskqueue.EnsureTopics(ctxAdmin, cfg.TaskQueue.Brokers, []kafka.TopicConfig{jobsCfg, replyCfg, dlqCfg}); err != nil {
		return fmt.Errorf("ensure kafka topics: %w", err)
	}

	go runPeriodicSweeps(ctx, scheduler, reflection, forgettingJob, cacheRegen, lister)

	log.Info().
		Strs("brokers", cfg.TaskQueue.Brokers).
		Str("commands_topic", cfg.TaskQueue.CommandsTopic).
		Int("workers", cfg.TaskQueue.WorkerCount).
		Msg("starting memoryengine-worker consumer")

	return taskqueue.StartConsumer(
		ctx,
		cfg.TaskQueue.Brokers,
		cfg.TaskQueue.GroupID,
		cfg.TaskQueue.CommandsTopic,
		nil,
		producer,
		dispatcher,
		dedupe,
		cfg.TaskQueue.WorkerCount,
		cfg.TaskQueue.DefaultReply,
		time.Duration(cfg.TaskQueue.DedupeTTLSecs)*time.Second,
		30*time.Second,
	)
}

// runPeriodicSweeps drives the reflection/forgetting/cache-regeneration
// full sweeps (as opposed to the single-user cache_rebuild/reflect job
// kinds C10 dispatches) on a fixed interval, each guarded by the
// scheduler's distributed lock so only one worker process in a fleet
// runs a given sweep at a time.
func runPeriodicSweeps(ctx context.Context, scheduler *periodic.Scheduler, reflection *periodic.ReflectionSweep, forgettingJob *periodic.ForgettingCycleJob, cacheRegen *periodic.CacheRegeneration, lister periodic.EndUserLister) {
	if lister == nil {
		log.Warn().Msg("no relational end-user lister configured; periodic sweeps disabled")
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := time.Now().Add(-24 * time.Hour)

			if ran, err := scheduler.RunLocked(ctx, "reflection_sweep", "default", func(ctx context.Context) error {
				failed, err := reflection.Run(ctx, since)
				if err != nil {
					return err
				}
				if len(failed) > 0 {
					log.Warn().Strs("end_user_ids", failed).Msg("reflection sweep had failures")
				}
				return nil
			}); err != nil {
				log.Error().Err(err).Msg("reflection sweep failed")
			} else if ran {
				log.Info().Msg("reflection sweep completed")
			}

			if ran, err := scheduler.RunLocked(ctx, "forgetting_cycle", "default", func(ctx context.Context) error {
				_, err := forgettingJob.Run(ctx, since)
				return err
			}); err != nil {
				log.Error().Err(err).Msg("forgetting cycle failed")
			} else if ran {
				log.Info().Msg("forgetting cycle completed")
			}

			if ran, err := scheduler.RunLocked(ctx, "cache_regeneration", "default", func(ctx context.Context) error {
				failed, err := cacheRegen.RunAll(ctx, since)
				if err != nil {
					return err
				}
				if len(failed) > 0 {
					log.Warn().Strs("end_user_ids", failed).Msg("cache regeneration had failures")
				}
				return nil
			}); err != nil {
				log.Error().Err(err).Msg("cache regeneration failed")
			} else if ran {
				log.Info().Msg("cache regeneration completed")
			}
		}
	}
}

func buildProvider(ctx context.Context, cfg engineconfig.ProviderConfig) (provider.Provider, error) {
	switch cfg.Name {
	case "anthropic":
		// Anthropic has no embeddings endpoint; pair it with an
		// OpenAI-compatible embedder pointed at the same APIKey/BaseURL
		// (operators running Anthropic for chat configure BaseURL to an
		// OpenAI-compatible embeddings endpoint).
		embedder := provider.NewOpenAICompat(provider.OpenAICompatConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, nil)
		return provider.NewAnthropic(provider.AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, nil, embedder), nil
	case "google":
		return provider.NewGoogle(ctx, provider.GoogleConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, nil)
	case "openai", "":
		return provider.NewOpenAICompat(provider.OpenAICompatConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, nil), nil
	default:
		return nil, fmt.Errorf("unknown provider.name %q", cfg.Name)
	}
}

func buildStores(ctx context.Context, cfg *engineconfig.Config) (graphstore.GraphStore, *relstore.Store, error) {
	var store graphstore.GraphStore
	if cfg.GraphStore.Backend == "postgres" {
		pool, err := relstore.OpenPool(ctx, cfg.GraphStore.ConnectionString)
		if err != nil {
			return nil, nil, fmt.Errorf("open graph store pool: %w", err)
		}
		store, err = graphstore.NewPostgres(ctx, pool, cfg.GraphStore.EmbeddingDims)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres graph store: %w", err)
		}
	} else {
		store = graphstore.NewMemory()
	}

	if cfg.Relational.ConnectionString == "" {
		log.Warn().Msg("no relational.connection_string configured; end-user listing, insight caching, and checkpointing are disabled")
		return store, nil, nil
	}
	pool, err := relstore.OpenPool(ctx, cfg.Relational.ConnectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("open relational store pool: %w", err)
	}
	rel := relstore.New(pool)
	if err := rel.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("init relational schema: %w", err)
	}
	return store, rel, nil
}

func redisAddr(cfg engineconfig.RedisConfig) string {
	if cfg.Host == "" {
		return "localhost:6379"
	}
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
