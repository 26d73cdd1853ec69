package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/murmur/internal/archive"
	"github.com/blueberrycongee/murmur/internal/cognition"
	"github.com/blueberrycongee/murmur/internal/config"
	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/memory/embedcache"
	"github.com/blueberrycongee/murmur/internal/memory/inmem"
	"github.com/blueberrycongee/murmur/internal/observability"
	"github.com/blueberrycongee/murmur/internal/provider/hyperbolic"
	"github.com/blueberrycongee/murmur/internal/provider/openai"
	"github.com/blueberrycongee/murmur/internal/provider/openailike"
	"github.com/blueberrycongee/murmur/internal/resilience"
	"github.com/blueberrycongee/murmur/internal/social/x"
	"github.com/blueberrycongee/murmur/internal/store/postgres"
)

// buildOptions selects how the agent is assembled.
type buildOptions struct {
	// DryRun keeps everything in memory and never publishes.
	DryRun bool
	// Completer replaces the Hyperbolic client; used by tests.
	Completer interface {
		cognition.Completer
		memory.Rater
	}
}

// app holds the assembled agent and the resources that must be released on exit.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	shortTerm *memory.ShortTermMemory
	longTerm  *memory.LongTermStore
	orch      *cognition.Orchestrator
	scheduler *cognition.Scheduler
	archive   *archive.Archive
	postLog   *inmem.PostLog

	closers []func(context.Context) error
}

// buildApp wires the agent from cfg. Secret references in cfg must already be resolved.
func buildApp(ctx context.Context, cfg *config.Config, tracing *observability.TracerProvider, logger *slog.Logger, opts buildOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	completer, err := newCompleter(cfg, opts)
	if err != nil {
		return nil, err
	}

	embedder, err := a.newEmbedder(ctx, opts.DryRun)
	if err != nil {
		return nil, err
	}

	var social *x.Client
	if cfg.X.AccessToken != "" {
		social, err = x.New(x.Config{
			BaseURL:           cfg.X.BaseURL,
			AccessToken:       cfg.X.AccessToken,
			UserID:            cfg.X.UserID,
			Username:          cfg.Agent.Username,
			SearchQuery:       cfg.X.SearchQuery,
			Timeout:           cfg.X.Timeout,
			RequestsPerMinute: cfg.X.RequestsPerMinute,
		})
		if err != nil {
			return nil, fmt.Errorf("create x client: %w", err)
		}
	} else if !opts.DryRun {
		return nil, errors.New("x.access_token is required unless running with -dry-run")
	}

	var (
		repo         memory.Repository
		posts        cognition.PostSource
		recorder     cognition.PostRecorder
		sink         cognition.ActionSink
		interactions cognition.InteractionSource
		external     cognition.ExternalSource
	)
	if social != nil {
		external = social
	}

	if opts.DryRun {
		a.postLog = inmem.NewPostLog(cfg.Agent.Username)
		repo = inmem.NewRepository()
		posts, recorder, sink, interactions = a.postLog, a.postLog, a.postLog, a.postLog
	} else {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })

		postRepo := postgres.NewPostRepository(db)
		repo = postgres.NewMemoryRepository(db)
		posts, recorder, sink, interactions = postRepo, postRepo, social, social
	}

	scoringCfg := scoringConfigFromConfig(cfg)
	scorer := memory.NewSignificanceScorer(completer, scoringCfg, memory.WithScorerLogger(logger))

	a.longTerm = memory.NewLongTermStore(repo, embedder, scorer, longTermConfigFromConfig(cfg),
		memory.WithLongTermLogger(logger))
	a.shortTerm = memory.NewShortTermMemory(cfg.Memory.ShortTermCapacity)

	orchOpts := []cognition.Option{
		cognition.WithLogger(logger),
		cognition.WithRecorder(recorder),
		cognition.WithUsername(cfg.Agent.Username),
		cognition.WithCallTimeout(cfg.Cycle.CallTimeout),
	}
	if tracing != nil {
		orchOpts = append(orchOpts, cognition.WithTracer(tracing.Tracer()))
	}
	schedOpts := []cognition.SchedulerOption{
		cognition.WithSchedulerLogger(logger),
		cognition.WithInteractionSource(interactions),
	}

	if cfg.Archive.Enabled && !opts.DryRun {
		client, err := archive.NewS3Client(ctx, cfg.Archive.Config)
		if err != nil {
			return nil, err
		}
		arch, err := archive.New(cfg.Archive.Config, client, logger)
		if err != nil {
			return nil, err
		}
		arch.Start()
		a.archive = arch
		a.closers = append(a.closers, arch.Shutdown)
		orchOpts = append(orchOpts, cognition.WithArchiver(arch))
		schedOpts = append(schedOpts, cognition.WithConsolidationArchiver(arch))
	}

	a.orch, err = cognition.NewOrchestrator(cognition.Dependencies{
		Completer: completer,
		Embedder:  embedder,
		ShortTerm: a.shortTerm,
		Scorer:    scorer,
		LongTerm:  a.longTerm,
		Context:   cognition.Sources{Posts: posts, External: external},
		Sink:      sink,
	}, policyFromConfig(cfg), orchOpts...)
	if err != nil {
		return nil, err
	}

	schedCfg, err := schedulerConfigFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.scheduler = cognition.NewScheduler(a.orch, a.longTerm, schedCfg, schedOpts...)

	logger.Info("agent assembled",
		"username", cfg.Agent.Username,
		"dry_run", opts.DryRun,
		"x_enabled", social != nil,
		"archive_enabled", a.archive != nil,
		"redis_enabled", cfg.Redis.Enabled && !opts.DryRun,
	)
	return a, nil
}

func newCompleter(cfg *config.Config, opts buildOptions) (interface {
	cognition.Completer
	memory.Rater
}, error) {
	if opts.Completer != nil {
		return opts.Completer, nil
	}
	c, err := hyperbolic.New(hyperbolic.Config{
		Config: openailike.Config{
			APIKey:            cfg.Hyperbolic.APIKey,
			BaseURL:           cfg.Hyperbolic.BaseURL,
			Timeout:           cfg.Hyperbolic.Timeout,
			RequestsPerMinute: cfg.Hyperbolic.RequestsPerMinute,
		},
		Model:        cfg.Hyperbolic.Model,
		SystemPrompt: cfg.Hyperbolic.SystemPrompt,
		MaxTokens:    cfg.Hyperbolic.MaxTokens,
		Temperature:  cfg.Hyperbolic.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion provider: %w", err)
	}
	return c, nil
}

func (a *app) newEmbedder(ctx context.Context, dryRun bool) (memory.Embedder, error) {
	cfg := a.cfg
	if dryRun {
		return inmem.NewHashEmbedder(cfg.Memory.Dimension), nil
	}

	inner, err := openai.New(openai.Config{
		Config: openailike.Config{
			APIKey:            cfg.OpenAI.APIKey,
			BaseURL:           cfg.OpenAI.BaseURL,
			Timeout:           cfg.OpenAI.Timeout,
			RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
		},
		Model:     cfg.OpenAI.Model,
		Dimension: cfg.Memory.Dimension,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	var rdb goredis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := embedcache.NewRedisClient(ctx, cfg.Redis.RedisConfig)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		rdb = client
	}

	return embedcache.New(inner, rdb, embedcache.Config{
		Model:    inner.Model(),
		LocalTTL: cfg.Memory.CacheLocalTTL,
		RedisTTL: cfg.Memory.CacheRedisTTL,
	}, a.logger), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

// ready reports whether the agent's backing store is reachable.
func (a *app) ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

// applyConfig pushes reloadable settings into the running agent.
func (a *app) applyConfig(cfg *config.Config) {
	a.orch.SetPolicy(policyFromConfig(cfg))
	a.longTerm.SetStoreThreshold(cfg.Memory.StoreThreshold)
	a.logger.Info("cycle policy updated",
		"store_threshold", cfg.Memory.StoreThreshold,
		"post_threshold", cfg.Cycle.PostThreshold,
		"min_thought_length", cfg.Cycle.MinThoughtLength,
	)
}

func policyFromConfig(cfg *config.Config) cognition.Policy {
	p := cognition.DefaultPolicy()
	p.StoreThreshold = cfg.Memory.StoreThreshold
	p.PostThreshold = cfg.Cycle.PostThreshold
	p.MinThoughtLength = cfg.Cycle.MinThoughtLength
	p.RecentPostsLimit = cfg.Cycle.RecentPostsLimit
	p.ExternalContextLimit = cfg.Cycle.ExternalContextLimit
	p.MemoryLimit = cfg.Cycle.MemoryLimit
	p.Handle = cfg.Agent.Username
	return p
}

func scoringConfigFromConfig(cfg *config.Config) memory.ScoringConfig {
	sc := memory.DefaultScoringConfig()
	sc.Weights = cfg.Scoring.Weights
	sc.DefaultRelevance = cfg.Scoring.DefaultRelevance
	sc.DefaultPersistence = cfg.Scoring.DefaultPersistence
	if len(cfg.Scoring.EmotionalKeywords) > 0 {
		sc.EmotionalKeywords = cfg.Scoring.EmotionalKeywords
	}
	return sc
}

func longTermConfigFromConfig(cfg *config.Config) memory.LongTermConfig {
	lt := memory.DefaultLongTermConfig()
	lt.StoreThreshold = cfg.Memory.StoreThreshold
	lt.MergeDistance = cfg.Memory.MergeDistance
	lt.Dimension = cfg.Memory.Dimension
	lt.CallTimeout = cfg.Memory.CallTimeout
	lt.Retry = resilience.RetryConfig{
		Attempts:   cfg.Memory.RetryAttempts,
		Backoff:    cfg.Memory.RetryBackoff,
		MaxBackoff: resilience.DefaultRetryConfig().MaxBackoff,
	}
	return lt
}

func schedulerConfigFromConfig(cfg *config.Config) (cognition.SchedulerConfig, error) {
	loc, err := cfg.Location()
	if err != nil {
		return cognition.SchedulerConfig{}, err
	}
	sc := cognition.DefaultSchedulerConfig()
	sc.CycleInterval = cfg.Cycle.Interval
	sc.Jitter = cfg.Cycle.Jitter
	sc.ActiveHours = cognition.ActiveHours{
		Start:    cfg.Cycle.ActiveStartHour,
		End:      cfg.Cycle.ActiveEndHour,
		Location: loc,
	}
	sc.ConsolidationInterval = cfg.Memory.ConsolidationInterval
	sc.InteractionPollInterval = cfg.Cycle.InteractionPollInterval
	sc.MaxConcurrentInteractions = cfg.Cycle.MaxConcurrentInteractions
	if cfg.Cycle.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.Cycle.ShutdownTimeout
	}
	return sc, nil
}
