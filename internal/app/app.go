// Package app wires configuration into the harvest pipeline shared by the
// HTTP service and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/timmy/sentiscope/internal/config"
	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/filter"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/metrics"
	"github.com/timmy/sentiscope/internal/repository"
	"github.com/timmy/sentiscope/internal/service"
	"github.com/timmy/sentiscope/internal/source"
	"github.com/timmy/sentiscope/internal/source/anonymous"
	"github.com/timmy/sentiscope/internal/source/archive"
	"github.com/timmy/sentiscope/internal/source/feed"
	"github.com/timmy/sentiscope/internal/source/redditapi"
	"github.com/timmy/sentiscope/internal/storage"
)

// App holds the wired pipeline and the resources that need closing.
type App struct {
	Chain   *service.AdapterChain
	Harvest *service.HarvestService
	closers []func(context.Context) error
}

// Options tweak what New wires.
type Options struct {
	// WithSink persists results into the configured sink.
	WithSink bool
	// Registerer receives the metric collectors; nil skips registration.
	Registerer prometheus.Registerer
}

// Adapters builds the enabled source adapters in priority order:
// authenticated API, anonymous listing, feed, archive.
// Parameters:
//   - cfg: application configuration.
// Returns:
//   - []source.Adapter: enabled adapters, possibly empty.
func Adapters(cfg *config.Config) []source.Adapter {
	h := cfg.Harvest
	var adapters []source.Adapter

	if cfg.Reddit.Enabled && cfg.Reddit.HasCredentials() {
		adapters = append(adapters, redditapi.NewAdapter(redditapi.Config{
			ClientID:        cfg.Reddit.ClientID,
			ClientSecret:    cfg.Reddit.ClientSecret,
			Username:        cfg.Reddit.Username,
			Password:        cfg.Reddit.Password,
			UserAgent:       cfg.Reddit.UserAgent,
			TokenTTL:        cfg.Reddit.TokenTTL,
			CommentPosts:    h.CommentPosts,
			CommentsPerPost: h.CommentsPerPost,
			MaxDepth:        h.MaxCommentDepth,
		}))
	} else if cfg.Reddit.Enabled {
		logger.Warn("Authenticated adapter disabled: REDDIT_CLIENT_ID/REDDIT_CLIENT_SECRET not set")
	}
	if cfg.Anonymous.Enabled {
		adapters = append(adapters, anonymous.NewAdapter(anonymous.Config{
			BaseURL:         cfg.Anonymous.BaseURL,
			UserAgent:       cfg.Anonymous.UserAgent,
			RequestPeriod:   cfg.Anonymous.RequestPeriod,
			CommentPosts:    h.CommentPosts,
			CommentsPerPost: h.CommentsPerPost,
			MaxDepth:        h.MaxCommentDepth,
		}))
	}
	if cfg.Feed.Enabled {
		adapters = append(adapters, feed.NewAdapter(feed.Config{
			BaseURL:   cfg.Feed.BaseURL,
			UserAgent: cfg.Feed.UserAgent,
		}))
	}
	if cfg.Archive.Enabled {
		adapters = append(adapters, archive.NewAdapter(archive.Config{
			BaseURL:         cfg.Archive.BaseURL,
			RequestPeriod:   cfg.Archive.RequestPeriod,
			CommentPosts:    h.CommentPosts,
			CommentsPerPost: h.CommentsPerPost,
		}))
	}
	return adapters
}

// New wires adapters, orchestrator, sinks and classifier from cfg.
// Parameters:
//   - ctx: bounds sink and storage initialisation.
//   - cfg: application configuration.
//   - opts: optional parts to wire.
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if a configured sink or storage cannot be reached.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Registerer != nil {
		metrics.MustRegister(opts.Registerer)
	}

	a := &App{}
	a.Chain = service.NewAdapterChain(Adapters(cfg), service.ChainConfig{
		AdapterTimeout: cfg.Harvest.AdapterTimeout,
		RetryDelay:     cfg.Harvest.RetryDelay,
	})
	orchestrator := service.NewOrchestrator(a.Chain, filter.New(filter.Config{
		MinLength:   cfg.Filter.MinLength,
		BotAccounts: cfg.Filter.BotAccounts,
	}), service.OrchestratorConfig{
		BatchSize:       cfg.Harvest.BatchSize,
		InterBatchDelay: cfg.Harvest.InterBatchDelay,
		MaxCommentDepth: cfg.Harvest.MaxCommentDepth,
	})

	var store service.CorpusStore
	var snapshots *service.SnapshotExporter
	if opts.WithSink {
		var err error
		if store, err = a.openStore(ctx, cfg); err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		if cfg.Storage.Enabled {
			objects, err := storage.NewStorage(cfg.Storage)
			if err != nil {
				_ = a.Close(context.Background())
				return nil, fmt.Errorf("failed to initialize storage: %w", err)
			}
			if err := objects.EnsureBucket(ctx); err != nil {
				_ = a.Close(context.Background())
				return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
			snapshots = service.NewSnapshotExporter(objects, cfg.Storage.Prefix)
		}
	}

	a.Harvest = service.NewHarvestService(service.HarvestServiceConfig{
		Orchestrator: orchestrator,
		Store:        store,
		Snapshots:    snapshots,
		Classifier: service.NewClassifierClient(service.ClassifierConfig{
			BaseURL: cfg.Classifier.BaseURL,
			APIKey:  cfg.Classifier.APIKey,
			Timeout: cfg.Classifier.Timeout,
		}),
		Defaults: service.JobDefaults{
			Fast:      cfg.Communities.Defaults(true),
			Full:      cfg.Communities.Defaults(false),
			PostLimit: cfg.Harvest.DefaultPostLimit,
			TimeRange: domain.TimeRange(cfg.Harvest.DefaultTimeRange),
			SortMode:  domain.SortMode(cfg.Harvest.DefaultSortMode),
		},
	})

	logger.With(logger.Fields{
		"adapters": a.Chain.Adapters(),
		"sink":     sinkName(cfg, opts),
		"snapshot": snapshots != nil,
	}).Info(ctx, "Harvest pipeline ready")
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (service.CorpusStore, error) {
	switch cfg.Sink.Driver {
	case "sql":
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		return repository.NewCorpusRepository(db), nil
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Sink.Timeout)
		defer cancel()
		sink, err := repository.NewMongoSink(connectCtx, cfg.Sink.MongoURI, cfg.Sink.MongoDatabase)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sink.Close)
		return sink, nil
	default:
		return nil, nil
	}
}

func sinkName(cfg *config.Config, opts Options) string {
	if !opts.WithSink {
		return "none"
	}
	return cfg.Sink.Driver
}

// Close releases sink connections.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
