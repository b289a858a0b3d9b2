package host

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/config"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/httpclient"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/loop"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/tracing"
	"github.com/Kh3rwa1/ArcadiaApp/internal/remote"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
	"github.com/Kh3rwa1/ArcadiaApp/internal/storage/sqlite"
)

// Context carries the process-wide dependencies of a host. It is built
// once and passed down explicitly.
type Context struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Loop    *loop.Loop
	IDs     *id.Generator
	Tracer  *tracing.Tracer

	Store  progress.Store
	Client *httpclient.Client

	Progress  *remote.Progress
	Analytics *remote.Analytics
	Feed      *remote.Feed
	Engine    *progress.Engine
}

// NewContext opens the local store at cfg.Store.Path and builds the remote
// clients. A nil metrics gets a fresh collector set.
func NewContext(cfg *config.Config, logger *zap.Logger, metrics *monitoring.Metrics) (*Context, error) {
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return NewContextWithStore(cfg, store, logger, metrics), nil
}

// NewContextWithStore is NewContext over an already opened store.
func NewContextWithStore(cfg *config.Config, store progress.Store, logger *zap.Logger, metrics *monitoring.Metrics) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	ids := id.Default()
	tracer := tracing.New("host", logger)

	opts := httpclient.FromConfig(cfg.API, metrics, logger)
	opts.Tracer = tracer
	client := httpclient.New(opts)
	progressRemote := remote.NewProgress(client)

	return &Context{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Loop:      loop.New(logger),
		IDs:       ids,
		Tracer:    tracer,
		Store:     store,
		Client:    client,
		Progress:  progressRemote,
		Analytics: remote.NewAnalytics(client, cfg.Analytics.BatchSize, logger),
		Feed:      remote.NewFeed(client),
		Engine: progress.New(progress.Options{
			Store:        store,
			Remote:       progressRemote,
			Logger:       logger,
			Metrics:      metrics,
			FlushTimeout: cfg.Sync.FlushTimeout,
			IDs:          ids,
		}),
	}
}

// Close stops background sync work, flushes spans and closes the store.
func (c *Context) Close() error {
	c.Engine.Close()
	c.Tracer.Close()
	return c.Store.Close()
}
