package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kh3rwa1/ArcadiaApp/internal/bridge"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/feed"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/telemetry"
	"github.com/Kh3rwa1/ArcadiaApp/internal/surface"
	"github.com/Kh3rwa1/ArcadiaApp/internal/surface/script"
	"github.com/Kh3rwa1/ArcadiaApp/internal/surface/stream"
)

const (
	shutdownTimeout = 5 * time.Second
	refreshLimit    = 4
)

// Host wires the supervisor, bridge, telemetry and sync engine of one
// feed session.
type Host struct {
	hc         *Context
	logger     *zap.Logger
	bridge     *bridge.Bridge
	surfaces   *surface.Registry
	supervisor *feed.Supervisor
	ingester   *telemetry.Ingester
}

// New builds a host on hc. Nothing runs until Run is called.
func New(hc *Context, presenter Presenter) *Host {
	if presenter == nil {
		presenter = LogPresenter{Logger: hc.Logger.Named("ui")}
	}
	cfg := hc.Config
	logger := hc.Logger.Named("host")

	surfaces := surface.NewRegistry()
	surfaces.Register(script.Constructor(script.Options{
		Fetcher:   script.HTTPFetcher{Client: hc.Client},
		Timeout:   cfg.Feed.ScriptTimeout,
		InboxSize: cfg.Feed.InboxSize,
		Logger:    hc.Logger,
	}), "http", "https", "file")
	surfaces.Register(stream.Constructor(stream.Options{
		Dialer:        websocket.DefaultDialer,
		WriteTimeout:  5 * time.Second,
		InboxSize:     cfg.Feed.InboxSize,
		MaxFrameBytes: 1 << 20,
		Logger:        hc.Logger,
	}), "ws", "wss")

	br := bridge.New(hc.Logger, hc.Metrics)
	haptics := bridge.LogHaptics{Logger: hc.Logger.Named("haptics")}

	sup := feed.New(feed.Options{
		Bridge:           br,
		Surfaces:         surfaces,
		Loop:             hc.Loop,
		Presenter:        presenter,
		Haptics:          haptics,
		Sink:             hc.Analytics,
		Users:            hc.Engine,
		MaxSilentRetries: cfg.Feed.MaxSilentRetries,
		LoadTimeout:      cfg.Feed.LoadTimeout,
		IDs:              hc.IDs,
		Logger:           hc.Logger,
		Metrics:          hc.Metrics,
	})
	ing := telemetry.New(telemetry.Options{
		Recorder:  hc.Engine,
		Sink:      hc.Analytics,
		Presenter: presenter,
		Haptics:   haptics,
		Lifetimes: sup,
		Playback:  sup,
		Loop:      hc.Loop,
		Logger:    hc.Logger,
	})
	br.Handle(bridge.Handlers{Lifecycle: sup, Telemetry: ing, Haptics: haptics})

	return &Host{
		hc:         hc,
		logger:     logger,
		bridge:     br,
		surfaces:   surfaces,
		supervisor: sup,
		ingester:   ing,
	}
}

// Do runs fn with the supervisor on the loop goroutine.
func (h *Host) Do(fn func(s *feed.Supervisor)) bool {
	return h.hc.Loop.Post(func() { fn(h.supervisor) })
}

// LoadFeed fetches the whole listing, keeps the items of category ("" or
// "all" for every item) and installs them on the supervisor. Locally saved
// game state is handed to each item as its savedState config.
func (h *Host) LoadFeed(ctx context.Context, category string) (int, error) {
	items, err := h.hc.Feed.All(ctx, 0)
	if err != nil && len(items) == 0 {
		return 0, fmt.Errorf("load feed: %w", err)
	}
	if err != nil {
		h.logger.Warn("feed listing incomplete", zap.Int("items", len(items)), zap.Error(err))
	}
	items = feed.FilterCategory(items, category)
	h.refresh(ctx, items)

	records, err := h.hc.Engine.All(ctx)
	if err != nil {
		h.logger.Warn("local progress unavailable", zap.Error(err))
	}
	items = withSavedState(items, records)

	h.Do(func(s *feed.Supervisor) { s.SetItems(items) })
	h.logger.Info("feed loaded", zap.Int("items", len(items)), zap.String("category", category))
	return len(items), nil
}

// refresh merges each item's remote record into the local store. Items
// whose record cannot be fetched keep their local state.
func (h *Host) refresh(ctx context.Context, items []feed.Item) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshLimit)
	for _, it := range items {
		g.Go(func() error {
			if _, err := h.hc.Engine.Refresh(gctx, it.ID); err != nil {
				h.logger.Debug("remote progress unavailable", zap.String("content", it.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func withSavedState(items []feed.Item, records []progress.Record) []feed.Item {
	states := make(map[string]map[string]any, len(records))
	for _, rec := range records {
		if rec.State != nil {
			states[rec.ContentID] = rec.State
		}
	}
	out := make([]feed.Item, len(items))
	for i, it := range items {
		if st, ok := states[it.ID]; ok {
			cfg := make(map[string]any, len(it.Config)+1)
			for k, v := range it.Config {
				cfg[k] = v
			}
			cfg["savedState"] = st
			it.Config = cfg
		}
		out[i] = it
	}
	return out
}

// Flush pushes pending progress and buffered analytics.
func (h *Host) Flush(ctx context.Context) error {
	err := h.hc.Engine.Flush(ctx)
	if errors.Is(err, progress.ErrFlushInFlight) {
		err = nil
	}
	return errors.Join(err, h.hc.Analytics.Flush(ctx))
}

// Run drives the event loop until ctx is cancelled, flushing progress every
// Sync.Interval. On the way out every card is torn down and a final flush is
// attempted.
func (h *Host) Run(ctx context.Context) error {
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		h.syncLoop(ctx)
	}()

	h.hc.Loop.Run(ctx)
	h.supervisor.Close()
	<-syncDone

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Flush(flushCtx); err != nil {
		h.logger.Warn("final flush incomplete, progress stays queued", zap.Error(err))
	}
	return nil
}

func (h *Host) syncLoop(ctx context.Context) {
	interval := h.hc.Config.Sync.Interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.hc.Engine.Flush(ctx); err != nil && !errors.Is(err, progress.ErrFlushInFlight) {
				h.logger.Debug("periodic flush failed", zap.Error(err))
			}
		}
	}
}
