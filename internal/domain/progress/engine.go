package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

// Options configure an Engine.
type Options struct {
	Store        Store
	Remote       Remote
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
	FlushTimeout time.Duration
	IDs          *id.Generator
	Now          func() time.Time
}

// Engine keeps progress locally and reconciles it with the remote
// authority. Safe for concurrent use.
type Engine struct {
	store   Store
	remote  Remote
	logger  *zap.Logger
	metrics *monitoring.Metrics
	ids     *id.Generator
	now     func() time.Time
	timeout time.Duration

	// mu serializes read-modify-write cycles on the store.
	mu       sync.Mutex
	flushing atomic.Bool
	fetches  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. Background work started by the engine stops when
// Close is called.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IDs == nil {
		opts.IDs = id.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:   opts.Store,
		remote:  opts.Remote,
		logger:  opts.Logger.Named("progress"),
		metrics: opts.Metrics,
		ids:     opts.IDs,
		now:     opts.Now,
		timeout: opts.FlushTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RecordSession folds one play session into the local record and queues it
// for the remote. It fails only when the local store does.
func (e *Engine) RecordSession(ctx context.Context, contentID string, level int, score int64, state map[string]any, durationMs int64) (Record, error) {
	if contentID == "" {
		return Record{}, errors.New("record session: empty content id")
	}
	session := Session{
		ContentID:  contentID,
		Level:      level,
		Score:      score,
		State:      state,
		DurationMs: durationMs,
	}.normalize()

	e.mu.Lock()
	current, ok, err := e.store.Get(ctx, contentID)
	if err != nil {
		e.mu.Unlock()
		return Record{}, fmt.Errorf("record session: %w", err)
	}
	if !ok {
		current = NewRecord(contentID)
	}
	now := e.now()
	updated := current.Apply(session, now)
	if _, err := e.store.Apply(ctx, updated, newMutation(e.ids, session, now)); err != nil {
		e.mu.Unlock()
		return Record{}, fmt.Errorf("record session: %w", err)
	}
	e.mu.Unlock()

	e.reportDepth(ctx)
	e.background("flush", e.flushQuietly)
	return updated.Clone(), nil
}

// Load returns the local record and refreshes it from the remote in the
// background. Returned records are copies.
func (e *Engine) Load(ctx context.Context, contentID string) (Record, bool) {
	rec, ok, err := e.store.Get(ctx, contentID)
	if err != nil {
		e.logger.Warn("local load failed", zap.String("content", contentID), zap.Error(err))
		ok = false
		rec = Record{}
	}
	e.background("refresh", func(ctx context.Context) error {
		_, err := e.Refresh(ctx, contentID)
		return err
	})
	return rec, ok
}

// Refresh fetches the remote record and merges it into the local one.
// Concurrent refreshes of the same content share one fetch.
func (e *Engine) Refresh(ctx context.Context, contentID string) (Record, error) {
	v, err, _ := e.fetches.Do(contentID, func() (any, error) {
		userID, err := e.store.UserID(ctx)
		if err != nil {
			return nil, err
		}
		remote, err := e.remote.Fetch(ctx, userID, contentID)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		local, ok, err := e.store.Get(ctx, contentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			local = NewRecord(contentID)
		}
		merged := Merge(local, ok, remote)
		if err := e.store.Put(ctx, merged); err != nil {
			return nil, err
		}
		return merged, nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("refresh %s: %w", contentID, err)
	}
	return v.(Record).Clone(), nil
}

// Flush sends the queued sessions as one grouped batch. The queue is
// drained only when every item is accepted, and only of the entries that
// were sent. While a flush runs, other callers get ErrFlushInFlight and
// nothing else happens; their entries go out with the next flush.
func (e *Engine) Flush(ctx context.Context) error {
	if !e.flushing.CompareAndSwap(false, true) {
		return ErrFlushInFlight
	}
	defer e.flushing.Store(false)

	queue, err := e.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if len(queue) == 0 {
		return nil
	}
	userID, err := e.store.UserID(ctx)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	items := Group(queue)
	results, err := e.remote.SaveBatch(ctx, userID, items)
	if err != nil {
		e.recordFlush("error")
		return fmt.Errorf("flush: %w", err)
	}

	accepted := make(map[string]bool, len(results))
	for _, r := range results {
		if !r.OK {
			continue
		}
		accepted[r.ContentID] = true
		if err := e.foldWatermark(ctx, r); err != nil {
			e.logger.Warn("fold watermark failed", zap.String("content", r.ContentID), zap.Error(err))
		}
	}
	for _, it := range items {
		if !accepted[it.ContentID] {
			e.recordFlush("partial")
			return fmt.Errorf("flush: %s: %w", it.ContentID, ErrPartialBatch)
		}
	}

	seqs := make([]int64, len(queue))
	for i, m := range queue {
		seqs[i] = m.Seq
	}
	if err := e.store.Remove(ctx, seqs); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	e.recordFlush("ok")
	e.reportDepth(ctx)
	e.logger.Info("synced progress", zap.Int("contents", len(items)), zap.Int("sessions", len(queue)))
	return nil
}

func (e *Engine) flushQuietly(ctx context.Context) error {
	err := e.Flush(ctx)
	if errors.Is(err, ErrFlushInFlight) {
		return nil
	}
	return err
}

func (e *Engine) foldWatermark(ctx context.Context, r BatchResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok, err := e.store.Get(ctx, r.ContentID)
	if err != nil || !ok || rec.HighScore >= r.HighScore {
		return err
	}
	rec.HighScore = r.HighScore
	return e.store.Put(ctx, rec)
}

// Pending returns the queued mutations in order.
func (e *Engine) Pending(ctx context.Context) ([]Mutation, error) {
	return e.store.Pending(ctx)
}

// UserID returns the persisted anonymous user id.
func (e *Engine) UserID(ctx context.Context) (string, error) {
	return e.store.UserID(ctx)
}

// All returns every local record ordered by content id.
func (e *Engine) All(ctx context.Context) ([]Record, error) {
	return e.store.All(ctx)
}

// Wait blocks until background work started so far has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels background work and waits for it.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) background(op string, fn func(ctx context.Context) error) {
	if e.ctx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Warn("background "+op+" failed, will retry", zap.Error(err))
		}
	}()
}

func (e *Engine) recordFlush(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordFlush(outcome)
	}
}

func (e *Engine) reportDepth(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if queue, err := e.store.Pending(ctx); err == nil {
		e.metrics.SetQueueDepth(len(queue))
	}
}
