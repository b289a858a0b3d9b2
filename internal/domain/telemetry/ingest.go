package telemetry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/bridge"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/loop"
	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

// Recorder stores play sessions.
type Recorder interface {
	RecordSession(ctx context.Context, contentID string, level int, score int64, state map[string]any, durationMs int64) (progress.Record, error)
	UserID(ctx context.Context) (string, error)
}

// Presenter shows gameplay feedback. Calls happen on the loop goroutine.
type Presenter interface {
	ShowScore(card bridge.Card, score int64)
	ShowResults(card bridge.Card, complete protocol.FlowComplete, rec progress.Record)
	ShowPercentile(card bridge.Card, percentile int)
}

// Lifetimes resolves the context bounding a card instantiation. The
// context is cancelled when the card leaves the window.
type Lifetimes interface {
	CardContext(cardID id.CardID) (context.Context, bool)
}

// Playback owns the playing state of the active card.
type Playback interface {
	SetPlaying(cardID id.CardID, playing bool)
}

// Options configure an Ingester.
type Options struct {
	Recorder  Recorder
	Sink      Sink
	Presenter Presenter
	Haptics   bridge.Haptics
	Lifetimes Lifetimes
	Playback  Playback
	Loop      *loop.Loop
	Logger    *zap.Logger
}

// Ingester turns gameplay messages into progress writes and analytics.
// Writes run off the loop goroutine in arrival order. A write accepted
// while its card was alive completes even if the card is torn down.
type Ingester struct {
	recorder  Recorder
	sink      Sink
	presenter Presenter
	haptics   bridge.Haptics
	lifetimes Lifetimes
	playback  Playback
	loop      *loop.Loop
	logger    *zap.Logger

	// tail is closed when the last queued write finishes. Loop goroutine only.
	tail chan struct{}
}

var _ bridge.Telemetry = (*Ingester)(nil)

// New creates an ingester. Recorder, Loop and Lifetimes are required.
func New(opts Options) *Ingester {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Ingester{
		recorder:  opts.Recorder,
		sink:      opts.Sink,
		presenter: opts.Presenter,
		haptics:   opts.Haptics,
		lifetimes: opts.Lifetimes,
		playback:  opts.Playback,
		loop:      opts.Loop,
		logger:    opts.Logger.Named("telemetry"),
	}
}

// StateUpdated records a non-final update for the persisted keys.
func (i *Ingester) StateUpdated(card bridge.Card, u protocol.StateUpdate) {
	i.feedback(protocol.HapticSelection)
	ctx, ok := i.lifetimes.CardContext(card.ID)
	if !ok {
		return
	}
	i.setPlaying(card, true)
	if i.presenter != nil && (u.Key == "score" || u.Score > 0) {
		i.presenter.ShowScore(card, u.Score)
	}
	if !u.Persistent() {
		return
	}

	i.record(ctx, card, progress.Session{ContentID: card.ContentID, Level: u.Level, Score: u.Score, State: u.State}, nil)
}

// FlowCompleted records the final session, shows results and submits
// analytics. The percentile is shown only while the card is alive.
func (i *Ingester) FlowCompleted(card bridge.Card, c protocol.FlowComplete) {
	i.feedback(protocol.HapticNotificationSuccess)

	ctx, ok := i.lifetimes.CardContext(card.ID)
	if !ok {
		return
	}
	i.setPlaying(card, false)
	session := progress.Session{ContentID: card.ContentID, Level: c.Level, Score: c.Score, State: c.State, DurationMs: c.DurationMs}
	i.record(ctx, card, session, func(rec progress.Record, _ error) {
		if i.presenter != nil {
			i.presenter.ShowResults(card, c, rec)
		}
		i.submit(ctx, card, c)
	})
}

// record queues one session write behind the previous one. done runs on
// the loop goroutine while the card is alive.
func (i *Ingester) record(ctx context.Context, card bridge.Card, s progress.Session, done func(progress.Record, error)) {
	prev := i.tail
	next := make(chan struct{})
	i.tail = next

	loop.Go(i.loop, ctx, func(ctx context.Context) (progress.Record, error) {
		defer close(next)
		if prev != nil {
			<-prev
		}
		rec, err := i.recorder.RecordSession(context.WithoutCancel(ctx), s.ContentID, s.Level, s.Score, s.State, s.DurationMs)
		if err != nil {
			i.logger.Warn("record session failed", zap.String("card_id", card.ID.String()), zap.Error(err))
		}
		return rec, err
	}, done)
}

func (i *Ingester) submit(ctx context.Context, card bridge.Card, c protocol.FlowComplete) {
	if i.sink == nil {
		return
	}
	metadata := make(map[string]any, len(c.Fields)+1)
	for k, v := range c.Fields {
		metadata[k] = v
	}
	metadata["score"] = c.Score

	loop.Go(i.loop, ctx, func(ctx context.Context) (int, error) {
		userID, err := i.recorder.UserID(ctx)
		if err != nil {
			return 0, fmt.Errorf("user id: %w", err)
		}
		i.sink.Track(ctx, Event{ContentID: card.ContentID, UserID: userID, Type: EventFlowComplete, DurationMs: c.DurationMs, Metadata: metadata})
		return i.sink.ScoreUpdate(ctx, Event{ContentID: card.ContentID, UserID: userID, Type: EventScoreUpdate, Metadata: map[string]any{"score": c.Score}})
	}, func(percentile int, err error) {
		if err != nil {
			i.logger.Debug("percentile unavailable", zap.String("card_id", card.ID.String()), zap.Error(err))
			return
		}
		if i.presenter != nil {
			i.presenter.ShowPercentile(card, percentile)
		}
	})
}

func (i *Ingester) setPlaying(card bridge.Card, playing bool) {
	if i.playback != nil {
		i.playback.SetPlaying(card.ID, playing)
	}
}

func (i *Ingester) feedback(kind protocol.HapticKind) {
	if i.haptics != nil {
		i.haptics.Feedback(kind)
	}
}
