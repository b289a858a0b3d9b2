package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/bridge"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/telemetry"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/loop"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
	"github.com/Kh3rwa1/ArcadiaApp/internal/surface"
)

// ErrInvalidIndex is returned for indices outside the feed.
var ErrInvalidIndex = errors.New("feed: invalid index")

// Presenter shows window state. Calls happen on the loop goroutine and
// must not block.
type Presenter interface {
	SetLoading(card bridge.Card, loading bool)
	ShowError(card bridge.Card, err error)
	SetPlaying(card bridge.Card, playing bool)
	Settled(index int, item Item)
}

// Users resolves the analytics user id.
type Users interface {
	UserID(ctx context.Context) (string, error)
}

// Options configure a Supervisor.
type Options struct {
	Bridge    *bridge.Bridge
	Surfaces  surface.Factory
	Loop      *loop.Loop
	Presenter Presenter
	Haptics   bridge.Haptics
	Sink      telemetry.Sink
	Users     Users

	MaxSilentRetries int
	LoadTimeout      time.Duration

	IDs     *id.Generator
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

type liveCard struct {
	info    bridge.Card
	surface surface.Surface
	ctx     context.Context
	cancel  context.CancelFunc
}

type slot struct {
	role         Role
	instantiated bool
	degraded     bool
	attempts     int
	// failed is set once retries are exhausted; cleared on re-entry.
	failed bool
}

// Supervisor keeps at most three cards instantiated: the active index and
// its neighbours. All methods must be called on the loop goroutine.
type Supervisor struct {
	bridge    *bridge.Bridge
	surfaces  surface.Factory
	loop      *loop.Loop
	presenter Presenter
	haptics   bridge.Haptics
	sink      telemetry.Sink
	users     Users
	ids       *id.Generator
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	maxRetries  int
	loadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	items      []Item
	slots      []slot
	live       map[int]*liveCard
	byID       map[id.CardID]*liveCard
	active     int
	foreground bool
	playing    bool
}

var (
	_ bridge.Lifecycle    = (*Supervisor)(nil)
	_ telemetry.Lifetimes = (*Supervisor)(nil)
	_ telemetry.Playback  = (*Supervisor)(nil)
)

// New creates a supervisor with an empty feed.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IDs == nil {
		opts.IDs = id.Default()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 15 * time.Second
	}
	if opts.MaxSilentRetries < 0 {
		opts.MaxSilentRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		bridge:      opts.Bridge,
		surfaces:    opts.Surfaces,
		loop:        opts.Loop,
		presenter:   opts.Presenter,
		haptics:     opts.Haptics,
		sink:        opts.Sink,
		users:       opts.Users,
		ids:         opts.IDs,
		logger:      opts.Logger.Named("feed"),
		metrics:     opts.Metrics,
		maxRetries:  opts.MaxSilentRetries,
		loadTimeout: opts.LoadTimeout,
		ctx:         ctx,
		cancel:      cancel,
		live:        make(map[int]*liveCard),
		byID:        make(map[id.CardID]*liveCard),
		foreground:  true,
	}
}

// SetItems replaces the feed and settles on index 0 without a haptic or
// impression.
func (s *Supervisor) SetItems(items []Item) {
	for _, c := range s.live {
		s.teardown(c)
	}
	s.items = append([]Item(nil), items...)
	s.slots = make([]slot, len(items))
	s.active = 0
	s.playing = false
	if len(items) == 0 {
		s.reportLive()
		return
	}
	s.apply(0)
	s.settled()
}

// OnViewportSettled handles a user scroll coming to rest on index.
func (s *Supervisor) OnViewportSettled(index int) error {
	return s.move(index, true)
}

// JumpTo moves to index without counting as a swipe.
func (s *Supervisor) JumpTo(index int) error {
	return s.move(index, false)
}

// Next swipes forward. From the last card it wraps to the first with a
// jump, which does not count as a swipe.
func (s *Supervisor) Next() error {
	if len(s.items) == 0 {
		return ErrInvalidIndex
	}
	if s.active == len(s.items)-1 {
		return s.JumpTo(0)
	}
	return s.OnViewportSettled(s.active + 1)
}

func (s *Supervisor) move(index int, swipe bool) error {
	if index < 0 || index >= len(s.items) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidIndex, index, len(s.items))
	}
	if index == s.active {
		s.apply(index)
		return nil
	}
	if s.playing {
		s.playing = false
		if c, ok := s.live[s.active]; ok && s.presenter != nil {
			s.presenter.SetPlaying(c.info, false)
		}
	}
	s.apply(index)

	s.feedback(protocol.HapticImpactLight)
	s.settled()
	if swipe {
		s.track(telemetry.EventImpression, s.items[index].ID)
	}
	return nil
}

// apply recomputes the window around active and issues lifecycle commands.
func (s *Supervisor) apply(active int) {
	s.active = active

	for idx, c := range s.live {
		if abs(idx-active) > 1 {
			s.teardown(c)
		}
	}
	for idx := range s.slots {
		if abs(idx-active) > 1 {
			sl := &s.slots[idx]
			sl.degraded, sl.attempts, sl.failed = false, 0, false
		}
	}
	for _, idx := range window(active, len(s.items)) {
		if _, ok := s.live[idx]; !ok && !s.slots[idx].failed {
			s.mount(idx)
		}
	}
	for idx, c := range s.live {
		s.bridge.Send(c.info.ID, s.commandFor(idx))
	}

	for idx := range s.slots {
		sl := &s.slots[idx]
		role := RoleFor(idx, active, sl.instantiated)
		if role != sl.role && s.metrics != nil {
			s.metrics.RecordTransition(role.String())
		}
		sl.role = role
	}
	s.reportLive()
}

func (s *Supervisor) commandFor(idx int) protocol.Command {
	if idx == s.active && s.foreground {
		return protocol.Resume()
	}
	return protocol.Pause()
}

// mount instantiates a surface for idx and starts loading it.
func (s *Supervisor) mount(idx int) {
	item := s.items[idx]
	info := bridge.Card{ID: s.ids.NewCardID(), ContentID: item.ID, Index: idx}
	ctx, cancel := context.WithCancel(s.ctx)

	cardID := info.ID
	surf, err := s.surfaces.New(surface.Spec{
		CardID: cardID,
		URL:    item.URL,
		Config: item.Config,
		Emit: func(raw []byte) {
			s.loop.Post(func() { s.bridge.Receive(cardID, raw) })
		},
	})
	if err != nil {
		cancel()
		s.logger.Warn("surface construction failed", zap.String("content_id", item.ID), zap.Error(err))
		s.fault(idx, info, err)
		return
	}

	s.slots[idx].instantiated = true
	c := &liveCard{info: info, surface: surf, ctx: ctx, cancel: cancel}
	s.live[idx] = c
	s.byID[cardID] = c
	s.bridge.Attach(info, surf)
	if s.presenter != nil {
		s.presenter.SetLoading(info, true)
	}
	s.logger.Debug("mounted", zap.Int("index", idx), zap.String("card_id", cardID.String()), zap.String("url", item.URL))

	loop.Go(s.loop, ctx, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
		defer cancel()
		return struct{}{}, surf.Load(ctx)
	}, func(_ struct{}, err error) {
		if err != nil {
			s.SurfaceFailed(info, err)
			return
		}
		s.watch(c)
	})
}

// watch reports an unexpected termination of a loaded surface.
func (s *Supervisor) watch(c *liveCard) {
	go func() {
		select {
		case <-c.surface.Done():
		case <-c.ctx.Done():
			return
		}
		err := c.surface.Err()
		if err == nil {
			return
		}
		s.loop.Post(func() {
			if c.ctx.Err() == nil {
				s.SurfaceFailed(c.info, err)
			}
		})
	}()
}

// teardown stops and releases a live card. Tasks bound to its context are
// cancelled and later messages from it are dropped.
func (s *Supervisor) teardown(c *liveCard) {
	s.bridge.Send(c.info.ID, protocol.Stop())
	s.bridge.Detach(c.info.ID)
	c.cancel()
	if err := c.surface.Close(); err != nil {
		s.logger.Debug("surface close", zap.String("card_id", c.info.ID.String()), zap.Error(err))
	}
	delete(s.live, c.info.Index)
	delete(s.byID, c.info.ID)
}

// SurfaceReady handles HEARTBEAT_READY. Commands sent while the surface
// was loading may have been lost, so the role's command is sent again.
func (s *Supervisor) SurfaceReady(card bridge.Card, _ protocol.Ready) {
	c, ok := s.byID[card.ID]
	if !ok {
		return
	}
	s.slots[c.info.Index].degraded = false
	if s.presenter != nil {
		s.presenter.SetLoading(c.info, false)
	}
	s.bridge.Send(c.info.ID, s.commandFor(c.info.Index))
}

// FlowStarted handles FLOW_START.
func (s *Supervisor) FlowStarted(card bridge.Card) {
	c, ok := s.byID[card.ID]
	if !ok || c.info.Index != s.active {
		return
	}
	s.SetPlaying(card.ID, true)
	s.track(telemetry.EventStart, c.info.ContentID)
}

// SetPlaying records whether the active card is being played. Other cards
// are ignored.
func (s *Supervisor) SetPlaying(cardID id.CardID, playing bool) {
	c, ok := s.byID[cardID]
	if !ok || c.info.Index != s.active {
		return
	}
	s.playing = playing
	if s.presenter != nil {
		s.presenter.SetPlaying(c.info, playing)
	}
}

// SurfaceFailed handles a load failure or unexpected termination. The card
// is silently re-instantiated up to the retry cap, then the presenter is
// told to show an error.
func (s *Supervisor) SurfaceFailed(card bridge.Card, err error) {
	c, ok := s.byID[card.ID]
	if !ok {
		return
	}
	idx := c.info.Index
	if idx == s.active {
		s.playing = false
	}
	s.teardown(c)
	s.logger.Warn("surface failed", zap.Int("index", idx), zap.String("card_id", card.ID.String()), zap.Error(err))
	if errors.Is(err, surface.ErrTerminated) {
		s.track(telemetry.EventCrash, c.info.ContentID)
	}
	s.fault(idx, c.info, err)
	s.reportLive()
}

func (s *Supervisor) fault(idx int, info bridge.Card, err error) {
	sl := &s.slots[idx]
	sl.degraded = true
	sl.attempts++
	if sl.attempts <= s.maxRetries {
		s.recordFailure("retry")
		if abs(idx-s.active) <= 1 {
			s.mount(idx)
			if c, ok := s.live[idx]; ok {
				s.bridge.Send(c.info.ID, s.commandFor(idx))
			}
		}
		return
	}

	sl.failed = true
	s.recordFailure("error")
	if s.presenter != nil {
		s.presenter.SetLoading(info, false)
		s.presenter.ShowError(info, err)
	}
}

// OnActiveBecomesInactive pauses the active card, as when the app moves to
// the background.
func (s *Supervisor) OnActiveBecomesInactive() {
	s.foreground = false
	if c, ok := s.live[s.active]; ok {
		s.bridge.Send(c.info.ID, protocol.Pause())
	}
}

// OnActiveBecomesActive resumes the active card.
func (s *Supervisor) OnActiveBecomesActive() {
	s.foreground = true
	if c, ok := s.live[s.active]; ok {
		s.bridge.Send(c.info.ID, protocol.Resume())
	}
}

// Restart asks the active card to restart its content.
func (s *Supervisor) Restart() {
	c, ok := s.live[s.active]
	if !ok {
		return
	}
	s.bridge.Send(c.info.ID, protocol.Restart())
	s.feedback(protocol.HapticImpactMedium)
	s.playing = true
	if s.presenter != nil {
		s.presenter.SetPlaying(c.info, true)
	}
	s.track(telemetry.EventRestart, c.info.ContentID)
}

// SetAudio sends audio settings to every live card.
func (s *Supervisor) SetAudio(muted bool, volume float64) {
	cmd := protocol.Audio(muted, volume)
	for _, c := range s.live {
		s.bridge.Send(c.info.ID, cmd)
	}
}

// CardContext returns the lifetime context of a live card.
func (s *Supervisor) CardContext(cardID id.CardID) (context.Context, bool) {
	c, ok := s.byID[cardID]
	if !ok {
		return nil, false
	}
	return c.ctx, true
}

// Snapshot returns the state of every index.
func (s *Supervisor) Snapshot() []CardState {
	out := make([]CardState, len(s.slots))
	for i, sl := range s.slots {
		out[i] = CardState{Index: i, Role: sl.role, Degraded: sl.degraded, Attempts: sl.attempts}
		if c, ok := s.live[i]; ok {
			out[i].CardID = c.info.ID
		}
	}
	return out
}

// ActiveIndex returns the active index, 0 for an empty feed.
func (s *Supervisor) ActiveIndex() int { return s.active }

// LiveCount returns the number of instantiated surfaces.
func (s *Supervisor) LiveCount() int { return len(s.live) }

// Items returns the current feed.
func (s *Supervisor) Items() []Item { return s.items }

// Playing reports whether the active card's content is being played.
func (s *Supervisor) Playing() bool { return s.playing }

// Close tears down every card.
func (s *Supervisor) Close() {
	for _, c := range s.live {
		s.teardown(c)
	}
	s.cancel()
	s.reportLive()
}

func (s *Supervisor) settled() {
	if s.presenter != nil {
		s.presenter.Settled(s.active, s.items[s.active])
	}
}

func (s *Supervisor) track(eventType, contentID string) {
	if s.sink == nil || s.users == nil {
		return
	}
	sink, users := s.sink, s.users
	loop.Go(s.loop, s.ctx, func(ctx context.Context) (struct{}, error) {
		userID, err := users.UserID(ctx)
		if err != nil {
			return struct{}{}, err
		}
		sink.Track(ctx, telemetry.Event{ContentID: contentID, UserID: userID, Type: eventType})
		return struct{}{}, nil
	}, func(_ struct{}, err error) {
		if err != nil {
			s.logger.Debug("analytics event skipped", zap.String("type", eventType), zap.Error(err))
		}
	})
}

func (s *Supervisor) feedback(kind protocol.HapticKind) {
	if s.haptics != nil {
		s.haptics.Feedback(kind)
	}
}

func (s *Supervisor) recordFailure(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSurfaceFailure(outcome)
	}
}

func (s *Supervisor) reportLive() {
	if s.metrics != nil {
		s.metrics.SetLiveSurfaces(len(s.live))
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
