package bridge

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

const maxErrorReportRunes = 512

// Card identifies one attached surface instantiation.
type Card struct {
	ID        id.CardID
	ContentID string
	Index     int
}

// Endpoint is the host side of a surface channel. Deliver must not block;
// it reports false when the frame could not be queued.
type Endpoint interface {
	Deliver(raw []byte) bool
}

// Lifecycle receives load and interaction signals.
type Lifecycle interface {
	SurfaceReady(card Card, ready protocol.Ready)
	FlowStarted(card Card)
}

// Telemetry receives gameplay progress.
type Telemetry interface {
	StateUpdated(card Card, update protocol.StateUpdate)
	FlowCompleted(card Card, complete protocol.FlowComplete)
}

// Haptics plays feedback patterns. Implementations must return quickly.
type Haptics interface {
	Feedback(kind protocol.HapticKind)
}

// Handlers are the dispatch targets for inbound messages. Nil handlers
// drop their messages.
type Handlers struct {
	Lifecycle Lifecycle
	Telemetry Telemetry
	Haptics   Haptics
}

type attachment struct {
	card     Card
	endpoint Endpoint
}

// Bridge routes frames between the host and attached surfaces.
type Bridge struct {
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	sanitizer *bluemonday.Policy

	mu       sync.RWMutex
	cards    map[id.CardID]attachment
	handlers Handlers
}

// New creates an empty bridge. metrics may be nil.
func New(logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		logger:    logger.Named("bridge"),
		metrics:   metrics,
		sanitizer: bluemonday.StrictPolicy(),
		cards:     make(map[id.CardID]attachment),
	}
}

// Handle installs dispatch targets.
func (b *Bridge) Handle(h Handlers) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = h
}

// Attach registers a surface channel for card.
func (b *Bridge) Attach(card Card, endpoint Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cards[card.ID] = attachment{card: card, endpoint: endpoint}
}

// Detach forgets card. Later frames to or from it are dropped.
func (b *Bridge) Detach(cardID id.CardID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cards, cardID)
}

// Card looks up an attached card.
func (b *Bridge) Card(cardID id.CardID) (Card, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.cards[cardID]
	return a.card, ok
}

// Len returns the number of attached cards.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cards)
}

// Send delivers cmd to the card's surface. Sending to a card that is not
// attached is a silent no-op. The result reports whether the frame was
// handed to the surface.
func (b *Bridge) Send(cardID id.CardID, cmd protocol.Command) bool {
	b.mu.RLock()
	a, ok := b.cards[cardID]
	b.mu.RUnlock()
	if !ok {
		return false
	}

	raw, err := protocol.Encode(cmd)
	if err != nil {
		b.logger.Warn("encode command", zap.String("card_id", cardID.String()), zap.Error(err))
		return false
	}
	if !a.endpoint.Deliver(raw) {
		b.drop("surface_busy")
		b.logger.Debug("surface inbox full", zap.String("card_id", cardID.String()), zap.String("action", string(cmd.Action)))
		return false
	}
	if b.metrics != nil {
		b.metrics.RecordOutbound(string(cmd.Action))
	}
	return true
}

// Receive decodes a frame from card and dispatches it. It returns the
// decoded message, or nil when the frame was dropped.
func (b *Bridge) Receive(cardID id.CardID, raw []byte) protocol.Message {
	b.mu.RLock()
	a, ok := b.cards[cardID]
	h := b.handlers
	b.mu.RUnlock()
	if !ok {
		b.drop("detached")
		return nil
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			b.drop("malformed")
		}
		b.logger.Debug("dropping frame", zap.String("card_id", cardID.String()), zap.Error(err))
		return nil
	}
	if b.metrics != nil {
		b.metrics.RecordInbound(string(msg.Action()))
	}

	switch m := msg.(type) {
	case protocol.Ready:
		if h.Lifecycle != nil {
			h.Lifecycle.SurfaceReady(a.card, m)
		}
	case protocol.FlowStart:
		if h.Lifecycle != nil {
			h.Lifecycle.FlowStarted(a.card)
		}
	case protocol.StateUpdate:
		if h.Telemetry != nil {
			h.Telemetry.StateUpdated(a.card, m)
		}
	case protocol.FlowComplete:
		if h.Telemetry != nil {
			h.Telemetry.FlowCompleted(a.card, m)
		}
	case protocol.Haptic:
		kind := m.Kind
		if !kind.Known() {
			kind = protocol.HapticSelection
		}
		if h.Haptics != nil {
			h.Haptics.Feedback(kind)
		}
	case protocol.ErrorReport:
		b.logger.Warn("surface reported error",
			zap.String("card_id", cardID.String()),
			zap.String("content_id", a.card.ContentID),
			zap.String("message", b.sanitize(m.Message)))
	case protocol.Unknown:
		b.logger.Debug("ignoring action", zap.String("card_id", cardID.String()), zap.String("action", string(m.Name)))
	}
	return msg
}

func (b *Bridge) sanitize(s string) string {
	clean := b.sanitizer.Sanitize(s)
	if utf8.RuneCountInString(clean) <= maxErrorReportRunes {
		return clean
	}
	r := []rune(clean)
	return string(r[:maxErrorReportRunes]) + "…"
}

func (b *Bridge) drop(reason string) {
	if b.metrics != nil {
		b.metrics.RecordDropped(reason)
	}
}
