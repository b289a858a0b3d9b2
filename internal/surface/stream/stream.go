// Package stream implements surfaces whose content runs remotely and talks
// to the host over a websocket. Text frames in both directions are raw
// envelopes. The host configuration is sent as the first frame.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/protocol"
	"github.com/Kh3rwa1/ArcadiaApp/internal/surface"
)

// Options configure stream surfaces.
type Options struct {
	Dialer        *websocket.Dialer
	WriteTimeout  time.Duration
	InboxSize     int
	MaxFrameBytes int64
	Logger        *zap.Logger
}

// Constructor adapts opts to a surface.Registry constructor.
func Constructor(opts Options) surface.Constructor {
	return func(spec surface.Spec) (surface.Surface, error) {
		return New(spec, opts), nil
	}
}

// Surface is a websocket-backed content surface.
type Surface struct {
	spec   surface.Spec
	opts   Options
	logger *zap.Logger

	inbox chan []byte
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	started  atomic.Bool
	closing  atomic.Bool
	doneOnce sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
	err  error
}

// New prepares a surface. The connection is dialed by Load.
func New(spec surface.Spec, opts Options) *Surface {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 1 << 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if spec.Emit == nil {
		spec.Emit = func([]byte) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Surface{
		spec:   spec,
		opts:   opts,
		logger: opts.Logger.Named("stream").With(zap.String("card_id", spec.CardID.String())),
		inbox:  make(chan []byte, opts.InboxSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load dials the content endpoint and sends the host configuration.
func (s *Surface) Load(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return surface.ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("stream: already loaded")
	}

	header := http.Header{}
	header.Set("X-Arcadia-Card", s.spec.CardID.String())
	conn, resp, err := s.opts.Dialer.DialContext(ctx, s.spec.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.finish()
		return fmt.Errorf("stream: dial: %w", err)
	}
	conn.SetReadLimit(s.opts.MaxFrameBytes)

	hello, err := protocol.Encode(protocol.Config(s.spec.Config))
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		err = conn.WriteMessage(websocket.TextMessage, hello)
	}
	if err != nil {
		_ = conn.Close()
		s.finish()
		return fmt.Errorf("stream: send config: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		_ = conn.Close()
		s.finish()
		return surface.ErrClosed
	}

	go s.readLoop(conn)
	go s.writeLoop(conn)
	return nil
}

// Deliver queues a host frame.
func (s *Surface) Deliver(raw []byte) bool {
	if s.closing.Load() {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- raw:
		return true
	default:
		return false
	}
}

func (s *Surface) Done() <-chan struct{} { return s.done }

func (s *Surface) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes frames already queued, sends a close frame and drops the
// connection.
func (s *Surface) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	if s.started.CompareAndSwap(false, true) {
		s.finish()
	}
	return nil
}

func (s *Surface) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Surface) readLoop(conn *websocket.Conn) {
	defer s.finish()
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				s.fail(fmt.Errorf("%w: %v", surface.ErrTerminated, err))
			}
			_ = conn.Close()
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		s.spec.Emit(data)
	}
}

func (s *Surface) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			deadline := time.Now().Add(s.opts.WriteTimeout)
			s.drain(conn, deadline)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "card unmounted")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = conn.Close()
			return
		case <-s.done:
			return
		case raw := <-s.inbox:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				if !s.closing.Load() {
					s.fail(fmt.Errorf("%w: %v", surface.ErrTerminated, err))
				}
				_ = conn.Close()
				return
			}
		}
	}
}

// drain writes the frames queued before Close, so content sees its last
// lifecycle command ahead of the close frame.
func (s *Surface) drain(conn *websocket.Conn, deadline time.Time) {
	_ = conn.SetWriteDeadline(deadline)
	for {
		select {
		case raw := <-s.inbox:
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Surface) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.logger.Warn("content terminated", zap.Error(err))
}
