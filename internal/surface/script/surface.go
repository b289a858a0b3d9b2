package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/surface"
)

// Options configure script surfaces.
type Options struct {
	Fetcher Fetcher
	// Timeout bounds every single script evaluation, listener dispatch and
	// timer callback. Content exceeding it is considered dead.
	Timeout   time.Duration
	InboxSize int
	Logger    *zap.Logger
}

// DefaultOptions returns conservative limits.
func DefaultOptions() Options {
	return Options{Timeout: 5 * time.Second, InboxSize: 64}
}

// Constructor adapts opts to a surface.Registry constructor.
func Constructor(opts Options) surface.Constructor {
	return func(spec surface.Spec) (surface.Surface, error) {
		return New(spec, opts)
	}
}

// Surface runs web content scripts in an isolated goja VM.
type Surface struct {
	spec   surface.Spec
	opts   Options
	logger *zap.Logger

	inbox chan []byte
	jobs  chan func() error
	stop  chan struct{}
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	ready     atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	doneOnce  sync.Once

	mu  sync.Mutex
	err error
}

// New prepares a surface. Nothing is fetched until Load.
func New(spec surface.Spec, opts Options) (*Surface, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("script: fetcher is required")
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = def.InboxSize
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
		logger: opts.Logger.Named("script").With(zap.String("card_id", spec.CardID.String())),
		inbox:  make(chan []byte, opts.InboxSize),
		jobs:   make(chan func() error, opts.InboxSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Load fetches the entry document, evaluates its scripts and fires the
// window load event.
func (s *Surface) Load(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return surface.ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("script: already loaded")
	}

	body, err := s.opts.Fetcher.Fetch(ctx, s.spec.URL)
	if err != nil {
		s.finish()
		return fmt.Errorf("script: fetch entry: %w", err)
	}
	sources, err := Extract(ctx, s.opts.Fetcher, s.spec.URL, body)
	if err != nil {
		s.finish()
		return err
	}

	loaded := make(chan error, 1)
	go s.run(sources, loaded)

	select {
	case err := <-loaded:
		return err
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	}
}

// Deliver queues a host frame for the content.
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

// Close stops the VM. Frames delivered to loaded content before Close are
// still dispatched, within one evaluation timeout. Content that has not
// finished loading is interrupted at once.
func (s *Surface) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.started.CompareAndSwap(false, true) {
			s.cancel()
			s.finish()
			return
		}
		if !s.ready.Load() {
			s.cancel()
			return
		}
		close(s.stop)
		go func() {
			t := time.NewTimer(s.opts.Timeout)
			defer t.Stop()
			select {
			case <-s.done:
			case <-t.C:
			}
			s.cancel()
		}()
	})
	return nil
}

func (s *Surface) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Surface) run(sources []Source, loaded chan<- error) {
	defer s.finish()

	rt, err := newRuntime(s.logger, s.spec.Config, s.spec.Emit, s.schedule)
	if err != nil {
		loaded <- fmt.Errorf("script: init runtime: %w", err)
		return
	}
	defer rt.stopTimers()

	stopWatch := context.AfterFunc(s.ctx, func() { rt.vm.Interrupt("surface closed") })
	defer stopWatch()

	for _, src := range sources {
		if err := s.guard(rt, func() error { return rt.run(src) }); err != nil {
			loaded <- fmt.Errorf("script: %s: %w", src.Name, err)
			return
		}
	}
	if err := s.guard(rt, rt.fireLoad); err != nil {
		loaded <- fmt.Errorf("script: load event: %w", err)
		return
	}
	s.ready.Store(true)
	loaded <- nil

	for {
		var job func() error
		select {
		case <-s.ctx.Done():
			return
		case <-s.stop:
			s.drain(rt)
			return
		case raw := <-s.inbox:
			job = func() error { return rt.deliver(raw) }
		case job = <-s.jobs:
		}
		if s.ctx.Err() != nil {
			return
		}

		if err := s.guard(rt, job); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(err)
			return
		}
	}
}

// drain dispatches the frames still queued at Close.
func (s *Surface) drain(rt *runtime) {
	for {
		select {
		case raw := <-s.inbox:
			if err := s.guard(rt, func() error { return rt.deliver(raw) }); err != nil {
				s.logger.Debug("frame dropped at close", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

// guard runs job with the evaluation timeout armed.
func (s *Surface) guard(rt *runtime, job func() error) error {
	t := time.AfterFunc(s.opts.Timeout, func() { rt.vm.Interrupt("execution timeout exceeded") })
	defer t.Stop()

	err := job()
	rt.vm.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if s.ctx.Err() != nil {
			return surface.ErrClosed
		}
		return fmt.Errorf("%w: %v", surface.ErrTerminated, interrupted.Value())
	}
	return err
}

// schedule arms a timer whose callback runs on the VM goroutine.
func (s *Surface) schedule(delay time.Duration, job func() error) func() bool {
	t := time.AfterFunc(delay, func() {
		select {
		case s.jobs <- job:
		case <-s.ctx.Done():
		}
	})
	return t.Stop
}

func (s *Surface) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warn("content terminated", zap.Error(err))
}
