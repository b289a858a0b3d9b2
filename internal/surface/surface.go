// Package surface abstracts the isolated runtime a card's content runs in.
//
// A Surface is created for one card instantiation, loaded once, and closed
// when the card leaves the window. It exchanges raw envelope frames with the
// host: Deliver queues host commands, and frames produced by the content are
// passed to the Emit callback supplied at construction. Emit is called from
// the surface's own goroutine, so hosts re-post frames onto their loop.
package surface

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

var (
	// ErrTerminated reports that a loaded surface died on its own.
	ErrTerminated = errors.New("surface: content terminated")
	// ErrUnsupportedScheme reports a content URL no constructor handles.
	ErrUnsupportedScheme = errors.New("surface: unsupported url scheme")
	// ErrClosed reports use of a closed surface.
	ErrClosed = errors.New("surface: closed")
)

// Surface is one sandboxed content instance.
type Surface interface {
	// Load fetches and starts the content. It blocks until the content is
	// running or has failed.
	Load(ctx context.Context) error
	// Deliver queues a host frame without blocking.
	Deliver(raw []byte) bool
	// Done is closed once the surface stops, for any reason.
	Done() <-chan struct{}
	// Err returns ErrTerminated (possibly wrapped) if the content died after
	// loading, and nil if it was closed by the host.
	Err() error
	// Close releases the surface. Safe to call more than once.
	Close() error
}

// Spec describes the content to instantiate.
type Spec struct {
	CardID id.CardID
	URL    string
	// Config is exposed to the content as its host configuration.
	Config map[string]any
	// Emit receives frames produced by the content.
	Emit func(raw []byte)
}

// Constructor builds a surface for a spec.
type Constructor func(spec Spec) (Surface, error)

// Factory creates surfaces by content URL scheme.
type Factory interface {
	New(spec Spec) (Surface, error)
}

// Registry is a Factory keyed by URL scheme.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds constructor to each scheme.
func (r *Registry) Register(ctor Constructor, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.ctors[strings.ToLower(s)] = ctor
	}
}

// New picks the constructor for spec.URL.
func (r *Registry) New(spec Spec) (Surface, error) {
	u, err := url.Parse(spec.URL)
	if err != nil {
		return nil, fmt.Errorf("surface: parse %q: %w", spec.URL, err)
	}

	r.mu.RLock()
	ctor, ok := r.ctors[strings.ToLower(u.Scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if spec.Emit == nil {
		spec.Emit = func([]byte) {}
	}
	return ctor(spec)
}
