// Package id generates identifiers for cards, queued mutations and users.
//
// Card and mutation IDs are prefixed ULIDs, so they sort by creation time and
// stay readable in logs (card_01H..., mut_01H...). A card ID names one
// instantiation of a surface: re-mounting the same feed item yields a new ID,
// which is how late messages from a torn-down surface are told apart from
// its successor. User IDs are random UUIDs persisted by the progress store.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// CardID identifies one surface instantiation.
type CardID string

// MutationID identifies one queued progress mutation.
type MutationID string

const (
	CardPrefix     = "card"
	MutationPrefix = "mut"
	UserPrefix     = "user"
)

func (id CardID) String() string     { return string(id) }
func (id MutationID) String() string { return string(id) }

// Generator produces monotonic ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographic monotonic entropy.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy, now: time.Now}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewCardID generates an ID for a surface instantiation.
func (g *Generator) NewCardID() CardID {
	return CardID(g.GenerateWithPrefix(CardPrefix))
}

// NewMutationID generates an ID for a queued progress mutation.
func (g *Generator) NewMutationID() MutationID {
	return MutationID(g.GenerateWithPrefix(MutationPrefix))
}

// NewUserID generates an anonymous device-scoped user identifier.
func NewUserID() string {
	return fmt.Sprintf("%s_%s", UserPrefix, uuid.NewString())
}

// Timestamp extracts the creation time of a prefixed or bare ULID.
func Timestamp(s string) (time.Time, error) {
	raw := s
	if n := len(raw); n > ulid.EncodedSize {
		raw = raw[n-ulid.EncodedSize:]
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
