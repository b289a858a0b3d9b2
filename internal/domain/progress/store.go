package progress

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("progress store closed")

// Store is the local durable store. Apply must persist the record and
// append the mutation atomically.
type Store interface {
	Get(ctx context.Context, contentID string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	All(ctx context.Context) ([]Record, error)
	Apply(ctx context.Context, rec Record, m Mutation) (Mutation, error)
	Pending(ctx context.Context) ([]Mutation, error)
	Remove(ctx context.Context, seqs []int64) error
	UserID(ctx context.Context) (string, error)
	Close() error
}

// MemoryStore is an in-process Store used by tests and ephemeral hosts.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	queue   []Mutation
	nextSeq int64
	userID  string
	closed  bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), nextSeq: 1}
}

func (s *MemoryStore) Get(_ context.Context, contentID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, false, ErrStoreClosed
	}
	rec, ok := s.records[contentID]
	return rec.Clone(), ok, nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records[rec.ContentID] = rec.Clone()
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out, nil
}

func (s *MemoryStore) Apply(_ context.Context, rec Record, m Mutation) (Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Mutation{}, ErrStoreClosed
	}
	m.Seq = s.nextSeq
	s.nextSeq++
	m.Session.State = cloneMap(m.Session.State)
	s.records[rec.ContentID] = rec.Clone()
	s.queue = append(s.queue, m)
	return m, nil
}

func (s *MemoryStore) Pending(_ context.Context) ([]Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Mutation, len(s.queue))
	for i, m := range s.queue {
		m.Session.State = cloneMap(m.Session.State)
		out[i] = m
	}
	return out, nil
}

func (s *MemoryStore) Remove(_ context.Context, seqs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.queue = slices.DeleteFunc(s.queue, func(m Mutation) bool {
		return slices.Contains(seqs, m.Seq)
	})
	return nil
}

func (s *MemoryStore) UserID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStoreClosed
	}
	if s.userID == "" {
		s.userID = id.NewUserID()
	}
	return s.userID, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// newMutation builds the queue entry for a normalized session.
func newMutation(gen *id.Generator, s Session, now time.Time) Mutation {
	return Mutation{ID: gen.NewMutationID(), Session: s, EnqueuedAt: now.UTC()}
}
