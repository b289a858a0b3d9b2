package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errOffline = errors.New("offline")

// fakeRemote records batches. The handler decides each batch outcome.
type fakeRemote struct {
	mu      sync.Mutex
	batches [][]BatchItem
	handle  func(call int, items []BatchItem) ([]BatchResult, error)
	records map[string]Record
	fetches int
}

func (f *fakeRemote) Fetch(_ context.Context, _, contentID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.records == nil {
		return Record{}, errOffline
	}
	return f.records[contentID], nil
}

func (f *fakeRemote) SaveBatch(_ context.Context, _ string, items []BatchItem) ([]BatchResult, error) {
	f.mu.Lock()
	call := len(f.batches)
	f.batches = append(f.batches, items)
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return acceptAll(items), nil
	}
	return handle(call, items)
}

func (f *fakeRemote) sent() [][]BatchItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]BatchItem(nil), f.batches...)
}

func acceptAll(items []BatchItem) []BatchResult {
	out := make([]BatchResult, len(items))
	for i, it := range items {
		out[i] = BatchResult{ContentID: it.ContentID, OK: true, HighScore: it.BestScore}
	}
	return out
}

func offline(int, []BatchItem) ([]BatchResult, error) { return nil, errOffline }

func newTestEngine(t *testing.T, remote *fakeRemote) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	e := New(Options{
		Store:  store,
		Remote: remote,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return t0 },
	})
	t.Cleanup(e.Close)
	return e, store
}

func seqs(t *testing.T, e *Engine) []int64 {
	t.Helper()
	pending, err := e.Pending(context.Background())
	require.NoError(t, err)
	out := make([]int64, len(pending))
	for i, m := range pending {
		out[i] = m.Seq
	}
	return out
}

func TestRecordSessionQueuesAndFlushes(t *testing.T) {
	remote := &fakeRemote{}
	e, _ := newTestEngine(t, remote)
	ctx := context.Background()

	rec, err := e.RecordSession(ctx, "g1", 2, 40, map[string]any{"coins": 1.0}, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CurrentLevel)
	assert.Equal(t, int64(40), rec.HighScore)

	e.Wait()
	assert.Empty(t, seqs(t, e))
	require.Len(t, remote.sent(), 1)
	assert.Equal(t, "g1", remote.sent()[0][0].ContentID)
}

func TestRecordSessionRejectsEmptyContent(t *testing.T) {
	e, _ := newTestEngine(t, &fakeRemote{})
	_, err := e.RecordSession(context.Background(), "", 1, 1, nil, 0)
	assert.Error(t, err)
}

func TestFlushFailureKeepsQueue(t *testing.T) {
	remote := &fakeRemote{handle: offline}
	e, _ := newTestEngine(t, remote)
	ctx := context.Background()

	_, err := e.RecordSession(ctx, "g1", 1, 10, nil, 100)
	require.NoError(t, err)
	_, err = e.RecordSession(ctx, "g2", 1, 20, nil, 200)
	require.NoError(t, err)
	_, err = e.RecordSession(ctx, "g1", 3, 15, nil, 300)
	require.NoError(t, err)
	e.Wait()

	before := seqs(t, e)
	require.Len(t, before, 3)

	err = e.Flush(ctx)
	assert.ErrorIs(t, err, errOffline)
	assert.Equal(t, before, seqs(t, e))

	remote.mu.Lock()
	remote.handle = nil
	remote.mu.Unlock()

	require.NoError(t, e.Flush(ctx))
	assert.Empty(t, seqs(t, e))

	sent := remote.sent()
	assert.Equal(t, []BatchItem{
		{ContentID: "g1", Level: 3, Score: 25, BestScore: 15, Sessions: 2, DurationMs: 400},
		{ContentID: "g2", Level: 1, Score: 20, BestScore: 20, Sessions: 1, DurationMs: 200},
	}, sent[len(sent)-1])
}

func TestFlushPartialBatchKeepsQueue(t *testing.T) {
	remote := &fakeRemote{handle: func(_ int, items []BatchItem) ([]BatchResult, error) {
		out := acceptAll(items)
		for i := range out {
			if out[i].ContentID == "g2" {
				out[i].OK = false
				out[i].Message = "rejected"
			}
		}
		return out, nil
	}}
	e, _ := newTestEngine(t, remote)
	ctx := context.Background()

	_, err := e.RecordSession(ctx, "g1", 1, 10, nil, 0)
	require.NoError(t, err)
	e.Wait()
	_, err = e.RecordSession(ctx, "g2", 1, 10, nil, 0)
	require.NoError(t, err)
	e.Wait()

	before := seqs(t, e)
	require.NotEmpty(t, before)
	assert.ErrorIs(t, e.Flush(ctx), ErrPartialBatch)
	assert.Equal(t, before, seqs(t, e))
}

func TestFlushKeepsEntriesAppendedInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	remote := &fakeRemote{handle: func(call int, items []BatchItem) ([]BatchResult, error) {
		if call == 0 {
			close(entered)
			<-release
			return acceptAll(items), nil
		}
		return nil, errOffline
	}}
	e, store := newTestEngine(t, remote)
	ctx := context.Background()

	_, err := store.Apply(ctx, NewRecord("g1"), Mutation{Session: Session{ContentID: "g1", Level: 1, Score: 5}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Flush(ctx) }()
	<-entered

	assert.ErrorIs(t, e.Flush(ctx), ErrFlushInFlight)

	_, err = e.RecordSession(ctx, "g1", 2, 7, nil, 0)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	e.Wait()

	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(7), pending[0].Session.Score)
}

func TestFlushRejectedInFlightHasNoEffect(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	remote := &fakeRemote{handle: func(call int, items []BatchItem) ([]BatchResult, error) {
		if call == 0 {
			close(entered)
			<-release
		}
		return acceptAll(items), nil
	}}
	e, store := newTestEngine(t, remote)
	ctx := context.Background()

	_, err := store.Apply(ctx, NewRecord("g1"), Mutation{Session: Session{ContentID: "g1", Level: 1, Score: 5}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Flush(ctx) }()
	<-entered

	_, err = e.RecordSession(ctx, "g2", 1, 9, nil, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Flush(ctx), ErrFlushInFlight)
	e.Wait()

	close(release)
	require.NoError(t, <-done)

	require.Len(t, remote.sent(), 1)
	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "g2", pending[0].Session.ContentID)

	require.NoError(t, e.Flush(ctx))
	assert.Empty(t, seqs(t, e))
	require.Len(t, remote.sent(), 2)
	assert.Equal(t, "g2", remote.sent()[1][0].ContentID)
}

func TestFlushEmptyQueueSendsNothing(t *testing.T) {
	remote := &fakeRemote{}
	e, _ := newTestEngine(t, remote)
	require.NoError(t, e.Flush(context.Background()))
	assert.Empty(t, remote.sent())
}

func TestFlushFoldsRemoteWatermark(t *testing.T) {
	remote := &fakeRemote{handle: func(_ int, items []BatchItem) ([]BatchResult, error) {
		out := acceptAll(items)
		out[0].HighScore = 999
		return out, nil
	}}
	e, _ := newTestEngine(t, remote)
	ctx := context.Background()

	_, err := e.RecordSession(ctx, "g1", 1, 10, nil, 0)
	require.NoError(t, err)
	e.Wait()

	rec, ok := e.Load(ctx, "g1")
	require.True(t, ok)
	assert.Equal(t, int64(999), rec.HighScore)
}

func TestDuplicateSessionDoublesAdditiveFields(t *testing.T) {
	e, _ := newTestEngine(t, &fakeRemote{handle: offline})
	ctx := context.Background()
	state := map[string]any{"coins": 3.0}

	once, err := e.RecordSession(ctx, "g1", 2, 50, state, 0)
	require.NoError(t, err)
	twice, err := e.RecordSession(ctx, "g1", 2, 50, state, 0)
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, once.CurrentLevel, twice.CurrentLevel)
	assert.Equal(t, once.HighScore, twice.HighScore)
	assert.Equal(t, once.State, twice.State)
	assert.Equal(t, 2*once.TotalScore, twice.TotalScore)
	assert.Equal(t, 2*once.PlayCount, twice.PlayCount)
}

func TestLoadMergesRemoteInBackground(t *testing.T) {
	remote := &fakeRemote{
		handle: offline,
		records: map[string]Record{
			"g1": {CurrentLevel: 1, HighScore: 80, State: map[string]any{"coins": 2.0, "unlocked": true}},
		},
	}
	e, store := newTestEngine(t, remote)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Record{ContentID: "g1", CurrentLevel: 1, HighScore: 50, State: map[string]any{"coins": 5.0}}))

	first, ok := e.Load(ctx, "g1")
	require.True(t, ok)
	e.Wait()
	assert.Equal(t, int64(50), first.HighScore, "returned snapshot is not mutated")

	merged, ok := e.Load(ctx, "g1")
	require.True(t, ok)
	assert.Equal(t, int64(80), merged.HighScore)
	assert.Equal(t, map[string]any{"coins": 5.0, "unlocked": true}, merged.State)
}

func TestLoadMissingAndOffline(t *testing.T) {
	remote := &fakeRemote{}
	e, _ := newTestEngine(t, remote)

	_, ok := e.Load(context.Background(), "nope")
	assert.False(t, ok)
	e.Wait()

	_, err := e.Refresh(context.Background(), "nope")
	assert.ErrorIs(t, err, errOffline)
}

func TestUserIDIsStable(t *testing.T) {
	e, _ := newTestEngine(t, &fakeRemote{})
	ctx := context.Background()
	a, err := e.UserID(ctx)
	require.NoError(t, err)
	b, err := e.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^user_[0-9a-f-]{36}$`, a)
}

func TestAllIsOrdered(t *testing.T) {
	e, _ := newTestEngine(t, &fakeRemote{handle: offline})
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		_, err := e.RecordSession(ctx, id, 1, 1, nil, 0)
		require.NoError(t, err)
	}
	e.Wait()
	all, err := e.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ContentID)
	assert.Equal(t, "c", all[2].ContentID)
}
