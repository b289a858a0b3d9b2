package progress

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		start   Record
		session Session
		want    Record
	}{
		{
			name:    "first session",
			start:   NewRecord("g1"),
			session: Session{ContentID: "g1", Level: 3, Score: 40, DurationMs: 1000},
			want:    Record{ContentID: "g1", CurrentLevel: 3, HighScore: 40, TotalScore: 40, PlayCount: 1, TotalTimeMs: 1000},
		},
		{
			name:    "watermarks keep the maximum",
			start:   Record{ContentID: "g1", CurrentLevel: 5, HighScore: 90, TotalScore: 100, PlayCount: 2, TotalTimeMs: 10},
			session: Session{ContentID: "g1", Level: 2, Score: 10, DurationMs: 5},
			want:    Record{ContentID: "g1", CurrentLevel: 5, HighScore: 90, TotalScore: 110, PlayCount: 3, TotalTimeMs: 15},
		},
		{
			name:    "inputs are clamped",
			start:   NewRecord("g1"),
			session: Session{ContentID: "g1", Level: -4, Score: -10, DurationMs: -1},
			want:    Record{ContentID: "g1", CurrentLevel: 1, PlayCount: 1},
		},
		{
			name:    "state is shallow merged",
			start:   Record{ContentID: "g1", CurrentLevel: 1, State: map[string]any{"a": 1.0, "b": 2.0}},
			session: Session{ContentID: "g1", State: map[string]any{"b": 3.0, "c": true}},
			want:    Record{ContentID: "g1", CurrentLevel: 1, PlayCount: 1, State: map[string]any{"a": 1.0, "b": 3.0, "c": true}},
		},
		{
			name:    "nil state keeps the old state",
			start:   Record{ContentID: "g1", CurrentLevel: 1, State: map[string]any{"a": 1.0}},
			session: Session{ContentID: "g1"},
			want:    Record{ContentID: "g1", CurrentLevel: 1, PlayCount: 1, State: map[string]any{"a": 1.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.start.Apply(tt.session, t0)
			assert.Equal(t, t0, *got.LastPlayedAt)
			got.LastPlayedAt = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	start := Record{ContentID: "g1", CurrentLevel: 1, State: map[string]any{"a": 1.0}}
	_ = start.Apply(Session{ContentID: "g1", State: map[string]any{"a": 2.0}}, t0)
	assert.Equal(t, 1.0, start.State["a"])
}

func TestApplyMonotonicAndCommutative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sessions := make([]Session, 50)
	for i := range sessions {
		sessions[i] = Session{
			ContentID:  "g1",
			Level:      rng.Intn(20),
			Score:      rng.Int63n(1000),
			DurationMs: rng.Int63n(60000),
		}
	}

	forward := NewRecord("g1")
	for _, s := range sessions {
		next := forward.Apply(s, t0)
		assert.GreaterOrEqual(t, next.CurrentLevel, forward.CurrentLevel)
		assert.GreaterOrEqual(t, next.HighScore, forward.HighScore)
		assert.GreaterOrEqual(t, next.TotalScore, forward.TotalScore)
		assert.GreaterOrEqual(t, next.TotalTimeMs, forward.TotalTimeMs)
		forward = next
	}

	shuffled := NewRecord("g1")
	for _, i := range rng.Perm(len(sessions)) {
		shuffled = shuffled.Apply(sessions[i], t0)
	}
	assert.Equal(t, forward, shuffled)
}

func TestMerge(t *testing.T) {
	t1 := t0.Add(time.Hour)

	t.Run("remote fills state, local wins conflicts", func(t *testing.T) {
		local := Record{ContentID: "g1", CurrentLevel: 1, HighScore: 50, State: map[string]any{"coins": 5.0}}
		remote := Record{CurrentLevel: 1, HighScore: 80, State: map[string]any{"coins": 2.0, "unlocked": true}}

		got := Merge(local, true, remote)
		assert.Equal(t, int64(80), got.HighScore)
		assert.Equal(t, map[string]any{"coins": 5.0, "unlocked": true}, got.State)
		assert.Equal(t, "g1", got.ContentID)
	})

	t.Run("counters take the maximum", func(t *testing.T) {
		local := Record{ContentID: "g1", CurrentLevel: 4, TotalScore: 300, PlayCount: 3, TotalTimeMs: 900, LastPlayedAt: &t1}
		remote := Record{CurrentLevel: 6, TotalScore: 200, PlayCount: 5, TotalTimeMs: 100, LastPlayedAt: &t0}

		got := Merge(local, true, remote)
		assert.Equal(t, 6, got.CurrentLevel)
		assert.Equal(t, int64(300), got.TotalScore)
		assert.Equal(t, int64(5), got.PlayCount)
		assert.Equal(t, int64(900), got.TotalTimeMs)
		assert.Equal(t, t1, *got.LastPlayedAt)
		assert.Nil(t, got.State)
	})

	t.Run("no local record adopts remote", func(t *testing.T) {
		remote := Record{HighScore: 12, PlayCount: 2}
		got := Merge(NewRecord("g2"), false, remote)
		assert.Equal(t, Record{ContentID: "g2", CurrentLevel: 1, HighScore: 12, PlayCount: 2}, got)
	})
}

func TestGroup(t *testing.T) {
	queue := []Mutation{
		{Seq: 1, Session: Session{ContentID: "a", Level: 2, Score: 10, DurationMs: 100, State: map[string]any{"x": 1.0}}},
		{Seq: 2, Session: Session{ContentID: "b", Level: 1, Score: 5}},
		{Seq: 3, Session: Session{ContentID: "a", Level: 1, Score: 30, DurationMs: 50, State: map[string]any{"x": 2.0, "y": 3.0}}},
	}

	items := Group(queue)
	assert.Equal(t, []BatchItem{
		{ContentID: "a", Level: 2, Score: 40, BestScore: 30, Sessions: 2, DurationMs: 150, State: map[string]any{"x": 2.0, "y": 3.0}},
		{ContentID: "b", Level: 1, Score: 5, BestScore: 5, Sessions: 1},
	}, items)
}
