package progress

import (
	"time"

	"github.com/Kh3rwa1/ArcadiaApp/internal/shared/id"
)

// Record is the per-user, per-content progress summary.
type Record struct {
	ContentID    string
	CurrentLevel int
	HighScore    int64
	TotalScore   int64
	State        map[string]any
	PlayCount    int64
	TotalTimeMs  int64
	LastPlayedAt *time.Time
}

// NewRecord returns the record of content never played.
func NewRecord(contentID string) Record {
	return Record{ContentID: contentID, CurrentLevel: 1}
}

// Session is one reported play increment.
type Session struct {
	ContentID  string
	Level      int
	Score      int64
	State      map[string]any
	DurationMs int64
}

// normalize clamps untrusted numbers into the record domain.
func (s Session) normalize() Session {
	if s.Level < 1 {
		s.Level = 1
	}
	if s.Score < 0 {
		s.Score = 0
	}
	if s.DurationMs < 0 {
		s.DurationMs = 0
	}
	s.State = cloneMap(s.State)
	return s
}

// Mutation is one queued session awaiting remote acknowledgement.
type Mutation struct {
	Seq        int64
	ID         id.MutationID
	Session    Session
	EnqueuedAt time.Time
}

// Clone returns a copy sharing no mutable state with r.
func (r Record) Clone() Record {
	out := r
	out.State = cloneMap(r.State)
	if r.LastPlayedAt != nil {
		t := *r.LastPlayedAt
		out.LastPlayedAt = &t
	}
	return out
}

// Apply folds a session into r: watermarks take the maximum, additive
// counters accumulate and state is shallow-merged with new keys winning.
func (r Record) Apply(s Session, now time.Time) Record {
	s = s.normalize()
	out := r.Clone()
	if out.CurrentLevel < 1 {
		out.CurrentLevel = 1
	}

	out.CurrentLevel = max(out.CurrentLevel, s.Level)
	out.HighScore = max(out.HighScore, s.Score)
	out.TotalScore += s.Score
	out.PlayCount++
	out.TotalTimeMs += s.DurationMs
	if s.State != nil {
		out.State = shallowMerge(out.State, s.State)
	}
	t := now.UTC()
	out.LastPlayedAt = &t
	return out
}

// Merge combines a local record with the remote copy. Every counter takes
// the maximum, since both sides may already include the same sessions and
// summing would count them twice. State keys present locally win.
func Merge(local Record, hasLocal bool, remote Record) Record {
	if !hasLocal {
		out := remote.Clone()
		out.ContentID = local.ContentID
		if out.CurrentLevel < 1 {
			out.CurrentLevel = 1
		}
		return out
	}

	out := local.Clone()
	out.CurrentLevel = max(local.CurrentLevel, remote.CurrentLevel, 1)
	out.HighScore = max(local.HighScore, remote.HighScore)
	out.TotalScore = max(local.TotalScore, remote.TotalScore)
	out.PlayCount = max(local.PlayCount, remote.PlayCount)
	out.TotalTimeMs = max(local.TotalTimeMs, remote.TotalTimeMs)
	if local.State != nil || remote.State != nil {
		out.State = shallowMerge(remote.State, local.State)
	}
	out.LastPlayedAt = latest(local.LastPlayedAt, remote.LastPlayedAt)
	return out
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		t := *b
		return &t
	case b == nil || !b.After(*a):
		t := *a
		return &t
	default:
		t := *b
		return &t
	}
}

// shallowMerge returns base overlaid with top. Neither input is modified.
func shallowMerge(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range top {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
