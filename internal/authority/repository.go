package authority

import (
	"sync"
	"time"
)

// Progress is the server-side record of one user and game.
type Progress struct {
	CurrentLevel int            `json:"current_level"`
	HighScore    int64          `json:"high_score"`
	TotalScore   int64          `json:"total_score"`
	State        map[string]any `json:"state"`
	PlayCount    int64          `json:"play_count"`
	TotalTimeMs  int64          `json:"total_time_ms"`
	LastPlayedAt *time.Time     `json:"last_played_at"`
}

// Submission is one save or batch item after decoding.
type Submission struct {
	ContentID  string
	Level      int
	Score      int64
	BestScore  int64
	Sessions   int
	State      map[string]any
	DurationMs int64
}

// Repository is the in-memory progress, score and event store.
type Repository struct {
	mu       sync.RWMutex
	progress map[string]map[string]*Progress
	scores   map[string][]int64
	events   map[string]int
	now      func() time.Time
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		progress: make(map[string]map[string]*Progress),
		scores:   make(map[string][]int64),
		events:   make(map[string]int),
		now:      time.Now,
	}
}

// Get returns a copy of the stored record, or the zero default.
func (r *Repository) Get(userID, contentID string) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progress[userID][contentID]
	if !ok {
		return Progress{CurrentLevel: 1}, false
	}
	return p.clone(), true
}

// Apply merges a submission with the monotonic rule: level and high score
// are watermarks, the rest accumulate. A submission standing for several
// sessions carries its best single score and session count.
func (r *Repository) Apply(userID string, s Submission) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	byContent, ok := r.progress[userID]
	if !ok {
		byContent = make(map[string]*Progress)
		r.progress[userID] = byContent
	}
	p, ok := byContent[s.ContentID]
	if !ok {
		p = &Progress{CurrentLevel: 1}
		byContent[s.ContentID] = p
	}

	best := s.BestScore
	if best <= 0 {
		best = s.Score
	}
	sessions := int64(s.Sessions)
	if sessions <= 0 {
		sessions = 1
	}

	p.CurrentLevel = max(p.CurrentLevel, s.Level, 1)
	p.HighScore = max(p.HighScore, best, 0)
	p.TotalScore += max(s.Score, 0)
	p.PlayCount += sessions
	p.TotalTimeMs += max(s.DurationMs, 0)
	if len(s.State) > 0 {
		if p.State == nil {
			p.State = make(map[string]any, len(s.State))
		}
		for k, v := range s.State {
			p.State[k] = v
		}
	}
	now := r.now().UTC()
	p.LastPlayedAt = &now
	return p.clone()
}

// RecordScore stores score for contentID and returns its percentile among
// every score recorded so far, itself included.
func (r *Repository) RecordScore(contentID string, score int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[contentID] = append(r.scores[contentID], score)
	return Percentile(r.scores[contentID][:len(r.scores[contentID])-1], score)
}

// CountEvent counts an analytics event by type.
func (r *Repository) CountEvent(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventType]++
}

// Events returns the count of events of eventType.
func (r *Repository) Events(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events[eventType]
}

// Percentile ranks score against prior scores:
// 100 - floor(100 * strictlyLower / total), with score counted in total.
func Percentile(prior []int64, score int64) int {
	lower := 0
	for _, s := range prior {
		if s < score {
			lower++
		}
	}
	total := len(prior) + 1
	return 100 - (100*lower)/total
}

func (p *Progress) clone() Progress {
	out := *p
	if p.State != nil {
		out.State = make(map[string]any, len(p.State))
		for k, v := range p.State {
			out.State[k] = v
		}
	}
	if p.LastPlayedAt != nil {
		t := *p.LastPlayedAt
		out.LastPlayedAt = &t
	}
	return out
}
