package progress

import (
	"context"
	"errors"
)

// ErrPartialBatch is returned by Flush when the remote rejects any item.
var ErrPartialBatch = errors.New("remote accepted only part of the batch")

// ErrFlushInFlight is returned by Flush while another flush runs.
var ErrFlushInFlight = errors.New("flush already in flight")

// BatchItem is one per-content aggregate of queued sessions.
type BatchItem struct {
	ContentID  string
	Level      int
	Score      int64
	BestScore  int64
	Sessions   int
	State      map[string]any
	DurationMs int64
}

// BatchResult is the remote acknowledgement of one BatchItem.
type BatchResult struct {
	ContentID string
	OK        bool
	HighScore int64
	Message   string
}

// Remote is the progress authority.
type Remote interface {
	Fetch(ctx context.Context, userID, contentID string) (Record, error)
	SaveBatch(ctx context.Context, userID string, items []BatchItem) ([]BatchResult, error)
}

// Group folds the queue into one item per content, in first-seen order.
func Group(queue []Mutation) []BatchItem {
	index := make(map[string]int)
	var items []BatchItem
	for _, m := range queue {
		s := m.Session
		i, ok := index[s.ContentID]
		if !ok {
			i = len(items)
			index[s.ContentID] = i
			items = append(items, BatchItem{ContentID: s.ContentID})
		}
		it := &items[i]
		it.Level = max(it.Level, s.Level)
		it.Score += s.Score
		it.BestScore = max(it.BestScore, s.Score)
		it.Sessions++
		it.DurationMs += s.DurationMs
		if s.State != nil {
			it.State = shallowMerge(it.State, s.State)
		}
	}
	for i := range items {
		if len(items[i].State) == 0 {
			items[i].State = nil
		}
	}
	return items
}
