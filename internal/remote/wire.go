package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
)

// ErrUnexpectedStatus is returned for non-success HTTP statuses and for
// envelopes whose status field is not a success value.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// envelope is the authority's response wrapper.
type envelope struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	Percentile *int            `json:"percentile,omitempty"`
}

// ProgressDTO is the wire form of a progress record.
type ProgressDTO struct {
	CurrentLevel int            `json:"current_level"`
	HighScore    int64          `json:"high_score"`
	TotalScore   int64          `json:"total_score"`
	State        map[string]any `json:"state"`
	PlayCount    int64          `json:"play_count"`
	TotalTimeMs  int64          `json:"total_time_ms"`
	LastPlayedAt *time.Time     `json:"last_played_at"`
}

// Record converts the DTO for contentID.
func (d ProgressDTO) Record(contentID string) progress.Record {
	rec := progress.Record{
		ContentID:    contentID,
		CurrentLevel: max(d.CurrentLevel, 1),
		HighScore:    max(d.HighScore, 0),
		TotalScore:   max(d.TotalScore, 0),
		State:        d.State,
		PlayCount:    max(d.PlayCount, 0),
		TotalTimeMs:  max(d.TotalTimeMs, 0),
	}
	if d.LastPlayedAt != nil {
		t := d.LastPlayedAt.UTC()
		rec.LastPlayedAt = &t
	}
	return rec
}

// NewProgressDTO converts a record to its wire form.
func NewProgressDTO(rec progress.Record) ProgressDTO {
	return ProgressDTO{
		CurrentLevel: rec.CurrentLevel,
		HighScore:    rec.HighScore,
		TotalScore:   rec.TotalScore,
		State:        rec.State,
		PlayCount:    rec.PlayCount,
		TotalTimeMs:  rec.TotalTimeMs,
		LastPlayedAt: rec.LastPlayedAt,
	}
}

// SaveRequest is the body of POST /progress/save.
type SaveRequest struct {
	UserID     string         `json:"user_uuid"`
	ContentID  string         `json:"game_uuid"`
	Level      int            `json:"level"`
	Score      int64          `json:"score"`
	State      map[string]any `json:"state"`
	DurationMs int64          `json:"duration_ms"`
}

// BatchItemDTO is one entry of POST /progress/batch.
type BatchItemDTO struct {
	ContentID  string         `json:"game_uuid"`
	Level      int            `json:"level"`
	Score      int64          `json:"score"`
	BestScore  int64          `json:"best_score,omitempty"`
	Sessions   int            `json:"sessions,omitempty"`
	State      map[string]any `json:"state"`
	DurationMs int64          `json:"duration_ms"`
}

// BatchRequest is the body of POST /progress/batch.
type BatchRequest struct {
	UserID   string         `json:"user_uuid"`
	Progress []BatchItemDTO `json:"progress"`
}

// BatchResultDTO is one entry of the batch response.
type BatchResultDTO struct {
	ContentID string `json:"game_uuid"`
	Status    string `json:"status"`
	HighScore int64  `json:"high_score"`
	Message   string `json:"message,omitempty"`
}

// EventDTO is the wire form of an analytics event.
type EventDTO struct {
	ContentID  string         `json:"game_uuid"`
	UserID     string         `json:"user_uuid"`
	Type       string         `json:"event_type"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  int64          `json:"timestamp,omitempty"`
}

// EventBatch is the body of POST /analytics/batch.
type EventBatch struct {
	Events []EventDTO `json:"events"`
}

// FeedItemDTO is the wire form of a feed entry.
type FeedItemDTO struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Creator     string         `json:"creator,omitempty"`
	Category    string         `json:"category,omitempty"`
	GameURL     string         `json:"game_url"`
	Version     string         `json:"version"`
	Settings    map[string]any `json:"settings,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// FeedPageDTO is the paginated form of the feed data.
type FeedPageDTO struct {
	Data       []FeedItemDTO `json:"data"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// decode checks the HTTP status and unwraps the response envelope.
func decode(resp *resty.Response, want ...string) (envelope, error) {
	var env envelope
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return env, fmt.Errorf("%w: http %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	if err := sonic.ConfigStd.Unmarshal(resp.Body(), &env); err != nil {
		return env, fmt.Errorf("decode response: %w", err)
	}
	if len(want) == 0 {
		want = []string{"success"}
	}
	for _, w := range want {
		if env.Status == w {
			return env, nil
		}
	}
	return env, fmt.Errorf("%w: %q %s", ErrUnexpectedStatus, env.Status, env.Message)
}

func marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}
