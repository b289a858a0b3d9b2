package telemetry

import "context"

// Analytics event types. These are distinct from bridge action names.
const (
	EventImpression   = "impression"
	EventStart        = "start"
	EventRestart      = "restart"
	EventCrash        = "crash"
	EventFlowComplete = "flow_complete"
	EventScoreUpdate  = "score_update"
)

// Event is one analytics submission.
type Event struct {
	ContentID  string
	UserID     string
	Type       string
	DurationMs int64
	Metadata   map[string]any
}

// Sink accepts analytics events. Track is fire-and-forget; ScoreUpdate
// returns the percentile of the submitted score.
type Sink interface {
	Track(ctx context.Context, ev Event)
	ScoreUpdate(ctx context.Context, ev Event) (int, error)
}
