package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/telemetry"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/httpclient"
)

// Analytics buffers events and submits them in batches. Score updates are
// sent immediately because the caller waits for the percentile.
type Analytics struct {
	client    *httpclient.Client
	logger    *zap.Logger
	batchSize int
	now       func() time.Time

	mu  sync.Mutex
	buf []EventDTO
}

var _ telemetry.Sink = (*Analytics)(nil)

// NewAnalytics creates an analytics sink flushing every batchSize events.
func NewAnalytics(client *httpclient.Client, batchSize int, logger *zap.Logger) *Analytics {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analytics{
		client:    client,
		logger:    logger.Named("analytics"),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Track queues ev and sends the buffer once it is full. Failed batches are
// dropped after logging.
func (a *Analytics) Track(ctx context.Context, ev telemetry.Event) {
	a.mu.Lock()
	a.buf = append(a.buf, a.dto(ev))
	var batch []EventDTO
	if len(a.buf) >= a.batchSize {
		batch, a.buf = a.buf, nil
	}
	a.mu.Unlock()

	if batch != nil {
		if err := a.send(ctx, batch); err != nil {
			a.logger.Warn("analytics batch dropped", zap.Int("events", len(batch)), zap.Error(err))
		}
	}
}

// Flush sends whatever is buffered.
func (a *Analytics) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return a.send(ctx, batch)
}

// Buffered reports the number of queued events.
func (a *Analytics) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// ScoreUpdate submits a score_update event and returns its percentile.
func (a *Analytics) ScoreUpdate(ctx context.Context, ev telemetry.Event) (int, error) {
	ev.Type = telemetry.EventScoreUpdate
	body, err := marshal(a.dto(ev))
	if err != nil {
		return 0, err
	}
	resp, err := a.client.Do(ctx, "analytics_event", func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(body).Post("/api/v1/analytics/event")
	})
	if err != nil {
		return 0, err
	}
	env, err := decode(resp, "logged", "success")
	if err != nil {
		return 0, fmt.Errorf("score update: %w", err)
	}
	if env.Percentile == nil {
		return 0, fmt.Errorf("score update: %w: no percentile", ErrUnexpectedStatus)
	}
	return *env.Percentile, nil
}

func (a *Analytics) send(ctx context.Context, batch []EventDTO) error {
	body, err := marshal(EventBatch{Events: batch})
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, "analytics_batch", func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(body).Post("/api/v1/analytics/batch")
	})
	if err != nil {
		return err
	}
	if _, err := decode(resp, "logged", "success"); err != nil {
		return fmt.Errorf("analytics batch: %w", err)
	}
	return nil
}

func (a *Analytics) dto(ev telemetry.Event) EventDTO {
	return EventDTO{
		ContentID:  ev.ContentID,
		UserID:     ev.UserID,
		Type:       ev.Type,
		DurationMs: ev.DurationMs,
		Metadata:   ev.Metadata,
		Timestamp:  a.now().UnixMilli(),
	}
}
