package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/httpclient"
)

// Progress is the progress authority client.
type Progress struct {
	client *httpclient.Client
}

var _ progress.Remote = (*Progress)(nil)

// NewProgress creates a progress client.
func NewProgress(client *httpclient.Client) *Progress {
	return &Progress{client: client}
}

// Fetch returns the remote record. A missing record, including HTTP 404, is
// the zero default.
func (p *Progress) Fetch(ctx context.Context, userID, contentID string) (progress.Record, error) {
	resp, err := p.client.Do(ctx, "progress_get", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("user_uuid", userID).
			Get("/api/v1/progress/" + url.PathEscape(contentID))
	})
	if err != nil {
		return progress.Record{}, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return progress.NewRecord(contentID), nil
	}

	env, err := decode(resp)
	if err != nil {
		return progress.Record{}, fmt.Errorf("fetch progress %s: %w", contentID, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return progress.NewRecord(contentID), nil
	}
	var dto ProgressDTO
	if err := unmarshal(env.Data, &dto); err != nil {
		return progress.Record{}, fmt.Errorf("fetch progress %s: %w", contentID, err)
	}
	return dto.Record(contentID), nil
}

// Save submits one session and returns the remote watermarks.
func (p *Progress) Save(ctx context.Context, userID string, s progress.Session) (progress.Record, error) {
	body, err := marshal(SaveRequest{
		UserID:     userID,
		ContentID:  s.ContentID,
		Level:      s.Level,
		Score:      s.Score,
		State:      s.State,
		DurationMs: s.DurationMs,
	})
	if err != nil {
		return progress.Record{}, err
	}
	resp, err := p.client.Do(ctx, "progress_save", func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(body).Post("/api/v1/progress/save")
	})
	if err != nil {
		return progress.Record{}, err
	}
	env, err := decode(resp)
	if err != nil {
		return progress.Record{}, fmt.Errorf("save progress %s: %w", s.ContentID, err)
	}
	var dto ProgressDTO
	if err := unmarshal(env.Data, &dto); err != nil {
		return progress.Record{}, fmt.Errorf("save progress %s: %w", s.ContentID, err)
	}
	return dto.Record(s.ContentID), nil
}

// SaveBatch submits grouped sessions. Per-item rejections are reported in
// the results, not as an error.
func (p *Progress) SaveBatch(ctx context.Context, userID string, items []progress.BatchItem) ([]progress.BatchResult, error) {
	req := BatchRequest{UserID: userID, Progress: make([]BatchItemDTO, len(items))}
	for i, it := range items {
		req.Progress[i] = BatchItemDTO{
			ContentID:  it.ContentID,
			Level:      it.Level,
			Score:      it.Score,
			BestScore:  it.BestScore,
			Sessions:   it.Sessions,
			State:      it.State,
			DurationMs: it.DurationMs,
		}
	}
	body, err := marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(ctx, "progress_batch", func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").SetBody(body).Post("/api/v1/progress/batch")
	})
	if err != nil {
		return nil, err
	}
	env, err := decode(resp)
	if err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	var dtos []BatchResultDTO
	if err := unmarshal(env.Data, &dtos); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}

	out := make([]progress.BatchResult, len(dtos))
	for i, d := range dtos {
		out[i] = progress.BatchResult{
			ContentID: d.ContentID,
			OK:        d.Status == "success",
			HighScore: d.HighScore,
			Message:   d.Message,
		}
	}
	return out, nil
}
