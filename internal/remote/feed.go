package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/feed"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/httpclient"
)

// Feed lists feed items from the authority.
type Feed struct {
	client *httpclient.Client
}

var _ feed.Source = (*Feed)(nil)

// NewFeed creates a feed source.
func NewFeed(client *httpclient.Client) *Feed {
	return &Feed{client: client}
}

// Page fetches one page. Relative game URLs are resolved against the
// client base URL.
func (f *Feed) Page(ctx context.Context, cursor string) (feed.Page, error) {
	resp, err := f.client.Do(ctx, "feed", func(r *resty.Request) (*resty.Response, error) {
		if cursor != "" {
			r.SetQueryParam("cursor", cursor)
		}
		return r.Get("/api/v1/feed")
	})
	if err != nil {
		return feed.Page{}, err
	}
	env, err := decode(resp)
	if err != nil {
		return feed.Page{}, fmt.Errorf("feed: %w", err)
	}

	var page FeedPageDTO
	data := strings.TrimSpace(string(env.Data))
	if strings.HasPrefix(data, "[") {
		err = unmarshal(env.Data, &page.Data)
	} else {
		err = unmarshal(env.Data, &page)
	}
	if err != nil {
		return feed.Page{}, fmt.Errorf("feed: %w", err)
	}

	base, err := url.Parse(f.client.BaseURL())
	if err != nil {
		return feed.Page{}, fmt.Errorf("feed: base url: %w", err)
	}
	out := feed.Page{NextCursor: page.NextCursor, Items: make([]feed.Item, 0, len(page.Data))}
	for _, d := range page.Data {
		out.Items = append(out.Items, feed.Item{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Creator:     d.Creator,
			Category:    category(d),
			URL:         resolve(base, d.GameURL),
			Version:     d.Version,
			Settings:    d.Settings,
			Config:      d.Config,
		})
	}
	return out, nil
}

// All follows cursors until the listing is exhausted or limit items were
// collected. A limit of zero or less means no limit.
func (f *Feed) All(ctx context.Context, limit int) ([]feed.Item, error) {
	var (
		items  []feed.Item
		cursor string
		seen   = map[string]bool{}
	)
	for {
		page, err := f.Page(ctx, cursor)
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if page.NextCursor == "" || seen[page.NextCursor] {
			return items, nil
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}
}

func category(d FeedItemDTO) string {
	if d.Category != "" {
		return d.Category
	}
	if cats, ok := d.Settings["categories"].([]any); ok && len(cats) > 0 {
		if c, ok := cats[0].(string); ok && c != "" {
			return c
		}
	}
	return "Game"
}

func resolve(base *url.URL, raw string) string {
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	return base.ResolveReference(ref).String()
}
