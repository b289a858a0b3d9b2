package script

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/httpclient"
)

// maxDocumentBytes caps any single fetched entry document or script.
const maxDocumentBytes = 8 << 20

var errTooLarge = errors.New("script: document too large")

// Fetcher retrieves content bytes by absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher fetches http(s) URLs through the shared client and reads
// file URLs from disk.
type HTTPFetcher struct {
	Client *httpclient.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", rawURL, err)
	}

	if u.Scheme == "file" {
		info, err := os.Stat(u.Path)
		if err != nil {
			return nil, err
		}
		if info.Size() > maxDocumentBytes {
			return nil, errTooLarge
		}
		return os.ReadFile(u.Path)
	}

	if f.Client == nil {
		return nil, errors.New("script: no http client configured")
	}
	resp, err := f.Client.Do(ctx, "surface_fetch", func(r *resty.Request) (*resty.Response, error) {
		return r.Get(u.String())
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("script: fetch %s: status %d", u.Redacted(), resp.StatusCode())
	}
	body := resp.Body()
	if len(body) > maxDocumentBytes {
		return nil, errTooLarge
	}
	return body, nil
}
