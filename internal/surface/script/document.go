package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedContent reports an entry document that is neither HTML nor
// script text.
var ErrUnsupportedContent = errors.New("script: unsupported content type")

// Source is one script to evaluate, in document order.
type Source struct {
	Name string
	Code string
}

// Extract turns a fetched entry document into the scripts it runs. HTML
// documents contribute their inline and external classic scripts; plain
// script documents are used as-is.
func Extract(ctx context.Context, f Fetcher, entryURL string, body []byte) ([]Source, error) {
	mt := mimetype.Detect(body)

	switch {
	case mt.Is("text/html"):
		return fromHTML(ctx, f, entryURL, body)
	case isScriptURL(entryURL), mt.Is("text/javascript"), mt.Is("application/javascript"), mt.Is("text/plain"):
		return []Source{{Name: entryURL, Code: string(body)}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, mt.String())
}

func fromHTML(ctx context.Context, f Fetcher, entryURL string, body []byte) ([]Source, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("script: parse html: %w", err)
	}
	base, err := url.Parse(entryURL)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", entryURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	var (
		sources []Source
		failure error
	)
	doc.Find("script").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if !classicScript(sel.AttrOr("type", "")) {
			return true
		}
		if src, ok := sel.Attr("src"); ok && strings.TrimSpace(src) != "" {
			ref, err := base.Parse(strings.TrimSpace(src))
			if err != nil {
				failure = fmt.Errorf("script: bad src %q: %w", src, err)
				return false
			}
			code, err := f.Fetch(ctx, ref.String())
			if err != nil {
				failure = fmt.Errorf("script: fetch %s: %w", ref.Redacted(), err)
				return false
			}
			sources = append(sources, Source{Name: ref.String(), Code: string(code)})
			return true
		}
		if code := sel.Text(); strings.TrimSpace(code) != "" {
			sources = append(sources, Source{Name: fmt.Sprintf("%s#inline-%d", entryURL, i), Code: code})
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	return sources, nil
}

func classicScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "application/x-javascript":
		return true
	}
	return false
}

func isScriptURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}
