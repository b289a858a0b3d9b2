package feed

import (
	"context"
	"strings"
)

// Item is one card in the feed.
type Item struct {
	ID          string
	Title       string
	Description string
	Creator     string
	Category    string
	URL         string
	Version     string
	Settings    map[string]any
	Config      map[string]any
}

// Page is one cursor page of the feed listing.
type Page struct {
	Items      []Item
	NextCursor string
}

// Source lists feed items.
type Source interface {
	Page(ctx context.Context, cursor string) (Page, error)
}

// FilterCategory returns the items in category, matched case-insensitively.
// An empty category or "all" returns items unchanged.
func FilterCategory(items []Item, category string) []Item {
	if category == "" || strings.EqualFold(category, "all") {
		return items
	}
	var out []Item
	for _, it := range items {
		if strings.EqualFold(it.Category, category) {
			out = append(out, it)
		}
	}
	return out
}
