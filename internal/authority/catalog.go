package authority

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Game is one catalog entry served by the feed endpoint.
type Game struct {
	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description" json:"description,omitempty"`
	Creator     string         `yaml:"creator" json:"creator,omitempty"`
	Category    string         `yaml:"category" json:"category,omitempty"`
	GameURL     string         `yaml:"game_url" json:"game_url"`
	Version     string         `yaml:"version" json:"version"`
	Settings    map[string]any `yaml:"settings" json:"settings,omitempty"`
	Config      map[string]any `yaml:"config" json:"config,omitempty"`
}

// Catalog is the ordered list of published games.
type Catalog struct {
	Games []Game `yaml:"games"`
}

// LoadCatalog reads a YAML catalog from path, or the built-in catalog when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Games))
	for i, g := range c.Games {
		if g.ID == "" || g.GameURL == "" {
			return nil, fmt.Errorf("catalog entry %d: id and game_url are required", i)
		}
		if seen[g.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, g.ID)
		}
		seen[g.ID] = true
	}
	return &c, nil
}

var errBadCursor = errors.New("invalid cursor")

// Page returns up to size games starting at cursor, and the cursor of the
// following page ("" on the last page).
func (c *Catalog) Page(cursor string, size int) ([]Game, string, error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(c.Games) {
			return nil, "", errBadCursor
		}
		start = n
	}
	end := min(start+size, len(c.Games))
	next := ""
	if end < len(c.Games) {
		next = strconv.Itoa(end)
	}
	return c.Games[start:end], next, nil
}
