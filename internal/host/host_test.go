package host

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kh3rwa1/ArcadiaApp/internal/authority"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/feed"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/progress"
	"github.com/Kh3rwa1/ArcadiaApp/internal/domain/telemetry"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// game reports ready on load and plays one round scoring score on its
// first resume.
const game = `<!DOCTYPE html><html><body><script>
function post(action, payload, type) {
	window.ReactNativeWebView.postMessage(JSON.stringify({
		version: '1.1', type: type || 'GAMEPLAY', action: action, payload: payload || {}
	}));
}
var played = false;
window.addEventListener('ArcadiaBridge', function (e) {
	var d = e.detail || {};
	if (d.action === 'LIFECYCLE_RESUME' && !played) {
		played = true;
		post('FLOW_START');
		post('FLOW_COMPLETE', { score: %d, level: 2, duration_ms: 1500, status: 'win' });
	}
});
window.addEventListener('load', function () {
	post('HEARTBEAT_READY', { type: 'game', engine: 'canvas' }, 'LIFECYCLE');
});
</script></body></html>`

type env struct {
	host *Host
	hc   *Context
	repo *authority.Repository
}

func startEnv(t *testing.T, scores ...int) *env {
	t.Helper()
	dir := t.TempDir()
	var catalog strings.Builder
	catalog.WriteString("games:\n")
	for i, score := range scores {
		gameID := fmt.Sprintf("g%d", i)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "games", gameID), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "games", gameID, "index.html"), []byte(fmt.Sprintf(game, score)), 0o644))
		category := "Arcade"
		if i%2 == 1 {
			category = "Puzzle"
		}
		fmt.Fprintf(&catalog, "  - id: %s\n    title: Game %d\n    category: %s\n    game_url: /games/%s/index.html\n    version: v1\n", gameID, i, category, gameID)
	}
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalog.String()), 0o644))

	srv, err := authority.New(config.AuthorityConfig{
		Catalog:  catalogPath,
		GamesDir: filepath.Join(dir, "games"),
		PageSize: 2,
	}, true, nil, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.API.BaseURL = ts.URL
	cfg.API.Retries = 0
	cfg.Sync.Interval = 0
	cfg.Analytics.BatchSize = 1
	cfg.Feed.LoadTimeout = 5 * time.Second

	hc := NewContextWithStore(cfg, progress.NewMemoryStore(), nil, nil)
	t.Cleanup(func() { _ = hc.Close() })
	return &env{host: New(hc, nil), hc: hc, repo: srv.Repository()}
}

func (e *env) run(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.host.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func (e *env) remote(t *testing.T, contentID string) func() (authority.Progress, bool) {
	userID, err := e.hc.Engine.UserID(context.Background())
	require.NoError(t, err)
	return func() (authority.Progress, bool) { return e.repo.Get(userID, contentID) }
}

func TestHostPlaysAndSyncsActiveCard(t *testing.T) {
	e := startEnv(t, 20, 35, 5)
	ctx := e.run(t)

	n, err := e.host.LoadFeed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first := e.remote(t, "g0")
	require.Eventually(t, func() bool {
		p, ok := first()
		return ok && p.HighScore == 20
	}, 5*time.Second, 20*time.Millisecond)

	p, _ := first()
	assert.Equal(t, 2, p.CurrentLevel)
	assert.Equal(t, int64(1), p.PlayCount)
	assert.Equal(t, int64(1500), p.TotalTimeMs)

	// The preloaded neighbour stays paused until it becomes active.
	_, ok := e.remote(t, "g1")()
	assert.False(t, ok)

	require.True(t, e.host.Do(func(s *feed.Supervisor) { _ = s.Next() }))
	second := e.remote(t, "g1")
	require.Eventually(t, func() bool {
		p, ok := second()
		return ok && p.HighScore == 35
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return e.repo.Events(telemetry.EventFlowComplete) == 2 &&
			e.repo.Events(telemetry.EventScoreUpdate) == 2 &&
			e.repo.Events(telemetry.EventImpression) == 1
	}, 5*time.Second, 20*time.Millisecond)

	pending, err := e.hc.Engine.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLoadFeedFiltersCategory(t *testing.T) {
	e := startEnv(t, 1, 2, 3, 4, 5)
	ctx := e.run(t)

	n, err := e.host.LoadFeed(ctx, "puzzle")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoadFeedMergesRemoteProgress(t *testing.T) {
	e := startEnv(t, 1, 2)
	ctx := e.run(t)
	userID, err := e.hc.Engine.UserID(ctx)
	require.NoError(t, err)
	e.repo.Apply(userID, authority.Submission{
		ContentID: "g1",
		Level:     4,
		Score:     70,
		Sessions:  1,
		State:     map[string]any{"coins": 9.0},
	})

	_, err = e.host.LoadFeed(ctx, "")
	require.NoError(t, err)

	rec, ok, err := e.hc.Store.Get(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, rec.CurrentLevel)
	assert.Equal(t, int64(70), rec.HighScore)

	got := make(chan []feed.Item, 1)
	require.True(t, e.host.Do(func(s *feed.Supervisor) { got <- s.Items() }))
	items := <-got
	require.Len(t, items, 2)
	assert.Nil(t, items[0].Config["savedState"])
	assert.Equal(t, map[string]any{"coins": 9.0}, items[1].Config["savedState"])
}

func TestLoadFeedUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = "http://127.0.0.1:1"
	cfg.API.Retries = 0
	cfg.API.Timeout = 200 * time.Millisecond
	hc := NewContextWithStore(cfg, progress.NewMemoryStore(), nil, nil)
	defer hc.Close()

	_, err := New(hc, nil).LoadFeed(context.Background(), "")
	assert.Error(t, err)
}

func TestWithSavedState(t *testing.T) {
	items := []feed.Item{
		{ID: "a", Config: map[string]any{"difficulty": "hard"}},
		{ID: "b"},
	}
	records := []progress.Record{
		{ContentID: "a", State: map[string]any{"coins": 3.0}},
		{ContentID: "c", State: map[string]any{"coins": 1.0}},
	}

	got := withSavedState(items, records)

	assert.Equal(t, map[string]any{"difficulty": "hard", "savedState": map[string]any{"coins": 3.0}}, got[0].Config)
	assert.Nil(t, got[1].Config)
	assert.Equal(t, map[string]any{"difficulty": "hard"}, items[0].Config)
}
