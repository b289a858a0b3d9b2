package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTML(t *testing.T) {
	fetcher := mapFetcher{
		"https://cdn.test/assets/a.js": "var a = 1;",
	}
	html := `<!doctype html><html><head><base href="https://cdn.test/assets/">
		<script src="a.js"></script>
		<script type="module">import x from './x.js'</script>
		<script type="text/template"><div></div></script>
	</head><body><script>  var b = 2;  </script><script>   </script></body></html>`

	sources, err := Extract(context.Background(), fetcher, "https://cdn.test/games/1/index.html", []byte(html))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://cdn.test/assets/a.js", sources[0].Name)
	assert.Equal(t, "var a = 1;", sources[0].Code)
	assert.Contains(t, sources[1].Code, "var b = 2;")
}

func TestExtractMissingExternalScript(t *testing.T) {
	html := `<html><head><script src="gone.js"></script></head></html>`
	_, err := Extract(context.Background(), mapFetcher{}, "https://cdn.test/index.html", []byte(html))
	assert.Error(t, err)
}

func TestExtractPlainScript(t *testing.T) {
	sources, err := Extract(context.Background(), mapFetcher{}, "https://cdn.test/game.js", []byte("console.log('hi')"))
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://cdn.test/game.js", sources[0].Name)
}
