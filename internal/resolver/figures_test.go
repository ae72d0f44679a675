package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractFigures(t *testing.T) {
	r := newTestResolver()

	t.Run("classifies and ranks method before result", func(t *testing.T) {
		html := `<html><body>
			<figure>
				<img src="https://cdn.example.org/fig2.png">
				<figcaption>Figure 2: Accuracy comparison against baselines.</figcaption>
			</figure>
			<figure>
				<img src="https://cdn.example.org/fig1.png">
				<figcaption>Figure 1: Overall architecture of the proposed framework.</figcaption>
			</figure>
		</body></html>`

		figures := r.ExtractFigures(html, nil, 6)
		require.Len(t, figures, 2)
		assert.Equal(t, domain.FigureKindMethod, figures[0].Kind)
		assert.Contains(t, figures[0].Caption, "architecture")
		assert.Equal(t, domain.FigureKindResult, figures[1].Kind)
	})

	t.Run("filters decorative assets", func(t *testing.T) {
		html := `<html><body>
			<img src="https://cdn.example.org/site-logo.png" alt="logo">
			<img src="https://cdn.example.org/icon-share.svg">
			<img src="https://cdn.example.org/tiny.png" width="16" height="16">
			<img src="https://cdn.example.org/fig1.png" alt="Model pipeline diagram">
		</body></html>`

		figures := r.ExtractFigures(html, nil, 6)
		require.Len(t, figures, 1)
		assert.Equal(t, "https://cdn.example.org/fig1.png", figures[0].URL)
		assert.Equal(t, domain.FigureKindMethod, figures[0].Kind)
	})

	t.Run("deduplicates and caps at max", func(t *testing.T) {
		html := `<html><body>
			<figure><img src="/a.png"><figcaption>Architecture</figcaption></figure>
			<figure><img src="/a.png"><figcaption>Architecture again</figcaption></figure>
			<figure><img src="/b.png"><figcaption>Results curve</figcaption></figure>
			<figure><img src="/c.png"><figcaption>Appendix</figcaption></figure>
		</body></html>`

		figures := r.ExtractFigures(html, mustParseURL(t, "https://example.org/paper"), 2)
		require.Len(t, figures, 2)
		assert.Equal(t, "https://example.org/a.png", figures[0].URL)
		assert.Equal(t, "https://example.org/b.png", figures[1].URL)
	})

	t.Run("extracts markdown image references", func(t *testing.T) {
		md := "Some text\n\n![Figure 1: training pipeline overview](https://cdn.example.org/fig.png)\n"

		figures := r.ExtractFigures(md, nil, 6)
		require.Len(t, figures, 1)
		assert.Equal(t, "https://cdn.example.org/fig.png", figures[0].URL)
		assert.Equal(t, domain.FigureKindMethod, figures[0].Kind)
	})

	t.Run("falls back to social preview image", func(t *testing.T) {
		html := `<html><head>
			<meta property="og:image" content="https://cdn.example.org/preview.png">
		</head><body><p>No figures here.</p></body></html>`

		figures := r.ExtractFigures(html, nil, 6)
		require.Len(t, figures, 1)
		assert.Equal(t, "https://cdn.example.org/preview.png", figures[0].URL)
		assert.Equal(t, domain.FigureKindUnknown, figures[0].Kind)
	})

	t.Run("garbage input yields no figures", func(t *testing.T) {
		assert.Empty(t, r.ExtractFigures("not html at all", nil, 6))
	})
}

func TestFetchFigures(t *testing.T) {
	t.Run("fetches landing page and extracts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>
				<figure><img src="/fig1.png"><figcaption>System overview</figcaption></figure>
			</body></html>`))
		}))
		defer server.Close()

		r := newTestResolver()
		figures := r.FetchFigures(context.Background(), "doi:10.1000/x", server.URL)
		require.Len(t, figures, 1)
		assert.Equal(t, server.URL+"/fig1.png", figures[0].URL)
	})

	t.Run("unreachable page degrades to empty", func(t *testing.T) {
		r := newTestResolver()
		assert.Empty(t, r.FetchFigures(context.Background(), "doi:10.1000/x", "http://127.0.0.1:1/none"))
	})

	t.Run("no identifier rule and no landing page", func(t *testing.T) {
		r := newTestResolver()
		assert.Empty(t, r.FetchFigures(context.Background(), "pmid:42", ""))
	})
}
