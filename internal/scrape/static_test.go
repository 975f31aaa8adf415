package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/core"
)

const samplePage = `<html><head><title>Acme Corp - About Us</title></head>
<body><main><p>Acme Corporation designs industrial anvils.</p></main></body></html>`

func newTestScraper(retries int) *StaticScraper {
	s := NewStaticScraper(Config{Timeout: 2 * time.Second, MaxRetries: retries})
	s.backoff = func(int) time.Duration { return time.Millisecond }
	return s
}

func TestScrapeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := newTestScraper(2).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp - About Us", page.Title)
	assert.Contains(t, page.Text, "industrial anvils")
	assert.Equal(t, core.ContentWebsite, page.Kind)
	assert.False(t, page.FetchedAt.IsZero())
}

func TestScrapeInvalidURL(t *testing.T) {
	s := newTestScraper(2)
	for _, bad := range []string{"", "ftp://example.com/x", "not a url", "http://"} {
		_, err := s.Scrape(context.Background(), bad)
		assert.True(t, errors.Is(err, core.ErrInvalidInput), "url %q", bad)
	}
}

func TestScrapeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := newTestScraper(2).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, page.Text, "Acme")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestScrapeExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestScraper(2).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNetwork))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial call plus two retries")
}

func TestScrapeNotFoundDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestScraper(2).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScrapePDFSkipsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 binary junk"))
	}))
	defer srv.Close()

	page, err := newTestScraper(2).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, core.ContentPDF, page.Kind)
	assert.Empty(t, page.Text)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Hello", ExtractTitle("<html><head><title>  Hello </title></head></html>"))
	assert.Equal(t, "", ExtractTitle("<html><body>no title</body></html>"))
	assert.Equal(t, "", ExtractTitle(""))
}

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        core.ContentKind
	}{
		{"https://acme.com/annual-report.pdf", "", core.ContentPDF},
		{"https://acme.com/page", "application/pdf", core.ContentPDF},
		{"https://acme.com/api/v1/info", "", core.ContentAPI},
		{"https://acme.com/data", "application/json", core.ContentAPI},
		{"https://www.reuters.com/business/acme", "text/html", core.ContentNews},
		{"https://example.com/news/acme-ipo", "text/html", core.ContentNews},
		{"https://acme.com/about", "text/html", core.ContentWebsite},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyPage(tt.url, tt.contentType), tt.url)
	}
}

func TestSnippetFallback(t *testing.T) {
	page := SnippetFallback(core.SearchResult{
		Title:   "Acme Corp",
		URL:     "https://techcrunch.com/acme-raises",
		Snippet: "Acme raised a series B",
	})
	assert.Equal(t, "Acme raised a series B", page.Text)
	assert.Equal(t, core.ContentNews, page.Kind)
	assert.False(t, page.FetchedAt.IsZero())
}
