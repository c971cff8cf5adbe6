package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollyScraper_ExtractsTextAndLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><style>body{color:red}</style></head>
			<body>
				<script>var x = 1;</script>
				<p>go go rust</p>
				<a href="/a">a</a>
				<a href="/b">b</a>
				<a href="javascript:void(0)">noop</a>
			</body></html>`))
	}))
	defer server.Close()

	s := NewCollyScraper(Config{Timeout: 5 * time.Second, UserAgent: "test-agent"})
	record, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)

	assert.Contains(t, record.ExtractedContent, "go go rust")
	assert.NotContains(t, record.ExtractedContent, "var x = 1")
	assert.Len(t, record.Links, 2)
}

func TestCollyScraper_UnreachableHostFails(t *testing.T) {
	s := NewCollyScraper(Config{Timeout: 1 * time.Second, UserAgent: "test-agent"})
	_, err := s.Scrape(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Error(t, err)
}
