package newsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newschat/app/config"

	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	cfg := &config.Config{}
	cfg.News.APIKey = "test-key"
	cfg.News.BaseURL = baseURL
	cfg.News.Language = "en"
	cfg.News.PageSize = 10
	cfg.News.Timeout = config.Duration(2 * time.Second)

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.News.Timeout.Std()},
	}
}

const headlinesPayload = `{"status":"ok","articles":[
	{"title":"Markets rally on inflation data","description":"Stocks climbed.","url":"https://example.com/a","publishedAt":"2026-08-30T10:00:00Z","source":{"id":"","name":"Reuters"}},
	{"title":"[Removed]","description":"","url":"","publishedAt":"2026-08-30T09:00:00Z","source":{"id":"","name":""}}
]}`

func TestSearchSurvivesOneFailingEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/everything":
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
		case "/top-headlines":
			// answer only after the sibling request has already failed
			time.Sleep(100 * time.Millisecond)
			fmt.Fprint(w, headlinesPayload)
		}
	}))
	defer server.Close()

	articles, err := testClient(server.URL).Search(context.Background(), "markets")
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.Equal(t, "Markets rally on inflation data", articles[0].Title)
	require.Equal(t, "Reuters", articles[0].Source)
}

func TestSearchBothEndpointsFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Search(context.Background(), "markets")
	require.Error(t, err)
}

func TestSearchMergesEverythingFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/everything":
			fmt.Fprint(w, `{"status":"ok","articles":[{"title":"Deep dive","description":"","url":"","publishedAt":"2026-08-30T08:00:00Z","source":{"id":"","name":"BBC"}}]}`)
		case "/top-headlines":
			fmt.Fprint(w, headlinesPayload)
		}
	}))
	defer server.Close()

	articles, err := testClient(server.URL).Search(context.Background(), "markets")
	require.NoError(t, err)
	require.Len(t, articles, 2)
	require.Equal(t, "Deep dive", articles[0].Title)
}
