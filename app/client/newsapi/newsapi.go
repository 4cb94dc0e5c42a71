package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newschat/app/config"

	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

// Client talks to a NewsAPI-compatible search provider.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
}

type Article struct {
	Title       string
	Description string
	Source      string
	URL         string
	PublishedAt time.Time
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.News.Timeout.Std(),
		},
	}, nil
}

// Search queries the "everything" and "top-headlines" endpoints in
// parallel and merges the results, everything-first. The goroutines
// deliberately share no cancel context: one endpoint failing must not
// abort the other mid-flight, partial results are still useful.
func (c *Client) Search(ctx context.Context, query string) ([]Article, error) {
	var everything, headlines []Article

	var group errgroup.Group

	group.Go(func() error {
		result, err := c.fetch(ctx, "/everything", url.Values{
			"q":        {query},
			"language": {c.cfg.News.Language},
			"sortBy":   {"publishedAt"},
			"pageSize": {fmt.Sprint(c.cfg.News.PageSize)},
		})
		if err != nil {
			return fmt.Errorf("everything: %w", err)
		}

		everything = result
		return nil
	})

	group.Go(func() error {
		result, err := c.fetch(ctx, "/top-headlines", url.Values{
			"q":        {query},
			"language": {c.cfg.News.Language},
			"pageSize": {fmt.Sprint(c.cfg.News.PageSize / 2)},
		})
		if err != nil {
			return fmt.Errorf("top-headlines: %w", err)
		}

		headlines = result
		return nil
	})

	if err := group.Wait(); err != nil {
		if len(everything) == 0 && len(headlines) == 0 {
			return nil, err
		}
	}

	return append(everything, headlines...), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]Article, error) {
	params.Set("apiKey", c.cfg.News.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.News.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	articles := make([]Article, 0, len(payload.Articles))

	for _, raw := range payload.Articles {
		if raw.Title == "" || strings.Contains(raw.Title, "[Removed]") {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, raw.PublishedAt)
		if err != nil {
			publishedAt = time.Time{}
		}

		articles = append(articles, Article{
			Title:       raw.Title,
			Description: raw.Description,
			Source:      raw.Source.Name,
			URL:         raw.URL,
			PublishedAt: publishedAt,
		})
	}

	return articles, nil
}

type searchResponse struct {
	Status   string       `json:"status"`
	Articles []rawArticle `json:"articles"`
}

type rawArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
}
