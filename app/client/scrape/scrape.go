package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newschat/app/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/do"
)

const (
	searchURL   = "https://news.google.com/search"
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxArticles = 5
)

// Client scrapes a public news search page as a last-resort source
// when the regular provider comes back empty.
type Client struct {
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
		httpClient: &http.Client{
			Timeout: cfg.News.Timeout.Std(),
		},
	}, nil
}

func (c *Client) Recent(ctx context.Context, topic string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		searchURL+"?q="+url.QueryEscape(topic), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return ParseArticles(doc), nil
}

// ParseArticles extracts article cards from a parsed search page.
func ParseArticles(doc *goquery.Document) []Article {
	var articles []Article

	doc.Find("article").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxArticles {
			return false
		}

		// no parsable timestamp stays zero, a scraped article must
		// never pretend to have a publish time it does not carry
		var publishedAt time.Time
		if raw, ok := s.Find("time").Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				publishedAt = parsed
			}
		}

		articles = append(articles, Article{
			Title:       strings.TrimSpace(s.Find("h3").Text()),
			Description: strings.TrimSpace(s.Find(".description").Text()),
			Source:      strings.TrimSpace(s.Find(".source").Text()),
			PublishedAt: publishedAt,
		})

		return true
	})

	return articles
}
