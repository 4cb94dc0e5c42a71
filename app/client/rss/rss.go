package rss

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"newschat/app/config"

	"github.com/mmcdole/gofeed"
	"github.com/samber/do"
)

const feedURL = "https://news.google.com/rss/search"

// Client reads topic feeds from a public news RSS endpoint. Sits
// between the search provider and the HTML scraper in the real-time
// fallback chain.
type Client struct {
	cfg    *config.Config
	parser *gofeed.Parser
}

type Article struct {
	Title       string
	Description string
	Source      string
	URL         string
	PublishedAt time.Time
}

func NewClient(di *do.Injector) (*Client, error) {
	return &Client{
		cfg:    do.MustInvoke[*config.Config](di),
		parser: gofeed.NewParser(),
	}, nil
}

func (c *Client) Topic(ctx context.Context, topic string) ([]Article, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.News.Timeout.Std())
	defer cancel()

	feed, err := c.parser.ParseURLWithContext(feedURL+"?q="+url.QueryEscape(topic), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	limit := c.cfg.News.PageSize
	articles := make([]Article, 0, limit)

	for _, item := range feed.Items {
		if len(articles) >= limit {
			break
		}
		if item.Title == "" {
			continue
		}

		var publishedAt time.Time
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		}

		source := ""
		if item.Custom != nil {
			source = item.Custom["source"]
		}

		articles = append(articles, Article{
			Title:       item.Title,
			Description: item.Description,
			Source:      source,
			URL:         item.Link,
			PublishedAt: publishedAt,
		})
	}

	return articles, nil
}
