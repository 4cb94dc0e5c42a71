package news

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newschat/app/client/newsapi"
	"newschat/app/client/rss"
	"newschat/app/client/scrape"
	"newschat/app/config"
	"newschat/app/util/ttlcache"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"golang.org/x/time/rate"
)

const breakingWindow = 24 * time.Hour

type searchProvider interface {
	Search(ctx context.Context, query string) ([]newsapi.Article, error)
}

type feedProvider interface {
	Topic(ctx context.Context, topic string) ([]rss.Article, error)
}

type scrapeProvider interface {
	Recent(ctx context.Context, topic string) ([]scrape.Article, error)
}

// Service retrieves, normalizes and caches news articles. Provider
// failures degrade to empty results, they never reach callers as
// errors.
type Service struct {
	cfg      *config.Config
	provider searchProvider
	feed     feedProvider
	scraper  scrapeProvider

	cache         *ttlcache.Cache[[]Article]
	breakingCache *ttlcache.Cache[[]Article]

	pollLimiter *rate.Limiter
	now         func() time.Time
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return newService(cfg,
		do.MustInvoke[*newsapi.Client](di),
		do.MustInvoke[*rss.Client](di),
		do.MustInvoke[*scrape.Client](di),
		time.Now,
	), nil
}

func newService(cfg *config.Config, provider searchProvider, feed feedProvider, scraper scrapeProvider, now func() time.Time) *Service {
	return &Service{
		cfg:           cfg,
		provider:      provider,
		feed:          feed,
		scraper:       scraper,
		cache:         ttlcache.NewWithClock[[]Article](cfg.News.CacheTTL.Std(), now),
		breakingCache: ttlcache.NewWithClock[[]Article](cfg.News.BreakingCacheTTL.Std(), now),
		pollLimiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		now:           now,
	}
}

// Fetch returns articles for the topic, newest first, deduplicated by
// title. forceRefresh bypasses both cache tiers.
func (s *Service) Fetch(ctx context.Context, topic string, forceRefresh bool) []Article {
	isBreaking := isBreakingTopic(topic)

	if !forceRefresh {
		if isBreaking {
			if cached, ok := s.breakingCache.Get(s.breakingKey(topic)); ok {
				slog.Debug("Using cached breaking news", "topic", topic)
				return cached
			}
		}

		if cached, ok := s.cache.Get(standardKey(topic)); ok {
			slog.Debug("Using cached news articles", "topic", topic)
			return cached
		}
	}

	return s.fetchFromSource(ctx, topic, isBreaking)
}

func (s *Service) fetchFromSource(ctx context.Context, topic string, isBreaking bool) []Article {
	raw, err := s.provider.Search(ctx, topic)
	if err != nil {
		slog.Error("Error fetching news from provider", "topic", topic, "error", err)
		return nil
	}

	articles := normalize(pie.Map(raw, func(a newsapi.Article) Article {
		return Article(a)
	}))

	if isBreaking {
		cutoff := s.now().Add(-breakingWindow)
		articles = pie.Filter(articles, func(a Article) bool {
			return a.BreakingEligible() && a.PublishedAt.After(cutoff)
		})
	}

	if len(articles) > s.cfg.News.PageSize {
		articles = articles[:s.cfg.News.PageSize]
	}

	if len(articles) > 0 {
		if isBreaking {
			s.breakingCache.Set(s.breakingKey(topic), articles)
		} else {
			s.cache.Set(standardKey(topic), articles)
		}
	}

	return articles
}

// FetchWithFallback runs the full source chain: provider, then topic
// RSS feed, then the HTML scraper. Used when an empty answer is worse
// than a slow one.
func (s *Service) FetchWithFallback(ctx context.Context, topic string, forceRefresh bool) []Article {
	articles := s.Fetch(ctx, topic, forceRefresh)
	if len(articles) > 0 {
		return articles
	}

	if feedArticles, err := s.feed.Topic(ctx, topic); err != nil {
		slog.Warn("RSS fallback failed", "topic", topic, "error", err)
	} else if len(feedArticles) > 0 {
		return normalize(pie.Map(feedArticles, func(a rss.Article) Article {
			return Article(a)
		}))
	}

	scraped, err := s.scraper.Recent(ctx, topic)
	if err != nil {
		slog.Warn("Scrape fallback failed", "topic", topic, "error", err)
		return nil
	}

	return normalize(pie.Map(scraped, func(a scrape.Article) Article {
		return Article(a)
	}))
}

// Recency renders the "[Last updated: ...]" annotation from the most
// recent publish time across the articles.
func (s *Service) Recency(articles []Article) string {
	var mostRecent time.Time

	for _, a := range articles {
		if a.PublishedAt.After(mostRecent) {
			mostRecent = a.PublishedAt
		}
	}

	if mostRecent.IsZero() {
		return ""
	}

	elapsed := s.now().Sub(mostRecent)

	switch {
	case elapsed < time.Hour:
		return fmt.Sprintf("[Last updated: %d minutes ago]", int(elapsed.Minutes()))
	case elapsed < breakingWindow:
		return fmt.Sprintf("[Last updated: %d hours ago]", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("[Last updated: %s]", mostRecent.Format("2006-01-02"))
	}
}

// RunPollLoop refreshes the breaking-news cache for the configured hot
// topics so real-time queries usually hit a warm cache.
func (s *Service) RunPollLoop(ctx context.Context) {
	if s.cfg.News.PollInterval.Std() <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.News.PollInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	slog.Info("Polling for breaking news updates")

	s.cache.Sweep()
	s.breakingCache.Sweep()

	// Iterate over a snapshot, the configured list must not change
	// under us mid-poll.
	topics := append([]string(nil), s.cfg.News.HotTopics...)

	for _, topic := range topics {
		if err := s.pollLimiter.Wait(ctx); err != nil {
			return
		}

		articles := s.fetchFromSource(ctx, topic, true)
		if len(articles) > 0 {
			slog.Debug("Refreshed breaking news", "topic", topic, "articles", len(articles))
		}
	}
}

func (s *Service) CacheStats() (standard, breaking ttlcache.Stats) {
	return s.cache.Stats(), s.breakingCache.Stats()
}

func isBreakingTopic(topic string) bool {
	lowered := strings.ToLower(topic)
	return strings.Contains(lowered, "breaking") || strings.Contains(lowered, "latest")
}

func standardKey(topic string) string {
	return "news:" + strings.ToLower(topic)
}

// breakingKey includes the current hour so breaking lookups roll over
// naturally even if an entry somehow outlives its TTL.
func (s *Service) breakingKey(topic string) string {
	return "breaking:" + strings.ToLower(topic) + ":" + s.now().UTC().Format("2006-01-02T15")
}

func normalize(articles []Article) []Article {
	valid := pie.Filter(articles, func(a Article) bool {
		return a.Title != ""
	})

	seen := make(map[string]bool, len(valid))
	deduped := make([]Article, 0, len(valid))

	for _, a := range valid {
		if seen[a.Title] {
			continue
		}
		seen[a.Title] = true
		deduped = append(deduped, a)
	}

	return pie.SortUsing(deduped, func(a, b Article) bool {
		return a.PublishedAt.After(b.PublishedAt)
	})
}
