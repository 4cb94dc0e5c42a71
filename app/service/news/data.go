package news

import "time"

type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// BreakingEligible reports whether an article carries enough metadata
// to be served as breaking news.
func (a Article) BreakingEligible() bool {
	return a.Title != "" && !a.PublishedAt.IsZero()
}
