package intent

import (
	"regexp"
	"strings"

	"github.com/samber/do"
)

// Classification is an ordered rule list evaluated first-match-wins.
// The order is load-bearing: the bare "happening" rule must win even
// when later rules would also match.
type rule struct {
	name  string
	match func(lowered string) bool
	kind  Kind
}

var (
	newsLeadPhrases = regexp.MustCompile(`(?i)(get|give|tell|show|find|what'?s|any|latest|update me on|brief me on)`)
	newsKeywords    = regexp.MustCompile(`(?i)news|headline|article|latest|report|update|breaking|coverage|development|event|story|announcement`)

	realTimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)just happened`),
		regexp.MustCompile(`(?i)breaking news`),
		regexp.MustCompile(`(?i)happening (right )?now`),
		regexp.MustCompile(`(?i)latest development`),
		regexp.MustCompile(`(?i)as of now`),
		regexp.MustCompile(`(?i)current situation`),
		regexp.MustCompile(`(?i)live update`),
	}

	// Runs on cleaned text, where "what's" has already lost its
	// apostrophe, so the pattern accepts both spellings.
	topicPattern    = regexp.MustCompile(`what(?:'?s| is) happening (?:with|in|on|about)?\s*(.+)`)
	nonWordPattern  = regexp.MustCompile(`[^\w\s]`)
	newsWordPattern = regexp.MustCompile(`(?i)\b(news|headlines|updates)\b`)
)

var classifyRules = []rule{
	{
		name: "happening phrase",
		match: func(lowered string) bool {
			return strings.Contains(lowered, "what's happening") ||
				strings.Contains(lowered, "what is happening")
		},
		kind: KindNews,
	},
	{
		name: "lead phrase with news keyword",
		match: func(lowered string) bool {
			return newsKeywords.MatchString(lowered) && newsLeadPhrases.MatchString(lowered)
		},
		kind: KindNews,
	},
	{
		name: "news about/on",
		match: func(lowered string) bool {
			return strings.Contains(lowered, "news about") ||
				strings.Contains(lowered, "news on")
		},
		kind: KindNews,
	},
}

type Service struct{}

func New(_ *do.Injector) (*Service, error) {
	return &Service{}, nil
}

func (s *Service) Classify(message string) Kind {
	lowered := strings.ToLower(message)

	for _, r := range classifyRules {
		if r.match(lowered) {
			return r.kind
		}
	}

	return KindChat
}

func (s *Service) DetectRealTime(message string) bool {
	for _, pattern := range realTimePatterns {
		if pattern.MatchString(message) {
			return true
		}
	}

	return false
}

// ExtractTopic pulls a news topic out of the message. An empty result
// is valid and means a topicless query.
func (s *Service) ExtractTopic(message string) string {
	cleaned := nonWordPattern.ReplaceAllString(strings.ToLower(message), "")

	if match := topicPattern.FindStringSubmatch(cleaned); len(match) > 1 && match[1] != "" {
		return strings.TrimSpace(match[1])
	}

	return strings.TrimSpace(newsWordPattern.ReplaceAllString(cleaned, ""))
}

func (s *Service) Resolve(message string) Result {
	kind := s.Classify(message)

	result := Result{Kind: kind}
	if kind == KindNews {
		result.Topic = s.ExtractTopic(message)
		result.IsRealTime = s.DetectRealTime(message)
	}

	return result
}
