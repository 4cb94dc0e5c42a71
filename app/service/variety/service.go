package variety

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"newschat/app/config"
	"newschat/app/service/conversation"
	"newschat/app/service/generate"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const (
	similarityThreshold = 0.7
	recentResponses     = 3
	maxKeywords         = 5
	minGenericMatches   = 2
	minTokenLength      = 3
	minKeywordLength    = 4
)

var genericPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)I'm here to help`),
	regexp.MustCompile(`(?i)How can I assist you`),
	regexp.MustCompile(`(?i)Let me know if you need anything else`),
	regexp.MustCompile(`(?i)Is there anything else`),
}

var punctuation = regexp.MustCompile(`[.,/#!$%^&*;:{}=\-_` + "`" + `~()]`)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "to": true, "of": true,
	"and": true, "in": true, "that": true, "have": true, "it": true,
	"for": true, "on": true, "with": true,
}

type completer interface {
	Generate(ctx context.Context, messages []openai.ChatCompletionMessage, model string, maxTokens int) (string, error)
}

// Service detects near-duplicate assistant responses and requests one
// corrective regeneration when it finds them.
type Service struct {
	cfg       *config.Config
	generator completer
}

func New(di *do.Injector) (*Service, error) {
	return newService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*generate.Service](di),
	), nil
}

func newService(cfg *config.Config, generator completer) *Service {
	return &Service{cfg: cfg, generator: generator}
}

// EnsureVariety returns the candidate unchanged unless it repeats
// recent assistant turns, in which case one fresh-angle regeneration
// is attempted. Regeneration failure falls back to the candidate.
func (s *Service) EnsureVariety(ctx context.Context, candidate string, history []conversation.Turn, originalMessage string) string {
	if !s.isRepeating(candidate, history) {
		return candidate
	}

	slog.Info("Detected repetition, generating a varied response")

	keywords := ExtractKeywords(originalMessage)

	topicPrompt := ""
	if len(keywords) > 0 {
		topicPrompt = "Focus on these topics from the user's message: " + strings.Join(keywords, ", ") + ". "
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "You are a dynamic conversational assistant. " + topicPrompt +
				"Provide specific, helpful responses that avoid generic phrases. " +
				"Add a unique insight or perspective if appropriate. " +
				"Never repeat previous responses or use canned language.",
		},
		{Role: openai.ChatMessageRoleUser, Content: originalMessage},
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "IMPORTANT: Your previous response was too similar to earlier messages. " +
				"Please provide a completely different response that addresses the user's query from a fresh angle.",
		},
	}

	varied, err := s.generator.Generate(ctx, messages, s.cfg.OpenAI.Model, s.cfg.OpenAI.MaxTokens.Simple)
	if err != nil {
		slog.Warn("Error generating varied response", "error", err)
		return candidate
	}

	return varied
}

func (s *Service) isRepeating(candidate string, history []conversation.Turn) bool {
	var assistantTurns []conversation.Turn
	for _, turn := range history {
		if turn.Role == conversation.RoleAssistant {
			assistantTurns = append(assistantTurns, turn)
		}
	}

	// Too little history to judge: a fresh conversation never
	// triggers regeneration, even for canned-sounding text.
	if len(assistantTurns) < 2 {
		return false
	}

	recent := assistantTurns
	if len(recent) > recentResponses {
		recent = recent[len(recent)-recentResponses:]
	}

	for _, turn := range recent {
		if Similarity(candidate, turn.Content) > similarityThreshold {
			return true
		}
	}

	genericCount := 0
	for _, pattern := range genericPhrases {
		if pattern.MatchString(candidate) {
			genericCount++
		}
	}

	return genericCount >= minGenericMatches
}

// Similarity is the Jaccard index over the token sets of both texts.
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

// ExtractKeywords picks up to five content words from the message for
// the corrective prompt.
func ExtractKeywords(message string) []string {
	cleaned := punctuation.ReplaceAllString(strings.ToLower(message), "")

	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) < minKeywordLength || stopWords[word] {
			continue
		}

		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}

	return keywords
}

func tokenSet(text string) map[string]bool {
	cleaned := punctuation.ReplaceAllString(strings.ToLower(text), "")

	set := make(map[string]bool)
	for _, token := range strings.Fields(cleaned) {
		if len(token) >= minTokenLength {
			set[token] = true
		}
	}

	return set
}
