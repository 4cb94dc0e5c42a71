package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"newschat/app/config"
	"newschat/app/service/conversation"
	"newschat/app/service/generate"
	"newschat/app/service/intent"
	"newschat/app/service/news"
	"newschat/app/service/variety"
	"newschat/app/service/verify"
	"newschat/app/util/ttlcache"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const complexMessageLength = 100

const (
	chatPersona = "You are a helpful, conversational assistant specializing in news and current events. " +
		"Keep responses natural, specific and engaging."
	newsPersona = "You are a knowledgeable news assistant. Summarize the provided articles " +
		"conversationally and mention the sources by name."
	breakingPersona = "You are a live news reporter. Lead with the most recent developments from the " +
		"provided articles and make the timeline clear."

	greetingResponse = "Hello! I can catch you up on the latest news or just chat. What would you like to know?"
)

var (
	ErrEmptyMessage = errors.New("message must be a non-empty string")
	ErrNotFound     = errors.New("conversation not found")
)

var (
	greetingPattern   = regexp.MustCompile(`(?i)^(hello|hi|hey|greetings|good (morning|afternoon|evening))[!.\s]*$`)
	whatsNewPattern   = regexp.MustCompile(`(?i)what'?s new (?:on|about|with|in)\s+(.+)`)
	complexityPattern = regexp.MustCompile(`(?i)\b(explain|describe|how|why)\b`)
)

type textGenerator interface {
	Generate(ctx context.Context, messages []openai.ChatCompletionMessage, model string, maxTokens int) (string, error)
	CacheStats() ttlcache.Stats
}

type newsFetcher interface {
	FetchWithFallback(ctx context.Context, topic string, forceRefresh bool) []news.Article
	Recency(articles []news.Article) string
	CacheStats() (standard, breaking ttlcache.Stats)
}

type varietyGuard interface {
	EnsureVariety(ctx context.Context, candidate string, history []conversation.Turn, originalMessage string) string
}

// Service is the orchestrator: it routes each message down the chat or
// the news path, runs the repetition guard over the result and records
// both turns in the conversation store.
type Service struct {
	cfg *config.Config

	intentSvc *intent.Service
	verifySvc *verify.Service
	convSvc   *conversation.Service

	generator textGenerator
	newsSvc   newsFetcher
	guard     varietyGuard

	startedAt time.Time
	now       func() time.Time
}

func New(di *do.Injector) (*Service, error) {
	return newService(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*intent.Service](di),
		do.MustInvoke[*verify.Service](di),
		do.MustInvoke[*conversation.Service](di),
		do.MustInvoke[*generate.Service](di),
		do.MustInvoke[*news.Service](di),
		do.MustInvoke[*variety.Service](di),
	), nil
}

func newService(
	cfg *config.Config,
	intentSvc *intent.Service,
	verifySvc *verify.Service,
	convSvc *conversation.Service,
	generator textGenerator,
	newsSvc newsFetcher,
	guard varietyGuard,
) *Service {
	return &Service{
		cfg:       cfg,
		intentSvc: intentSvc,
		verifySvc: verifySvc,
		convSvc:   convSvc,
		generator: generator,
		newsSvc:   newsSvc,
		guard:     guard,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// HandleMessage processes one user message end to end and returns the
// reply along with the conversation id, which is generated when the
// caller did not supply one.
func (s *Service) HandleMessage(ctx context.Context, message, conversationID string) (*Reply, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	if conversationID == "" {
		conversationID = s.convSvc.NewConversationID()
	}

	history, _ := s.convSvc.History(conversationID)

	res := s.intentSvc.Resolve(message)
	if res.Kind == intent.KindChat {
		// "what's new on X" reads like small talk to the classifier
		// but the user wants headlines.
		if topic := whatsNewTopic(message); topic != "" {
			res = intent.Result{Kind: intent.KindNews, Topic: topic}
		}
	}

	var (
		response string
		sources  []SourceRef
	)

	switch {
	case greetingPattern.MatchString(trimmed):
		res.Kind = intent.KindChat
		response = greetingResponse
	case res.Kind == intent.KindNews:
		response, sources = s.handleNews(ctx, message, res)
	default:
		response = s.handleChat(ctx, message, conversationID)
	}

	response = s.guard.EnsureVariety(ctx, response, history, message)

	s.convSvc.Append(conversationID, conversation.RoleUser, message)
	s.convSvc.Append(conversationID, conversation.RoleAssistant, response)

	// the reply envelope always carries a "sources" array, never null
	if sources == nil {
		sources = []SourceRef{}
	}

	return &Reply{
		Response:       response,
		ConversationID: conversationID,
		MessageType:    string(res.Kind),
		Sources:        sources,
		Timestamp:      s.now(),
	}, nil
}

func (s *Service) handleNews(ctx context.Context, message string, res intent.Result) (string, []SourceRef) {
	topic := res.Topic
	if topic == "" {
		topic = "latest news"
	}

	articles := s.newsSvc.FetchWithFallback(ctx, topic, res.IsRealTime)

	if len(articles) == 0 {
		if res.IsRealTime {
			return fmt.Sprintf("I don't have any real-time updates on %q at the moment. "+
				"The wires can be quiet; try again in a few minutes or ask about another topic.", topic), nil
		}

		return fmt.Sprintf("I couldn't find any recent news about %q. "+
			"Try rephrasing the topic or ask me about something else.", topic), nil
	}

	var builder strings.Builder
	for i, a := range articles {
		builder.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, a.Title, a.Source))
		if a.Description != "" {
			builder.WriteString(a.Description + "\n")
		}
	}

	prompt := fmt.Sprintf("The user asked: %q\n\nHere are the latest articles about %s:\n\n%s\n"+
		"Summarize the key developments conversationally.", message, topic, builder.String())

	if analysis := s.intentSvc.Analyze(message); analysis.ContainsClaim {
		report := s.verifySvc.CheckClaim(topic, articles)
		prompt += "\n\n" + report.PromptContext() +
			"\nWeave the verification outcome into your answer without quoting raw scores."
	}

	persona := newsPersona
	if res.IsRealTime {
		persona = breakingPersona
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: persona},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	text, err := s.generator.Generate(ctx, messages, s.cfg.OpenAI.Model, s.cfg.OpenAI.MaxTokens.News)
	if err != nil {
		slog.Warn("News summarization failed", "topic", topic, "error", err)

		text = fmt.Sprintf("I found %d recent articles about %q, but I'm having trouble summarizing "+
			"them right now. The top headline is: %s", len(articles), topic, articles[0].Title)
	}

	if recency := s.newsSvc.Recency(articles); recency != "" {
		text = recency + "\n\n" + text
	}

	return text, sourceRefs(articles)
}

func (s *Service) handleChat(ctx context.Context, message, conversationID string) string {
	window := s.convSvc.ContextWindow(conversationID)

	messages := make([]openai.ChatCompletionMessage, 0, len(window)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatPersona,
	})

	for _, turn := range window {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	maxTokens := s.cfg.OpenAI.MaxTokens.Simple
	if isComplex(message) {
		maxTokens = s.cfg.OpenAI.MaxTokens.Complex
	}

	text, err := s.generator.Generate(ctx, messages, s.cfg.OpenAI.Model, maxTokens)
	if err != nil {
		// the generator always hands back a user-presentable string,
		// apology included
		slog.Warn("Chat generation failed", "error", err)
	}

	return text
}

// GetHistory returns the stored turns of a conversation.
func (s *Service) GetHistory(conversationID string) ([]conversation.Turn, error) {
	turns, ok := s.convSvc.History(conversationID)
	if !ok {
		return nil, ErrNotFound
	}

	return turns, nil
}

// Status is a health snapshot for the status endpoint.
func (s *Service) Status() Status {
	standard, breaking := s.newsSvc.CacheStats()
	total, active := s.convSvc.Stats()

	return Status{
		Status:        "ok",
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		Model:         s.cfg.OpenAI.Model,
		FallbackModel: s.cfg.OpenAI.FallbackModel,
		Cache: CacheStatus{
			Responses: s.generator.CacheStats(),
			News:      standard,
			Breaking:  breaking,
		},
		Conversations: ConversationStatus{
			Total:          total,
			ActiveLastHour: active,
		},
		Timestamp: s.now(),
	}
}

func isComplex(message string) bool {
	return len(message) > complexMessageLength ||
		strings.Contains(message, "?") ||
		complexityPattern.MatchString(message)
}

func whatsNewTopic(message string) string {
	match := whatsNewPattern.FindStringSubmatch(message)
	if match == nil {
		return ""
	}

	return strings.TrimRight(strings.TrimSpace(match[1]), "?!. ")
}

func sourceRefs(articles []news.Article) []SourceRef {
	return pie.Map(articles, func(a news.Article) SourceRef {
		return SourceRef{
			Title:       a.Title,
			URL:         a.URL,
			Source:      a.Source,
			PublishedAt: a.PublishedAt,
		}
	})
}
