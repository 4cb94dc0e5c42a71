package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"newschat/app/config"
	"newschat/app/service/conversation"
	"newschat/app/service/intent"
	"newschat/app/service/news"
	"newschat/app/service/verify"
	"newschat/app/util/ttlcache"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	response string
	err      error

	calls     int
	messages  []openai.ChatCompletionMessage
	model     string
	maxTokens int
}

func (m *mockGenerator) Generate(_ context.Context, messages []openai.ChatCompletionMessage, model string, maxTokens int) (string, error) {
	m.calls++
	m.messages = messages
	m.model = model
	m.maxTokens = maxTokens

	if m.err != nil {
		return "I apologize, something went wrong.", m.err
	}

	return m.response, nil
}

func (m *mockGenerator) CacheStats() ttlcache.Stats {
	return ttlcache.Stats{}
}

type mockNews struct {
	articles []news.Article
	recency  string

	calls        int
	topics       []string
	forceRefresh []bool
}

func (m *mockNews) FetchWithFallback(_ context.Context, topic string, forceRefresh bool) []news.Article {
	m.calls++
	m.topics = append(m.topics, topic)
	m.forceRefresh = append(m.forceRefresh, forceRefresh)
	return m.articles
}

func (m *mockNews) Recency([]news.Article) string {
	return m.recency
}

func (m *mockNews) CacheStats() (ttlcache.Stats, ttlcache.Stats) {
	return ttlcache.Stats{}, ttlcache.Stats{}
}

type passGuard struct{}

func (passGuard) EnsureVariety(_ context.Context, candidate string, _ []conversation.Turn, _ string) string {
	return candidate
}

func testEngine(t *testing.T, gen *mockGenerator, newsSvc *mockNews) *Service {
	t.Helper()

	cfg := &config.Config{}
	cfg.OpenAI.Model = "gpt-4-turbo"
	cfg.OpenAI.FallbackModel = "gpt-3.5-turbo"
	cfg.OpenAI.MaxTokens = config.MaxTokens{Simple: 400, Complex: 700, News: 700}
	cfg.Conversation.HistoryCap = 20
	cfg.Conversation.MaxConversations = 1000
	cfg.Conversation.InactivityTTL = config.Duration(24 * time.Hour)

	intentSvc, err := intent.New(nil)
	require.NoError(t, err)

	verifySvc, err := verify.New(nil)
	require.NoError(t, err)

	counter := 0
	convSvc := conversation.NewService(cfg, time.Now, func() string {
		counter++
		return fmt.Sprintf("conv-%d", counter)
	})

	return newService(cfg, intentSvc, verifySvc, convSvc, gen, newsSvc, passGuard{})
}

func testArticles() []news.Article {
	published := time.Now().Add(-30 * time.Minute)

	return []news.Article{
		{Title: "Inflation cools to 3.1% in August", Source: "Reuters", URL: "https://example.com/1", PublishedAt: published, Description: "Consumer prices rose less than expected."},
		{Title: "Fed signals rates will hold steady", Source: "BBC News", URL: "https://example.com/2", PublishedAt: published},
		{Title: "Markets rally on inflation data", Source: "AP", URL: "https://example.com/3", PublishedAt: published},
	}
}

func TestHandleMessageRejectsEmptyInput(t *testing.T) {
	svc := testEngine(t, &mockGenerator{}, &mockNews{})

	_, err := svc.HandleMessage(context.Background(), "", "")
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.HandleMessage(context.Background(), "   ", "")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestGreetingSkipsGeneration(t *testing.T) {
	gen := &mockGenerator{}
	svc := testEngine(t, gen, &mockNews{})

	reply, err := svc.HandleMessage(context.Background(), "hello", "")
	require.NoError(t, err)

	require.Equal(t, "chat", reply.MessageType)
	require.NotEmpty(t, reply.Response)
	require.Equal(t, "conv-1", reply.ConversationID)
	require.Equal(t, 0, gen.calls)

	// chat replies serialize an empty sources array, not null
	require.NotNil(t, reply.Sources)
	require.Empty(t, reply.Sources)

	encoded, err := json.Marshal(reply)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"sources":[]`)

	turns, err := svc.GetHistory("conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, conversation.RoleUser, turns[0].Role)
	require.Equal(t, conversation.RoleAssistant, turns[1].Role)
}

func TestChatPathSendsContextWindow(t *testing.T) {
	gen := &mockGenerator{response: "Sure, honey never spoils."}
	svc := testEngine(t, gen, &mockNews{})

	svc.convSvc.Append("c1", conversation.RoleUser, "earlier question")
	svc.convSvc.Append("c1", conversation.RoleAssistant, "earlier answer")

	reply, err := svc.HandleMessage(context.Background(), "tell me a fun fact", "c1")
	require.NoError(t, err)

	require.Equal(t, "chat", reply.MessageType)
	require.Equal(t, "Sure, honey never spoils.", reply.Response)
	require.Equal(t, "c1", reply.ConversationID)

	require.Equal(t, 1, gen.calls)
	require.Equal(t, 400, gen.maxTokens)
	require.Len(t, gen.messages, 4)
	require.Equal(t, openai.ChatMessageRoleSystem, gen.messages[0].Role)
	require.Equal(t, "earlier question", gen.messages[1].Content)
	require.Equal(t, "tell me a fun fact", gen.messages[3].Content)
}

func TestChatComplexityRaisesTokenBudget(t *testing.T) {
	gen := &mockGenerator{response: "Because supply and demand shift."}
	svc := testEngine(t, gen, &mockNews{})

	_, err := svc.HandleMessage(context.Background(), "why do prices change over time?", "")
	require.NoError(t, err)

	require.Equal(t, 700, gen.maxTokens)
}

func TestNewsPathEmbedsArticlesAndSources(t *testing.T) {
	gen := &mockGenerator{response: "Here's the rundown on inflation."}
	newsSvc := &mockNews{articles: testArticles(), recency: "[Last updated: 30 minutes ago]"}
	svc := testEngine(t, gen, newsSvc)

	reply, err := svc.HandleMessage(context.Background(), "give me the latest news on inflation", "")
	require.NoError(t, err)

	require.Equal(t, "news", reply.MessageType)
	require.Len(t, reply.Sources, 3)
	require.Equal(t, "Inflation cools to 3.1% in August", reply.Sources[0].Title)
	require.Equal(t, "Reuters", reply.Sources[0].Source)

	require.Equal(t, 1, newsSvc.calls)
	require.False(t, newsSvc.forceRefresh[0])

	require.Equal(t, 1, gen.calls)
	require.Equal(t, "gpt-4-turbo", gen.model)
	require.Equal(t, 700, gen.maxTokens)

	prompt := gen.messages[1].Content
	require.Contains(t, prompt, "Inflation cools to 3.1% in August")
	require.Contains(t, prompt, "Reuters")
	require.Contains(t, prompt, "Consumer prices rose less than expected.")

	require.True(t, strings.HasPrefix(reply.Response, "[Last updated: 30 minutes ago]"))
	require.Contains(t, reply.Response, "Here's the rundown on inflation.")
}

func TestRealTimeNewsForcesRefresh(t *testing.T) {
	gen := &mockGenerator{response: "Live coverage incoming."}
	newsSvc := &mockNews{articles: testArticles()}
	svc := testEngine(t, gen, newsSvc)

	reply, err := svc.HandleMessage(context.Background(), "breaking news on the election", "")
	require.NoError(t, err)

	require.Equal(t, "news", reply.MessageType)
	require.True(t, newsSvc.forceRefresh[0])
	require.Contains(t, gen.messages[0].Content, "live news reporter")
}

func TestNewsPathWithoutArticles(t *testing.T) {
	gen := &mockGenerator{}
	svc := testEngine(t, gen, &mockNews{})

	reply, err := svc.HandleMessage(context.Background(), "give me the latest news on inflation", "")
	require.NoError(t, err)

	require.Equal(t, "news", reply.MessageType)
	require.Empty(t, reply.Sources)
	require.Contains(t, reply.Response, "couldn't find any recent news")
	require.Equal(t, 0, gen.calls)
}

func TestNewsSummarizationFailureDegrades(t *testing.T) {
	gen := &mockGenerator{err: errors.New("provider down")}
	newsSvc := &mockNews{articles: testArticles()}
	svc := testEngine(t, gen, newsSvc)

	reply, err := svc.HandleMessage(context.Background(), "give me the latest news on inflation", "")
	require.NoError(t, err)

	require.Contains(t, reply.Response, "I found 3 recent articles")
	require.Contains(t, reply.Response, "Inflation cools to 3.1% in August")
	require.Len(t, reply.Sources, 3)
}

func TestWhatsNewRoutesToNews(t *testing.T) {
	gen := &mockGenerator{response: "Tech roundup."}
	newsSvc := &mockNews{articles: testArticles()}
	svc := testEngine(t, gen, newsSvc)

	reply, err := svc.HandleMessage(context.Background(), "What's new with tech today?", "")
	require.NoError(t, err)

	require.Equal(t, "news", reply.MessageType)
	require.Equal(t, "tech today", newsSvc.topics[0])
}

func TestClaimAddsVerificationContext(t *testing.T) {
	gen := &mockGenerator{response: "Here's what the coverage says."}
	newsSvc := &mockNews{articles: testArticles()}
	svc := testEngine(t, gen, newsSvc)

	_, err := svc.HandleMessage(context.Background(),
		"give me the latest on what the fed reportedly said about rates", "")
	require.NoError(t, err)

	require.Contains(t, gen.messages[1].Content, "Claim verification results")
}

func TestGetHistoryUnknownConversation(t *testing.T) {
	svc := testEngine(t, &mockGenerator{}, &mockNews{})

	_, err := svc.GetHistory("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusSnapshot(t *testing.T) {
	svc := testEngine(t, &mockGenerator{response: "hi"}, &mockNews{})

	_, err := svc.HandleMessage(context.Background(), "hello", "")
	require.NoError(t, err)

	status := svc.Status()
	require.Equal(t, "ok", status.Status)
	require.Equal(t, "gpt-4-turbo", status.Model)
	require.Equal(t, "gpt-3.5-turbo", status.FallbackModel)
	require.Equal(t, 1, status.Conversations.Total)
	require.Equal(t, 1, status.Conversations.ActiveLastHour)
	require.NotEmpty(t, status.Uptime)
}
