package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"newschat/app/config"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

type scriptedAPI struct {
	errs     []error
	response string
	requests []openai.ChatCompletionRequest
}

func (a *scriptedAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	a.requests = append(a.requests, req)

	call := len(a.requests) - 1
	if call < len(a.errs) && a.errs[call] != nil {
		return openai.ChatCompletionResponse{}, a.errs[call]
	}

	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: a.response}},
		},
	}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.OpenAI.Model = "gpt-4-turbo"
	cfg.OpenAI.FallbackModel = "gpt-3.5-turbo"
	cfg.OpenAI.Timeout = config.Duration(30 * time.Second)
	cfg.OpenAI.Retry.Attempts = 4
	cfg.OpenAI.Retry.BaseDelay = config.Duration(time.Second)
	cfg.OpenAI.Retry.MaxDelay = config.Duration(10 * time.Second)
	cfg.Cache.ResponseTTL = config.Duration(time.Hour)
	return cfg
}

func testService(api completionAPI) *Service {
	svc := newService(testConfig(), api)
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func userMessage(content string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: content},
	}
}

func apiError(status int, message string) error {
	return &openai.APIError{HTTPStatusCode: status, Message: message}
}

func TestGenerateSuccess(t *testing.T) {
	api := &scriptedAPI{response: "  hello there  "}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
	require.Len(t, api.requests, 1)
}

func TestGenerateCacheHit(t *testing.T) {
	api := &scriptedAPI{response: "cached answer"}
	svc := testService(api)

	first, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.NoError(t, err)

	second, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, api.requests, 1)

	stats := svc.CacheStats()
	require.Equal(t, uint64(1), stats.Hits)
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	api := &scriptedAPI{
		errs: []error{
			apiError(500, "server error"),
			apiError(429, "rate limited"),
			apiError(503, "overloaded"),
		},
		response: "finally",
	}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.NoError(t, err)
	require.Equal(t, "finally", text)
	require.Len(t, api.requests, 4)
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	api := &scriptedAPI{
		errs: []error{
			apiError(500, "a"), apiError(500, "b"), apiError(500, "c"), apiError(500, "d"),
		},
	}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.Error(t, err)
	require.Equal(t, ApologyUnavailable, text)
	require.Len(t, api.requests, 4)
}

func TestGenerateAuthFailureIsTerminal(t *testing.T) {
	api := &scriptedAPI{
		errs: []error{apiError(401, "bad key"), apiError(401, "bad key")},
	}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.Error(t, err)
	require.Equal(t, ApologyAuth, text)
	require.Len(t, api.requests, 1)
}

func TestGenerateReducesOversizedContext(t *testing.T) {
	api := &scriptedAPI{
		errs:     []error{apiError(400, "maximum context length exceeded in tokens")},
		response: "short answer",
	}
	svc := testService(api)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "persona"},
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser, Content: "turn",
		})
	}

	text, err := svc.Generate(context.Background(), messages, "gpt-4-turbo", 400)
	require.NoError(t, err)
	require.Equal(t, "short answer", text)
	require.Len(t, api.requests, 2)
	// system turn plus the 6 most recent non-system turns
	require.Len(t, api.requests[1].Messages, 7)
	require.Equal(t, openai.ChatMessageRoleSystem, api.requests[1].Messages[0].Role)
}

func TestGeneratePlainBadRequestIsTerminal(t *testing.T) {
	api := &scriptedAPI{
		errs: []error{apiError(400, "malformed request")},
	}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.Error(t, err)
	require.Equal(t, ApologyBadRequest, text)
	require.Len(t, api.requests, 1)
}

func TestGenerateFallsBackToSecondaryModel(t *testing.T) {
	api := &scriptedAPI{
		errs:     []error{errors.New("something odd")},
		response: "fallback answer",
	}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.NoError(t, err)
	require.Equal(t, "fallback answer", text)
	require.Len(t, api.requests, 2)
	require.Equal(t, "gpt-3.5-turbo", api.requests[1].Model)
}

func TestGenerateFallbackModelAlsoFails(t *testing.T) {
	api := &scriptedAPI{
		errs: []error{errors.New("odd one"), errors.New("odd two")},
	}
	svc := testService(api)

	text, err := svc.Generate(context.Background(), userMessage("hi"), "gpt-4-turbo", 400)
	require.Error(t, err)
	require.Equal(t, ApologyUnavailable, text)
	require.Len(t, api.requests, 2)
}

func TestReduceContextKeepsSystemTurns(t *testing.T) {
	var messages []openai.ChatCompletionMessage
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: "s1"})
	for i := 0; i < 10; i++ {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "u"})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: "s2"})

	reduced := ReduceContext(messages)
	require.Len(t, reduced, 8)
	require.Equal(t, "s1", reduced[0].Content)
	require.Equal(t, "s2", reduced[1].Content)
}

func TestReduceContextShortHistoryUntouched(t *testing.T) {
	messages := userMessage("hi")
	require.Equal(t, messages, ReduceContext(messages))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := time.Second
	cap := 10 * time.Second

	for retry := 1; retry <= 6; retry++ {
		d := backoffDelay(retry, base, cap)
		require.GreaterOrEqual(t, d, base/2)
		require.LessOrEqual(t, d, cap)
	}
}
