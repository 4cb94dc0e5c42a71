package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"newschat/app/config"
	"newschat/app/util/ttlcache"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const (
	// How many trailing messages participate in the cache key. Full
	// history would make every key unique and defeat caching.
	cacheKeyTail = 3

	// Non-system turns kept when shrinking an oversized context.
	reducedContextTail = 6
)

type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service calls the text-generation provider with retries, model
// fallback and a response cache. Every terminal path yields a
// user-presentable string.
type Service struct {
	cfg   *config.Config
	api   completionAPI
	cache *ttlcache.Cache[string]

	sleep func(ctx context.Context, d time.Duration) error
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	clientConfig := openai.DefaultConfig(cfg.OpenAI.Token)
	clientConfig.BaseURL = cfg.OpenAI.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.OpenAI.Timeout.Std(),
	}

	return newService(cfg, openai.NewClientWithConfig(clientConfig)), nil
}

func newService(cfg *config.Config, api completionAPI) *Service {
	return &Service{
		cfg:   cfg,
		api:   api,
		cache: ttlcache.New[string](cfg.Cache.ResponseTTL.Std()),
		sleep: sleepContext,
	}
}

// Generate produces a completion for the message list. On terminal
// failure it returns a fixed apology string together with the
// classified error, so callers always have something to show the user.
func (s *Service) Generate(ctx context.Context, messages []openai.ChatCompletionMessage, model string, maxTokens int) (string, error) {
	key := cacheKey(messages, model)

	if cached, ok := s.cache.Get(key); ok {
		slog.Debug("Using cached generation response", "model", model)
		return cached, nil
	}

	m := newMachine(model, s.cfg.OpenAI.FallbackModel, s.cfg.OpenAI.Retry.Attempts)
	current := messages

	var lastErr error

	for {
		switch m.phase {
		case phaseReducingContext:
			slog.Info("Context too long, retrying with reduced context")
			current = ReduceContext(current)
			m.phase = phaseAttempting
			continue

		case phaseSwitchingModel:
			slog.Info("Falling back to secondary model", "model", m.model)
			m.phase = phaseAttempting
			continue

		case phaseFailed:
			slog.Error("Generation failed terminally", "error", lastErr, "attempts", m.attempt)
			return m.apology, fmt.Errorf("generation failed after %d attempts: %w", m.attempt, lastErr)
		}

		if m.attempt > 0 {
			delay := backoffDelay(m.attempt, s.cfg.OpenAI.Retry.BaseDelay.Std(), s.cfg.OpenAI.Retry.MaxDelay.Std())
			slog.Debug("Retrying generation", "attempt", m.attempt+1, "delay", delay)

			if err := s.sleep(ctx, delay); err != nil {
				return ApologyUnavailable, err
			}
		}

		text, err := s.attempt(ctx, current, m.model, maxTokens)
		if err == nil {
			text = strings.TrimSpace(text)
			s.cache.Set(key, text)
			return text, nil
		}

		lastErr = err
		m = m.next(classify(err))
	}
}

func (s *Service) attempt(ctx context.Context, messages []openai.ChatCompletionMessage, model string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpenAI.Timeout.Std())
	defer cancel()

	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            model,
		Messages:         messages,
		MaxTokens:        maxTokens,
		Temperature:      0.7,
		TopP:             0.9,
		PresencePenalty:  0.3,
		FrequencyPenalty: 0.5,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	return resp.Choices[0].Message.Content, nil
}

// ReduceContext keeps system messages plus the most recent non-system
// turns, used when the provider rejects an oversized request.
func ReduceContext(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if len(messages) <= 4 {
		return messages
	}

	var system, rest []openai.ChatCompletionMessage

	for _, msg := range messages {
		if msg.Role == openai.ChatMessageRoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if len(rest) > reducedContextTail {
		rest = rest[len(rest)-reducedContextTail:]
	}

	return append(system, rest...)
}

func (s *Service) CacheStats() ttlcache.Stats {
	return s.cache.Stats()
}

func cacheKey(messages []openai.ChatCompletionMessage, model string) string {
	tail := messages
	if len(tail) > cacheKeyTail {
		tail = tail[len(tail)-cacheKeyTail:]
	}

	encoded, err := json.Marshal(tail)
	if err != nil {
		encoded = []byte(fmt.Sprint(tail))
	}

	return "openai:" + model + ":" + string(encoded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
