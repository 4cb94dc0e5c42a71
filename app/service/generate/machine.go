package generate

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	ApologyAuth        = "I apologize, but I am currently experiencing authentication issues with my service."
	ApologyBadRequest  = "I apologize, but I encountered an error processing your request."
	ApologyUnavailable = "I apologize, but I am having trouble connecting to my services right now."
)

type failureKind int

const (
	kindRateLimited failureKind = iota
	kindAuth
	kindContextTooLarge
	kindBadRequest
	kindServer
	kindTimeout
	kindUnknown
)

type phase int

const (
	phaseAttempting phase = iota
	phaseReducingContext
	phaseSwitchingModel
	phaseFailed
)

// machine tracks one Generate call through its attempts. Transitions
// are pure so every branch of the failure handling is testable without
// network calls.
type machine struct {
	phase   phase
	attempt int
	budget  int

	model         string
	fallbackModel string

	reduced  bool
	switched bool

	apology string
}

func newMachine(model, fallbackModel string, budget int) machine {
	return machine{
		phase:         phaseAttempting,
		budget:        budget,
		model:         model,
		fallbackModel: fallbackModel,
	}
}

// next decides what follows a failed attempt.
func (m machine) next(kind failureKind) machine {
	m.attempt++

	switch kind {
	case kindAuth:
		m.phase = phaseFailed
		m.apology = ApologyAuth

	case kindContextTooLarge:
		if !m.reduced {
			m.reduced = true
			m.phase = phaseReducingContext
		} else {
			m.phase = phaseFailed
			m.apology = ApologyBadRequest
		}

	case kindBadRequest:
		m.phase = phaseFailed
		m.apology = ApologyBadRequest

	case kindRateLimited, kindServer, kindTimeout:
		if m.attempt >= m.budget {
			m.phase = phaseFailed
			m.apology = ApologyUnavailable
		} else {
			m.phase = phaseAttempting
		}

	default:
		if !m.switched && m.model != m.fallbackModel {
			m.switched = true
			m.model = m.fallbackModel
			m.phase = phaseSwitchingModel
		} else {
			m.phase = phaseFailed
			m.apology = ApologyUnavailable
		}
	}

	return m
}

func classify(err error) failureKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return kindRateLimited
		case apiErr.HTTPStatusCode == 401:
			return kindAuth
		case apiErr.HTTPStatusCode == 400:
			if strings.Contains(strings.ToLower(apiErr.Message), "token") {
				return kindContextTooLarge
			}
			return kindBadRequest
		case apiErr.HTTPStatusCode >= 500:
			return kindServer
		}
		return kindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return kindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return kindTimeout
	}

	return kindUnknown
}

// backoffDelay is exponential and capped, with jitter on the upper
// half so concurrent retries do not stampede.
func backoffDelay(retryNumber int, base, cap time.Duration) time.Duration {
	delay := base
	for i := 1; i < retryNumber; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}

	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
