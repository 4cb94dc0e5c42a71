package engine

import (
	"time"

	"newschat/app/util/ttlcache"
)

// Reply is the full result of handling one user message.
type Reply struct {
	Response       string      `json:"response"`
	ConversationID string      `json:"conversationId"`
	MessageType    string      `json:"messageType"`
	Sources        []SourceRef `json:"sources"`
	Timestamp      time.Time   `json:"timestamp"`
}

// SourceRef points at an article that informed a news reply.
type SourceRef struct {
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
}

type CacheStatus struct {
	Responses ttlcache.Stats `json:"responses"`
	News      ttlcache.Stats `json:"news"`
	Breaking  ttlcache.Stats `json:"breaking"`
}

type ConversationStatus struct {
	Total          int `json:"total"`
	ActiveLastHour int `json:"activeLastHour"`
}

type Status struct {
	Status        string             `json:"status"`
	Uptime        string             `json:"uptime"`
	Model         string             `json:"model"`
	FallbackModel string             `json:"fallbackModel"`
	Cache         CacheStatus        `json:"cache"`
	Conversations ConversationStatus `json:"conversations"`
	Timestamp     time.Time          `json:"timestamp"`
}
