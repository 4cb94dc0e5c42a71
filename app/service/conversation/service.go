package conversation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"newschat/app/config"

	"github.com/google/uuid"
	"github.com/samber/do"
)

// Service owns all conversation state. Nothing else mutates histories.
type Service struct {
	cfg *config.Config

	mu      sync.RWMutex
	records map[string]*record

	now   func() time.Time
	newID func() string
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(cfg, time.Now, uuid.NewString), nil
}

// NewService takes explicit clock and id-generator dependencies so
// pruning and eviction are testable without wall-clock sleeps.
func NewService(cfg *config.Config, now func() time.Time, newID func() string) *Service {
	return &Service{
		cfg:     cfg,
		records: make(map[string]*record),
		now:     now,
		newID:   newID,
	}
}

func (s *Service) NewConversationID() string {
	return s.newID()
}

// Append adds a turn, creating the conversation lazily. The stored
// history is soft-capped: when it overflows, the oldest non-system
// turns go first, system turns are always preserved.
func (s *Service) Append(conversationID, role, content string) Turn {
	turn := Turn{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[conversationID]
	if !ok {
		rec = &record{}
		s.records[conversationID] = rec
	}

	rec.turns = append(rec.turns, turn)
	rec.lastActive = turn.Timestamp

	// Storage keeps twice the context cap so GetHistory stays useful
	// while memory stays bounded.
	limit := s.cfg.Conversation.HistoryCap * 2
	if nonSystemCount(rec.turns) > limit {
		rec.turns = truncate(rec.turns, limit)
	}

	return turn
}

// History returns a copy of the stored turns. The second result
// distinguishes an unknown conversation from an empty one.
func (s *Service) History(conversationID string) ([]Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[conversationID]
	if !ok {
		return nil, false
	}

	return append([]Turn(nil), rec.turns...), true
}

// ContextWindow is the bounded suffix sent to the generation provider:
// all system turns plus the most recent non-system ones.
func (s *Service) ContextWindow(conversationID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[conversationID]
	if !ok {
		return nil
	}

	return truncate(append([]Turn(nil), rec.turns...), s.cfg.Conversation.HistoryCap)
}

// Prune removes idle and empty conversations, then enforces the
// conversation ceiling by evicting the least recently active ones.
func (s *Service) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.cfg.Conversation.InactivityTTL.Std())
	removed := 0

	for id, rec := range s.records {
		if len(rec.turns) == 0 || rec.lastActive.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}

	ceiling := s.cfg.Conversation.MaxConversations
	if len(s.records) > ceiling {
		type activity struct {
			id         string
			lastActive time.Time
		}

		byAge := make([]activity, 0, len(s.records))
		for id, rec := range s.records {
			byAge = append(byAge, activity{id, rec.lastActive})
		}

		sort.Slice(byAge, func(i, j int) bool {
			return byAge[i].lastActive.Before(byAge[j].lastActive)
		})

		for _, candidate := range byAge[:len(s.records)-ceiling] {
			delete(s.records, candidate.id)
			removed++
		}
	}

	return removed
}

// RunSweepLoop prunes on the configured interval until ctx is done.
func (s *Service) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Conversation.SweepInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Prune(); removed > 0 {
				slog.Info("Cleaned up inactive conversations", "removed", removed)
			}
		}
	}
}

// Stats reports total conversations and those active within the last
// hour.
func (s *Service) Stats() (total, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hourAgo := s.now().Add(-time.Hour)

	for _, rec := range s.records {
		if rec.lastActive.After(hourAgo) {
			active++
		}
	}

	return len(s.records), active
}

func nonSystemCount(turns []Turn) int {
	count := 0
	for _, t := range turns {
		if t.Role != RoleSystem {
			count++
		}
	}
	return count
}

func truncate(turns []Turn, keep int) []Turn {
	if nonSystemCount(turns) <= keep {
		return turns
	}

	var system, rest []Turn
	for _, t := range turns {
		if t.Role == RoleSystem {
			system = append(system, t)
		} else {
			rest = append(rest, t)
		}
	}

	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}

	return append(system, rest...)
}
