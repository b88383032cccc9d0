package cache

import "github.com/velacare/chatsync/internal/chat"

// Summary operations. The summary list is owned by the chat engine; the
// notification side only reads it, so updates flow one way.

// Summaries returns a copy of the conversation list.
func (s *Store) Summaries() []chat.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.ConversationSummary(nil), s.summaries...)
}

// SetSummaries replaces the whole conversation list (bootstrap).
func (s *Store) SetSummaries(list []chat.ConversationSummary) {
	s.mu.Lock()
	s.summaries = append([]chat.ConversationSummary(nil), list...)
	s.mu.Unlock()
	s.notify("")
}

// Summary returns one conversation's summary.
func (s *Store) Summary(chatID string) (chat.ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sum := range s.summaries {
		if sum.ID == chatID {
			return sum, true
		}
	}
	return chat.ConversationSummary{}, false
}

// MutateSummary rewrites one summary through fn. Returns false when the
// conversation has no summary entry.
func (s *Store) MutateSummary(chatID string, fn func(chat.ConversationSummary) chat.ConversationSummary) bool {
	s.mu.Lock()
	found := false
	for i, sum := range s.summaries {
		if sum.ID == chatID {
			list := append([]chat.ConversationSummary(nil), s.summaries...)
			list[i] = fn(sum)
			s.summaries = list
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify("")
	}
	return found
}

// MutateSummaries rewrites every summary through fn.
func (s *Store) MutateSummaries(fn func(chat.ConversationSummary) chat.ConversationSummary) {
	s.mu.Lock()
	list := append([]chat.ConversationSummary(nil), s.summaries...)
	for i, sum := range list {
		list[i] = fn(sum)
	}
	s.summaries = list
	s.mu.Unlock()
	s.notify("")
}

// AddSummary appends a new conversation entry, typically when the first
// message for an unlisted conversation arrives.
func (s *Store) AddSummary(sum chat.ConversationSummary) {
	s.mu.Lock()
	s.summaries = append(append([]chat.ConversationSummary(nil), s.summaries...), sum)
	s.mu.Unlock()
	s.notify("")
}
