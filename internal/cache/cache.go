// Package cache holds the in-memory paginated message history and the
// conversation list summaries. All mutations replace pages wholesale rather
// than editing items in place, so readers relying on reference equality for
// change detection see every update.
package cache

import (
	"sync"

	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/chat"
)

// Store is the message cache for all loaded conversations plus the
// conversation summary list. It is safe for concurrent use; every mutation
// completes atomically, so socket events, pagination responses, and sends
// alternate between whole mutations and never interleave mid-update.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]chat.PaginatedMessages
	summaries     []chat.ConversationSummary
	active        string

	bus *bus.Bus
}

// New creates an empty store. The bus may be nil; when set, every mutation
// publishes a cache.updated event carrying the conversation id ("" for
// summary-only changes).
func New(b *bus.Bus) *Store {
	return &Store{
		conversations: make(map[string]chat.PaginatedMessages),
		bus:           b,
	}
}

func (s *Store) notify(chatID string) {
	if s.bus != nil {
		s.bus.Emit(bus.KindCacheUpdated, chatID)
	}
}

// SetActive records which conversation is currently open. Empty string
// means none.
func (s *Store) SetActive(chatID string) {
	s.mu.Lock()
	s.active = chatID
	s.mu.Unlock()
}

// Active returns the currently open conversation id.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Get returns the loaded window for a conversation. The second return is
// false when the conversation is not loaded.
func (s *Store) Get(chatID string) (chat.PaginatedMessages, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pm, ok := s.conversations[chatID]
	return pm, ok
}

// Replace installs a whole new window for a conversation, creating it if
// absent. Used on first subscription and by search jumps.
func (s *Store) Replace(chatID string, pm chat.PaginatedMessages) {
	s.mu.Lock()
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}

// Drop removes a conversation's window. Used when a conversation is closed.
func (s *Store) Drop(chatID string) {
	s.mu.Lock()
	delete(s.conversations, chatID)
	s.mu.Unlock()
	s.notify(chatID)
}

// AppendPage adds an older page at the end of the window. A page param that
// is already loaded replaces the existing page (safe retry); otherwise any
// message ids the new page carries are stripped from sibling pages, the new
// copy being the most recently reconciled one. Creates the conversation if
// absent (first load).
func (s *Store) AppendPage(chatID string, pageParam int, page chat.Page) {
	s.mu.Lock()
	pm := s.conversations[chatID]
	pm = insertPage(pm, pageParam, page, false)
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}

// PrependPage adds a newer page at the front of the window, with the same
// dedup and retry semantics as AppendPage.
func (s *Store) PrependPage(chatID string, pageParam int, page chat.Page) {
	s.mu.Lock()
	pm := s.conversations[chatID]
	pm = insertPage(pm, pageParam, page, true)
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}

func insertPage(pm chat.PaginatedMessages, pageParam int, page chat.Page, front bool) chat.PaginatedMessages {
	for i, param := range pm.PageParams {
		if param == pageParam {
			pages := append([]chat.Page(nil), pm.Pages...)
			pages[i] = page
			pm.Pages = pages
			return pm
		}
	}

	ids := make(map[string]struct{}, len(page.Items))
	for _, m := range page.Items {
		ids[m.ID] = struct{}{}
	}
	pages := stripIDs(pm.Pages, ids)

	if front {
		pm.Pages = append([]chat.Page{page}, pages...)
		pm.PageParams = append([]int{pageParam}, pm.PageParams...)
	} else {
		pm.Pages = append(append([]chat.Page(nil), pages...), page)
		pm.PageParams = append(append([]int(nil), pm.PageParams...), pageParam)
	}
	return pm
}

// stripIDs removes the given message ids from every page, replacing only
// the pages that actually change.
func stripIDs(pages []chat.Page, ids map[string]struct{}) []chat.Page {
	out := append([]chat.Page(nil), pages...)
	for i, p := range out {
		hit := false
		for _, m := range p.Items {
			if _, ok := ids[m.ID]; ok {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		items := make([]chat.Message, 0, len(p.Items))
		for _, m := range p.Items {
			if _, ok := ids[m.ID]; !ok {
				items = append(items, m)
			}
		}
		p.Items = items
		out[i] = p
	}
	return out
}

// ReplacePage swaps the page at the given position. A missing conversation
// or out-of-range index is a no-op; callers must tolerate late responses
// for conversations no longer loaded.
func (s *Store) ReplacePage(chatID string, pageIndex int, page chat.Page) {
	s.mu.Lock()
	pm, ok := s.conversations[chatID]
	if !ok || pageIndex < 0 || pageIndex >= len(pm.Pages) {
		s.mu.Unlock()
		return
	}
	pages := append([]chat.Page(nil), pm.Pages...)
	pages[pageIndex] = page
	pm.Pages = pages
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}

// MutatePage rewrites a single page's items through fn. fn receives a copy
// and returns the replacement slice. No-op for absent conversations.
func (s *Store) MutatePage(chatID string, pageIndex int, fn func(items []chat.Message) []chat.Message) {
	s.mu.Lock()
	pm, ok := s.conversations[chatID]
	if !ok || pageIndex < 0 || pageIndex >= len(pm.Pages) {
		s.mu.Unlock()
		return
	}
	pages := append([]chat.Page(nil), pm.Pages...)
	page := pages[pageIndex]
	page.Items = fn(append([]chat.Message(nil), page.Items...))
	pages[pageIndex] = page
	pm.Pages = pages
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}

// MutateAllPages rewrites every page's items through fn. No-op for absent
// conversations.
func (s *Store) MutateAllPages(chatID string, fn func(items []chat.Message) []chat.Message) {
	s.mu.Lock()
	pm, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return
	}
	pages := append([]chat.Page(nil), pm.Pages...)
	for i, page := range pages {
		page.Items = fn(append([]chat.Message(nil), page.Items...))
		pages[i] = page
	}
	pm.Pages = pages
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}

// PrependMessage puts a message at the head of page 0, deduplicating its id
// across the window. No-op when the conversation is not loaded.
func (s *Store) PrependMessage(chatID string, msg chat.Message) {
	s.mu.Lock()
	pm, ok := s.conversations[chatID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if len(pm.Pages) == 0 {
		pm.Pages = []chat.Page{{Items: []chat.Message{msg}, Total: 1}}
		pm.PageParams = []int{1}
		s.conversations[chatID] = pm
		s.mu.Unlock()
		s.notify(chatID)
		return
	}

	fresh := true
	for _, p := range pm.Pages {
		for _, m := range p.Items {
			if m.ID == msg.ID {
				fresh = false
				break
			}
		}
	}
	pages := pm.Pages
	if !fresh {
		pages = stripIDs(pages, map[string]struct{}{msg.ID: {}})
	} else {
		pages = append([]chat.Page(nil), pages...)
	}
	head := pages[0]
	head.Items = append([]chat.Message{msg}, head.Items...)
	if fresh {
		head.Total++
	}
	pages[0] = head
	pm.Pages = pages
	s.conversations[chatID] = pm
	s.mu.Unlock()
	s.notify(chatID)
}
