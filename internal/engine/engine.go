// Package engine is the public surface of the conversation sync engine. It
// owns the open-conversation lifecycle and delegates pagination, sends, and
// search to their controllers; the UI reads cache snapshots and calls in
// through here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/paginate"
	"github.com/velacare/chatsync/internal/search"
	"github.com/velacare/chatsync/internal/send"
	"github.com/velacare/chatsync/internal/transport"
	"go.uber.org/zap"
)

// ErrNoActiveConversation is returned by operations that need an open
// conversation when none is open.
var ErrNoActiveConversation = errors.New("no active conversation")

// Engine ties the cache, pagination, reconciliation, search, and send paths
// together for one user session.
type Engine struct {
	cache  *cache.Store
	client transport.Client
	logger *zap.Logger
	search *search.Controller
	sender *send.Coordinator
	limit  int

	mu        sync.Mutex
	paginator *paginate.Controller
}

// New creates an engine.
func New(c *cache.Store, client transport.Client, logger *zap.Logger, searchCtl *search.Controller, sender *send.Coordinator, limit int) *Engine {
	if limit <= 0 {
		limit = 20
	}
	return &Engine{
		cache:  c,
		client: client,
		logger: logger,
		search: searchCtl,
		sender: sender,
		limit:  limit,
	}
}

// Cache exposes the store for read-only snapshot access by the UI layer.
func (e *Engine) Cache() *cache.Store {
	return e.cache
}

// Bootstrap loads the conversation list summaries. Safe to retry on error.
func (e *Engine) Bootstrap(ctx context.Context) error {
	summaries, err := e.client.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	e.cache.SetSummaries(summaries)
	e.logger.Info("conversation list loaded", zap.Int("count", len(summaries)))
	return nil
}

// Open subscribes to a conversation: the previous window is discarded, the
// first history page loads, the unread counter resets, and a read receipt
// goes out. Opening the already-open conversation is a no-op.
func (e *Engine) Open(ctx context.Context, chatID string) error {
	e.mu.Lock()
	prev := e.cache.Active()
	if prev == chatID && e.paginator != nil {
		// An empty window means a previous open never loaded its first
		// page; treat that as not yet opened so the retry reloads it.
		if pm, ok := e.cache.Get(chatID); ok && len(pm.Pages) > 0 {
			e.mu.Unlock()
			return nil
		}
	}
	if prev != "" {
		e.cache.Drop(prev)
	}
	e.search.Clear()
	e.cache.SetActive(chatID)
	e.cache.Replace(chatID, chat.PaginatedMessages{})
	e.paginator = paginate.New(chatID, e.limit, e.cache, e.client, e.logger)
	p := e.paginator
	e.mu.Unlock()

	if err := p.FetchOlder(ctx); err != nil {
		return fmt.Errorf("open conversation %s: %w", chatID, err)
	}

	e.cache.MutateSummary(chatID, func(sum chat.ConversationSummary) chat.ConversationSummary {
		sum.Unread = 0
		return sum
	})
	if err := e.client.MarkRead(ctx, chatID); err != nil {
		e.logger.Warn("mark read failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	e.logger.Info("conversation opened", zap.String("chat_id", chatID))
	return nil
}

// Close unsubscribes from the open conversation, destroying its window and
// search state.
func (e *Engine) Close() {
	e.mu.Lock()
	active := e.cache.Active()
	if active != "" {
		e.cache.Drop(active)
		e.cache.SetActive("")
	}
	e.paginator = nil
	e.mu.Unlock()
	e.search.Clear()
	if active != "" {
		e.logger.Info("conversation closed", zap.String("chat_id", active))
	}
}

func (e *Engine) currentPaginator() (*paginate.Controller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paginator == nil {
		return nil, ErrNoActiveConversation
	}
	return e.paginator, nil
}

// FetchOlder extends the window into the past.
func (e *Engine) FetchOlder(ctx context.Context) error {
	p, err := e.currentPaginator()
	if err != nil {
		return err
	}
	return p.FetchOlder(ctx)
}

// FetchNewer extends the window toward the present, returning the boundary
// anchor id for scroll positioning.
func (e *Engine) FetchNewer(ctx context.Context) (string, error) {
	p, err := e.currentPaginator()
	if err != nil {
		return "", err
	}
	return p.FetchNewer(ctx)
}

// SendText sends a text message in the open conversation.
func (e *Engine) SendText(ctx context.Context, body string) (chat.Message, error) {
	active := e.cache.Active()
	if active == "" {
		return chat.Message{}, ErrNoActiveConversation
	}
	return e.sender.SendText(ctx, active, body)
}

// SendAttachments sends files plus an optional caption in the open
// conversation.
func (e *Engine) SendAttachments(ctx context.Context, files []transport.Upload, caption string) (chat.Message, error) {
	active := e.cache.Active()
	if active == "" {
		return chat.Message{}, ErrNoActiveConversation
	}
	return e.sender.SendAttachments(ctx, active, files, caption)
}

// Search updates the debounced search term for the open conversation.
func (e *Engine) Search(ctx context.Context, term string) error {
	active := e.cache.Active()
	if active == "" {
		return ErrNoActiveConversation
	}
	e.search.SetQuery(ctx, active, term)
	return nil
}

// JumpTo repositions the window onto a resolved search hit.
func (e *Engine) JumpTo(ctx context.Context, hit chat.SearchHit) error {
	active := e.cache.Active()
	if active == "" {
		return ErrNoActiveConversation
	}
	return e.search.JumpTo(ctx, active, hit)
}

// Highlight returns the current search highlight anchor, if any.
func (e *Engine) Highlight() string {
	return e.search.Highlight()
}
