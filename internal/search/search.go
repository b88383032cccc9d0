// Package search holds the in-conversation search state and the jump
// algorithm that repositions the loaded window onto a search result.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Window is the live search state for the open conversation. It exists only
// while a search term is active and is cleared on conversation switch or
// explicit close.
type Window struct {
	Query       string
	Hits        []chat.SearchHit
	ActiveHit   chat.SearchHit
	HighlightID string
}

// Controller debounces search terms, resolves them to hits via the
// transport, and performs jumps.
type Controller struct {
	cache    *cache.Store
	client   transport.Client
	bus      *bus.Bus
	logger   *zap.Logger
	limit    int
	debounce time.Duration

	mu     sync.Mutex
	window *Window
	timer  *time.Timer
}

// New creates a search controller. limit is the page size used when
// fetching the jump target page; debounce delays hit resolution after the
// term last changed.
func New(c *cache.Store, client transport.Client, b *bus.Bus, logger *zap.Logger, limit int, debounce time.Duration) *Controller {
	if limit <= 0 {
		limit = 20
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Controller{
		cache:    c,
		client:   client,
		bus:      b,
		logger:   logger,
		limit:    limit,
		debounce: debounce,
	}
}

// SetQuery updates the search term for the given conversation. A non-empty
// term schedules debounced hit resolution; an empty term clears the window,
// so no stale highlight survives a search reset.
func (c *Controller) SetQuery(ctx context.Context, chatID, term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if term == "" {
		c.window = nil
		return
	}
	if c.window == nil {
		c.window = &Window{}
	}
	c.window.Query = term
	c.window.HighlightID = ""

	c.timer = time.AfterFunc(c.debounce, func() {
		c.resolve(ctx, chatID, term)
	})
}

func (c *Controller) resolve(ctx context.Context, chatID, term string) {
	hits, err := c.client.SearchMessages(ctx, chatID, term)
	if err != nil {
		c.logger.Warn("search failed",
			zap.String("chat_id", chatID), zap.String("term", term), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window == nil || c.window.Query != term {
		return
	}
	c.window.Hits = hits
	if c.bus != nil {
		c.bus.Emit(bus.KindSearchResults, hits)
	}
}

// JumpTo repositions the cache window onto the page carrying the hit. The
// page is fetched fresh from the transport, the previously loaded pages are
// discarded, and the hit becomes the highlight anchor. Normal pagination
// re-extends from the new single-page window afterwards.
func (c *Controller) JumpTo(ctx context.Context, chatID string, hit chat.SearchHit) error {
	page, err := c.client.FetchPage(ctx, chatID, hit.Page, c.limit)
	if err != nil {
		return fmt.Errorf("fetch jump page %d: %w", hit.Page, err)
	}
	if c.cache.Active() != chatID {
		c.logger.Debug("dropping stale jump page",
			zap.String("chat_id", chatID), zap.Int("page", hit.Page))
		return nil
	}

	// The target page was fetched outside the normal cursor flow, so its
	// neighbors are derived from its position: older pages exist while the
	// page's start offset is within the total, newer ones above page 1.
	if (hit.Page-1)*c.limit < page.Total {
		page.NextPage = hit.Page + 1
	} else {
		page.NextPage = 0
	}
	if hit.Page > 1 {
		page.PrevPage = hit.Page - 1
	} else {
		page.PrevPage = 0
	}

	c.cache.Replace(chatID, chat.PaginatedMessages{
		Pages:      []chat.Page{page},
		PageParams: []int{hit.Page},
	})

	c.mu.Lock()
	if c.window == nil {
		c.window = &Window{}
	}
	c.window.ActiveHit = hit
	c.window.HighlightID = hit.MessageID
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Emit(bus.KindSearchJump, hit)
	}
	return nil
}

// Highlight returns the message id to highlight for the current render
// cycle, or "" when no jump is active. Clearing it on the next interaction
// is the caller's responsibility, via ClearHighlight.
func (c *Controller) Highlight() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window == nil {
		return ""
	}
	return c.window.HighlightID
}

// ClearHighlight drops the highlight anchor but keeps the search active.
func (c *Controller) ClearHighlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window != nil {
		c.window.HighlightID = ""
	}
}

// Snapshot returns a copy of the current window, or nil when no search is
// active.
func (c *Controller) Snapshot() *Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window == nil {
		return nil
	}
	w := *c.window
	w.Hits = append([]chat.SearchHit(nil), c.window.Hits...)
	return &w
}

// Clear drops the whole search state. Called on conversation switch and
// explicit close.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.window = nil
}
