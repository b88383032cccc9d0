// Package paginate drives bidirectional history loading for one open
// conversation: older pages extend the bottom of the window, newer pages
// the top.
package paginate

import (
	"context"
	"fmt"
	"sync"

	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Controller tracks the older and newer cursors for a single conversation.
// Cursors are derived from the cached window, so a failed fetch leaves them
// untouched and retrying is always safe. At most one fetch per direction is
// in flight; concurrent calls coalesce into the outstanding one.
type Controller struct {
	chatID string
	limit  int
	cache  *cache.Store
	client transport.Client
	logger *zap.Logger

	mu            sync.Mutex
	olderInFlight bool
	newerInFlight bool
}

// New creates a controller for one conversation.
func New(chatID string, limit int, c *cache.Store, client transport.Client, logger *zap.Logger) *Controller {
	if limit <= 0 {
		limit = 20
	}
	return &Controller{
		chatID: chatID,
		limit:  limit,
		cache:  c,
		client: client,
		logger: logger,
	}
}

// ChatID returns the conversation this controller paginates.
func (c *Controller) ChatID() string {
	return c.chatID
}

// HasMoreOlder reports whether older history remains. An empty window
// counts as having more: nothing has been loaded yet.
func (c *Controller) HasMoreOlder() bool {
	return c.olderParam() != 0
}

// HasMoreNewer reports whether newer history exists above the window, which
// only happens after a search jump repositioned it into the past.
func (c *Controller) HasMoreNewer() bool {
	return c.newerParam() != 0
}

// olderParam returns the next page index toward the past, or 0 when
// exhausted. With nothing loaded the first page is 1.
func (c *Controller) olderParam() int {
	pm, ok := c.cache.Get(c.chatID)
	if !ok || len(pm.Pages) == 0 {
		return 1
	}
	return pm.Pages[len(pm.Pages)-1].NextPage
}

// newerParam returns the next page index toward the present, or 0.
func (c *Controller) newerParam() int {
	pm, ok := c.cache.Get(c.chatID)
	if !ok || len(pm.Pages) == 0 {
		return 0
	}
	return pm.Pages[0].PrevPage
}

// FetchOlder loads the next older page and appends it to the window.
// A call while a fetch is outstanding, or with history exhausted, is a
// no-op. A response arriving after the conversation was switched away is
// discarded.
func (c *Controller) FetchOlder(ctx context.Context) error {
	c.mu.Lock()
	if c.olderInFlight {
		c.mu.Unlock()
		return nil
	}
	param := c.olderParam()
	if param == 0 {
		c.mu.Unlock()
		return nil
	}
	c.olderInFlight = true
	c.mu.Unlock()

	page, err := c.client.FetchPage(ctx, c.chatID, param, c.limit)

	c.mu.Lock()
	c.olderInFlight = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("older page fetch failed",
			zap.String("chat_id", c.chatID), zap.Int("page", param), zap.Error(err))
		return fmt.Errorf("fetch older page %d: %w", param, err)
	}
	if c.cache.Active() != c.chatID {
		c.logger.Debug("dropping stale older page",
			zap.String("chat_id", c.chatID), zap.Int("page", param))
		return nil
	}

	c.cache.AppendPage(c.chatID, param, page)
	return nil
}

// FetchNewer loads the next newer page and prepends it to the window. On
// success it returns the id of the last item of the new page so the caller
// can anchor scroll position exactly at the boundary between old and new
// content. Returns "" when there is nothing newer or the call coalesced.
func (c *Controller) FetchNewer(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.newerInFlight {
		c.mu.Unlock()
		return "", nil
	}
	param := c.newerParam()
	if param == 0 {
		c.mu.Unlock()
		return "", nil
	}
	c.newerInFlight = true
	c.mu.Unlock()

	page, err := c.client.FetchPage(ctx, c.chatID, param, c.limit)

	c.mu.Lock()
	c.newerInFlight = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("newer page fetch failed",
			zap.String("chat_id", c.chatID), zap.Int("page", param), zap.Error(err))
		return "", fmt.Errorf("fetch newer page %d: %w", param, err)
	}
	if c.cache.Active() != c.chatID {
		c.logger.Debug("dropping stale newer page",
			zap.String("chat_id", c.chatID), zap.Int("page", param))
		return "", nil
	}

	c.cache.PrependPage(c.chatID, param, page)
	return anchorID(page), nil
}

// anchorID is the boundary item of a freshly prepended page: its last
// (oldest) item sits directly above the previously loaded content.
func anchorID(page chat.Page) string {
	if len(page.Items) == 0 {
		return ""
	}
	return page.Items[len(page.Items)-1].ID
}
