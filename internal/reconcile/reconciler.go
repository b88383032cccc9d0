// Package reconcile merges socket-delivered push events into the message
// cache and the conversation summaries without violating uniqueness or
// ordering invariants.
package reconcile

import (
	"context"

	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Reconciler consumes "socket.*" events from the bus in delivery order and
// applies each one's merge rule. It performs no causal buffering: an event
// for a conversation that is not loaded only touches the denormalized
// summary fields it is defined to update, and is otherwise dropped.
type Reconciler struct {
	cache  *cache.Store
	client transport.Client
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// New creates a reconciler.
func New(c *cache.Store, client transport.Client, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cache:  c,
		client: client,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to socket events on the bus and applies them until the
// context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("socket.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reconciler loop.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Reconciler) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindSocketMessage:
		msg, ok := evt.Payload.(chat.Message)
		if !ok || msg.ID == "" || msg.ChatID == "" {
			r.logger.Debug("dropping malformed message event")
			return
		}
		r.ApplyNewMessage(ctx, msg)
	case bus.KindSocketRead:
		receipt, ok := evt.Payload.(chat.ReadReceipt)
		if !ok {
			r.logger.Debug("dropping malformed read event")
			return
		}
		r.ApplyRead(receipt)
	case bus.KindSocketPresence:
		presence, ok := evt.Payload.(chat.Presence)
		if !ok || presence.UserID == "" {
			r.logger.Debug("dropping malformed presence event")
			return
		}
		r.ApplyPresence(presence)
	}
}

// ApplyNewMessage merges an inbound message. For the active conversation it
// is prepended to page 0 with IsOwn forced false (own sends never come back
// through this channel) and a read receipt is emitted, since the user is
// viewing the conversation. For any other conversation only the summary's
// last message and unread counter change; the history loads lazily on open.
func (r *Reconciler) ApplyNewMessage(ctx context.Context, msg chat.Message) {
	msg.IsOwn = false
	active := msg.ChatID == r.cache.Active()

	if active {
		r.cache.PrependMessage(msg.ChatID, msg)
	}

	if !r.cache.MutateSummary(msg.ChatID, func(sum chat.ConversationSummary) chat.ConversationSummary {
		sum.LastMessage = msg
		if !active {
			sum.Unread++
		}
		return sum
	}) {
		sum := chat.ConversationSummary{
			ID:          msg.ChatID,
			Recipient:   chat.Recipient{ID: msg.Sender},
			LastMessage: msg,
			Status:      chat.ConversationOpen,
		}
		if !active {
			sum.Unread = 1
		}
		r.cache.AddSummary(sum)
	}

	if active {
		go func() {
			if err := r.client.MarkRead(ctx, msg.ChatID); err != nil {
				r.logger.Warn("read receipt emission failed",
					zap.String("chat_id", msg.ChatID), zap.Error(err))
			}
		}()
	}
}

// ApplyRead marks every own message in the active conversation as read and
// updates any summary whose denormalized last message is named by the
// receipt. Applying the same receipt twice leaves state unchanged.
func (r *Reconciler) ApplyRead(receipt chat.ReadReceipt) {
	if active := r.cache.Active(); active != "" {
		r.cache.MutateAllPages(active, func(items []chat.Message) []chat.Message {
			for i, m := range items {
				if m.IsOwn {
					items[i].DeliveryStatus = chat.StatusRead
				}
			}
			return items
		})
	}

	ids := make(map[string]struct{}, len(receipt.MessageIDs))
	for _, id := range receipt.MessageIDs {
		ids[id] = struct{}{}
	}
	r.cache.MutateSummaries(func(sum chat.ConversationSummary) chat.ConversationSummary {
		if _, ok := ids[sum.LastMessage.ID]; ok {
			sum.LastMessage.DeliveryStatus = chat.StatusRead
		}
		return sum
	})
}

// ApplyPresence flips the online flag of the active conversation's
// recipient when it matches the event's user. Anything else is a no-op.
func (r *Reconciler) ApplyPresence(p chat.Presence) {
	active := r.cache.Active()
	if active == "" {
		return
	}
	r.cache.MutateSummary(active, func(sum chat.ConversationSummary) chat.ConversationSummary {
		if sum.Recipient.ID == p.UserID {
			sum.Recipient.IsOnline = p.IsOnline
		}
		return sum
	})
}
