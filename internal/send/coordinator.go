// Package send submits composed messages and folds the server-confirmed
// copies into the cache. There is no optimistic placeholder: the send is
// synchronous and the message appears only once the server confirms it, so
// a failure leaves the compose state untouched for retry.
package send

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport"
	"go.uber.org/zap"
)

// ErrSendInFlight is returned when a send for the same conversation has not
// finished yet.
var ErrSendInFlight = errors.New("send already in flight for conversation")

// Coordinator serializes sends per conversation. The in-flight guard lives
// here rather than at the call site, so rapid double-submits are rejected
// even if the UI forgets to disable its trigger.
type Coordinator struct {
	cache  *cache.Store
	client transport.Client
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a send coordinator.
func New(c *cache.Store, client transport.Client, b *bus.Bus, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cache:    c,
		client:   client,
		bus:      b,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

func (c *Coordinator) begin(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[chatID] {
		return ErrSendInFlight
	}
	c.inFlight[chatID] = true
	return nil
}

func (c *Coordinator) end(chatID string) {
	c.mu.Lock()
	delete(c.inFlight, chatID)
	c.mu.Unlock()
}

// SendText submits a text-only message. On success the server-confirmed
// message is prepended to page 0 with IsOwn set; its delivery status stays
// unset until a read receipt arrives.
func (c *Coordinator) SendText(ctx context.Context, chatID, body string) (chat.Message, error) {
	if err := c.begin(chatID); err != nil {
		return chat.Message{}, err
	}
	defer c.end(chatID)

	clientID := uuid.NewString()
	msg, err := c.client.SendText(ctx, chatID, body)
	if err != nil {
		c.logger.Error("text send failed",
			zap.String("chat_id", chatID), zap.String("client_id", clientID), zap.Error(err))
		c.bus.Emit(bus.KindMessageSendFailed, Failure{ChatID: chatID, ClientID: clientID, Reason: err.Error()})
		return chat.Message{}, fmt.Errorf("send text: %w", err)
	}

	c.confirm(chatID, clientID, msg)
	return msg, nil
}

// SendAttachments submits one or more files plus an optional caption as a
// single message. The caller clears its file selection and compose text
// only when this returns nil.
func (c *Coordinator) SendAttachments(ctx context.Context, chatID string, files []transport.Upload, caption string) (chat.Message, error) {
	if err := c.begin(chatID); err != nil {
		return chat.Message{}, err
	}
	defer c.end(chatID)

	clientID := uuid.NewString()
	msg, err := c.client.UploadAttachments(ctx, chatID, files, caption)
	if err != nil {
		c.logger.Error("attachment send failed",
			zap.String("chat_id", chatID), zap.String("client_id", clientID),
			zap.Int("files", len(files)), zap.Error(err))
		c.bus.Emit(bus.KindMessageSendFailed, Failure{ChatID: chatID, ClientID: clientID, Reason: err.Error()})
		return chat.Message{}, fmt.Errorf("send attachments: %w", err)
	}

	c.confirm(chatID, clientID, msg)
	return msg, nil
}

func (c *Coordinator) confirm(chatID, clientID string, msg chat.Message) {
	msg.ChatID = chatID
	msg.IsOwn = true

	if c.cache.Active() == chatID {
		c.cache.PrependMessage(chatID, msg)
	}
	c.cache.MutateSummary(chatID, func(sum chat.ConversationSummary) chat.ConversationSummary {
		sum.LastMessage = msg
		return sum
	})

	c.logger.Info("message sent",
		zap.String("chat_id", chatID), zap.String("client_id", clientID),
		zap.String("msg_id", msg.ID))
	c.bus.Emit(bus.KindMessageSent, Confirmation{ChatID: chatID, ClientID: clientID, MessageID: msg.ID})
}

// Confirmation is the bus payload for a successful send.
type Confirmation struct {
	ChatID    string
	ClientID  string
	MessageID string
}

// Failure is the bus payload for a failed send.
type Failure struct {
	ChatID   string
	ClientID string
	Reason   string
}
