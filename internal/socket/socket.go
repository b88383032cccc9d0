// Package socket maintains the push-event subscription to the chat backend.
// It dials the websocket, decodes the event envelopes, and republishes them
// as typed domain events on the bus; the engine itself never sees the wire.
package socket

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/chat"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// envelope is the wire format for all push events.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type messagePayload struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	Sender      string    `json:"sender"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Attachments []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
		Size     int64  `json:"size"`
	} `json:"attachments,omitempty"`
}

type readPayload struct {
	SessionID  string   `json:"session_id"`
	MessageIDs []string `json:"message_ids"`
}

type presencePayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// Listener dials the socket endpoint and pumps events onto the bus until
// stopped, reconnecting with jittered exponential backoff.
type Listener struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *Machine
	logger  *zap.Logger
	cancel  context.CancelFunc

	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewListener creates a socket listener.
func NewListener(url, token string, b *bus.Bus, machine *Machine, logger *zap.Logger) *Listener {
	return &Listener{
		url:       url,
		token:     token,
		bus:       b,
		machine:   machine,
		logger:    logger,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
	}
}

// Start begins the connect/read/reconnect loop in the background.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop tears the connection down.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Listener) run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		_ = l.machine.Transition(Connecting)

		conn, _, err := websocket.Dial(ctx, l.url+"?token="+l.token, nil)
		if err != nil {
			l.logger.Warn("socket dial failed", zap.Error(err))
			_ = l.machine.Transition(Reconnecting)
			if !sleep(ctx, nextDelay(l.baseDelay, l.maxDelay, attempt)) {
				break
			}
			attempt++
			continue
		}

		attempt = 0
		_ = l.machine.Transition(Connected)
		l.bus.Emit(bus.KindSocketConnected, nil)
		l.logger.Info("socket connected")

		err = l.readLoop(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		l.bus.Emit(bus.KindSocketDisconnected, nil)

		if ctx.Err() != nil {
			break
		}
		l.logger.Warn("socket disconnected", zap.Error(err))
		_ = l.machine.Transition(Reconnecting)
		if !sleep(ctx, nextDelay(l.baseDelay, l.maxDelay, attempt)) {
			break
		}
		attempt++
	}
	_ = l.machine.Transition(Disconnected)
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			l.logger.Debug("dropping undecodable frame", zap.Error(err))
			continue
		}
		l.dispatch(env)
	}
}

// dispatch maps a wire envelope to its bus event. Envelopes missing their
// expected fields are dropped here so the reconciler never crashes on them.
func (l *Listener) dispatch(env envelope) {
	switch env.Type {
	case "message.new":
		var p messagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ID == "" || p.ChatID == "" {
			l.logger.Debug("dropping malformed message payload", zap.Error(err))
			return
		}
		msg := chat.Message{
			ID:        p.ID,
			ChatID:    p.ChatID,
			Sender:    p.Sender,
			Body:      p.Body,
			CreatedAt: p.CreatedAt,
		}
		for _, a := range p.Attachments {
			msg.Attachments = append(msg.Attachments, chat.Attachment(a))
		}
		l.bus.Emit(bus.KindSocketMessage, msg)
	case "messages.read":
		var p readPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.SessionID == "" {
			l.logger.Debug("dropping malformed read payload", zap.Error(err))
			return
		}
		l.bus.Emit(bus.KindSocketRead, chat.ReadReceipt{
			SessionID:  p.SessionID,
			MessageIDs: p.MessageIDs,
		})
	case "presence.changed":
		var p presencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID == "" {
			l.logger.Debug("dropping malformed presence payload", zap.Error(err))
			return
		}
		l.bus.Emit(bus.KindSocketPresence, chat.Presence{
			UserID:   p.UserID,
			IsOnline: p.IsOnline,
		})
	default:
		l.logger.Debug("ignoring unknown event type", zap.String("type", env.Type))
	}
}

func nextDelay(base, max time.Duration, attempt int) time.Duration {
	jitter := time.Duration(rand.Float64() * float64(base) * 0.5)
	return time.Duration(math.Min(
		float64(base)*math.Pow(2, float64(attempt))+float64(jitter),
		float64(max),
	))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
