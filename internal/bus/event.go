package bus

import "time"

// Event kinds published within the engine. Subscribers filter by
// namespace prefix, e.g. "socket." receives every socket-delivered event.
const (
	KindSocketMessage      = "socket.message"
	KindSocketRead         = "socket.read"
	KindSocketPresence     = "socket.presence"
	KindSocketConnected    = "socket.connected"
	KindSocketDisconnected = "socket.disconnected"
	KindSocketStateChanged = "socket.state_changed"

	KindCacheUpdated      = "cache.updated"
	KindMessageSent       = "message.sent"
	KindMessageSendFailed = "message.send_failed"
	KindSearchJump        = "search.jump"
	KindSearchResults     = "search.results"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
