package chat

import "time"

// DeliveryStatus tracks the Sent -> Delivered -> Read progression of an
// outbound message. The zero value means the server has not reported a
// status yet.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Attachment is a resolved file attached to a message.
type Attachment struct {
	ID       string
	Name     string
	URL      string
	MimeType string
	Size     int64
}

// Message is one message in a conversation. ID is immutable and unique
// within a conversation's cache. IsOwn is computed client-side at insertion
// time and never taken from a later event for messages this client authored.
type Message struct {
	ID             string
	ChatID         string
	Sender         string
	Body           string
	CreatedAt      time.Time
	DeliveryStatus DeliveryStatus
	IsOwn          bool
	Attachments    []Attachment
}

// Page is one fetched window of a conversation's history. Items are ordered
// newest-first within the page. NextPage points toward older history,
// PrevPage toward newer; zero means no page in that direction.
type Page struct {
	Items    []Message
	Total    int
	NextPage int
	PrevPage int
}

// PaginatedMessages is the ordered sequence of loaded pages plus the page
// indices used to fetch them.
type PaginatedMessages struct {
	Pages      []Page
	PageParams []int
}

// Recipient is the display identity of the other party in a conversation.
type Recipient struct {
	ID       string
	Name     string
	IsOnline bool
}

// ConversationSummary is one entry of the conversation list. LastMessage is
// a denormalized copy of the most recent message; its delivery status is
// kept consistent with the authoritative message by read-receipt
// reconciliation.
type ConversationSummary struct {
	ID          string
	Recipient   Recipient
	LastMessage Message
	Unread      int
	Status      ConversationStatus
}

// SearchHit is a resolved search result: the matched message and the
// absolute page it lives on.
type SearchHit struct {
	MessageID string
	Page      int
}

// ReadReceipt is a socket-delivered notification that the recipient has
// read messages in a session.
type ReadReceipt struct {
	SessionID  string
	MessageIDs []string
}

// Presence is a socket-delivered online/offline change for a user.
type Presence struct {
	UserID   string
	IsOnline bool
}
