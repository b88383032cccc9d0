// Package transport defines the narrow interface the engine uses to reach
// the chat backend, plus the HTTP implementation of it. The engine never
// assumes anything about the wire beyond this interface.
package transport

import (
	"context"

	"github.com/velacare/chatsync/internal/chat"
)

// Upload is one file handed to UploadAttachments.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Client is the backend collaborator. Any fetch failure is recoverable;
// retrying the same call is always safe.
type Client interface {
	// FetchPage returns one window of a conversation's history,
	// newest-first, 1-based page index.
	FetchPage(ctx context.Context, chatID string, page, limit int) (chat.Page, error)

	// SendText submits a text message and returns the server-confirmed copy.
	SendText(ctx context.Context, chatID, body string) (chat.Message, error)

	// UploadAttachments submits files plus an optional caption as a single
	// message and returns the server-confirmed copy with resolved URLs.
	UploadAttachments(ctx context.Context, chatID string, files []Upload, caption string) (chat.Message, error)

	// MarkRead reports that the local user has read the session.
	MarkRead(ctx context.Context, sessionID string) error

	// ListConversations returns the conversation list summaries.
	ListConversations(ctx context.Context) ([]chat.ConversationSummary, error)

	// SearchMessages resolves a search term to hits carrying the absolute
	// page each match lives on.
	SearchMessages(ctx context.Context, chatID, term string) ([]chat.SearchHit, error)
}
