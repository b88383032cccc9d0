// Package transporttest provides a configurable in-memory transport.Client
// for engine tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport"
)

// FetchCall records one FetchPage invocation.
type FetchCall struct {
	ChatID string
	Page   int
	Limit  int
}

// Fake implements transport.Client. Unset function fields return zero
// values and no error. All invocations are recorded.
type Fake struct {
	mu sync.Mutex

	FetchPageFn         func(ctx context.Context, chatID string, page, limit int) (chat.Page, error)
	SendTextFn          func(ctx context.Context, chatID, body string) (chat.Message, error)
	UploadAttachmentsFn func(ctx context.Context, chatID string, files []transport.Upload, caption string) (chat.Message, error)
	MarkReadFn          func(ctx context.Context, sessionID string) error
	ListConversationsFn func(ctx context.Context) ([]chat.ConversationSummary, error)
	SearchMessagesFn    func(ctx context.Context, chatID, term string) ([]chat.SearchHit, error)

	fetchCalls    []FetchCall
	markReadCalls []string
	sendCalls     []string
}

var _ transport.Client = (*Fake)(nil)

// FetchPage implements transport.Client.
func (f *Fake) FetchPage(ctx context.Context, chatID string, page, limit int) (chat.Page, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, FetchCall{ChatID: chatID, Page: page, Limit: limit})
	f.mu.Unlock()
	if f.FetchPageFn != nil {
		return f.FetchPageFn(ctx, chatID, page, limit)
	}
	return chat.Page{}, nil
}

// SendText implements transport.Client.
func (f *Fake) SendText(ctx context.Context, chatID, body string) (chat.Message, error) {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, body)
	f.mu.Unlock()
	if f.SendTextFn != nil {
		return f.SendTextFn(ctx, chatID, body)
	}
	return chat.Message{}, nil
}

// UploadAttachments implements transport.Client.
func (f *Fake) UploadAttachments(ctx context.Context, chatID string, files []transport.Upload, caption string) (chat.Message, error) {
	if f.UploadAttachmentsFn != nil {
		return f.UploadAttachmentsFn(ctx, chatID, files, caption)
	}
	return chat.Message{}, nil
}

// MarkRead implements transport.Client.
func (f *Fake) MarkRead(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	f.markReadCalls = append(f.markReadCalls, sessionID)
	f.mu.Unlock()
	if f.MarkReadFn != nil {
		return f.MarkReadFn(ctx, sessionID)
	}
	return nil
}

// ListConversations implements transport.Client.
func (f *Fake) ListConversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	if f.ListConversationsFn != nil {
		return f.ListConversationsFn(ctx)
	}
	return nil, nil
}

// SearchMessages implements transport.Client.
func (f *Fake) SearchMessages(ctx context.Context, chatID, term string) ([]chat.SearchHit, error) {
	if f.SearchMessagesFn != nil {
		return f.SearchMessagesFn(ctx, chatID, term)
	}
	return nil, nil
}

// FetchCalls returns the recorded FetchPage invocations.
func (f *Fake) FetchCalls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.fetchCalls...)
}

// MarkReadCalls returns the recorded MarkRead session ids.
func (f *Fake) MarkReadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markReadCalls...)
}

// SendCalls returns the recorded SendText bodies.
func (f *Fake) SendCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sendCalls...)
}
