package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velacare/chatsync/internal/chat"
)

const defaultTimeout = 30 * time.Second

// HTTPClient talks to the chat backend over JSON/HTTP. IsOwn is derived at
// decode time by comparing the sender against the configured local user id.
type HTTPClient struct {
	baseURL string
	token   string
	userID  string
	hc      *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *HTTPClient) { c.token = token }
}

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.hc.Timeout = d }
}

// NewHTTPClient creates a backend client. userID is the local user's id,
// used to mark own messages at insertion time.
func NewHTTPClient(baseURL, userID string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		hc:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type wireMessage struct {
	ID             string           `json:"id"`
	ChatID         string           `json:"chat_id"`
	Sender         string           `json:"sender"`
	Body           string           `json:"body"`
	CreatedAt      time.Time        `json:"created_at"`
	DeliveryStatus string           `json:"delivery_status,omitempty"`
	Attachments    []wireAttachment `json:"attachments,omitempty"`
}

type wirePage struct {
	Items    []wireMessage `json:"items"`
	Total    int           `json:"total"`
	NextPage int           `json:"next_page"`
	PrevPage int           `json:"prev_page"`
}

type wireRecipient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsOnline bool   `json:"is_online"`
}

type wireSummary struct {
	ID          string        `json:"id"`
	Recipient   wireRecipient `json:"recipient"`
	LastMessage *wireMessage  `json:"last_message,omitempty"`
	Unread      int           `json:"unread"`
	Status      string        `json:"status"`
}

type wireHit struct {
	MessageID string `json:"message_id"`
	Page      int    `json:"page"`
}

func (c *HTTPClient) toMessage(w wireMessage) chat.Message {
	m := chat.Message{
		ID:             w.ID,
		ChatID:         w.ChatID,
		Sender:         w.Sender,
		Body:           w.Body,
		CreatedAt:      w.CreatedAt,
		DeliveryStatus: chat.DeliveryStatus(w.DeliveryStatus),
		IsOwn:          w.Sender != "" && w.Sender == c.userID,
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, chat.Attachment(a))
	}
	return m
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// FetchPage implements Client.
func (c *HTTPClient) FetchPage(ctx context.Context, chatID string, page, limit int) (chat.Page, error) {
	data, err := c.doRequest(ctx, http.MethodGet,
		"/v1/chats/"+url.PathEscape(chatID)+"/messages", nil,
		map[string]string{"page": strconv.Itoa(page), "limit": strconv.Itoa(limit)})
	if err != nil {
		return chat.Page{}, err
	}
	var wp wirePage
	if err := json.Unmarshal(data, &wp); err != nil {
		return chat.Page{}, fmt.Errorf("decode page: %w", err)
	}
	p := chat.Page{Total: wp.Total, NextPage: wp.NextPage, PrevPage: wp.PrevPage}
	for _, wm := range wp.Items {
		p.Items = append(p.Items, c.toMessage(wm))
	}
	return p, nil
}

// SendText implements Client.
func (c *HTTPClient) SendText(ctx context.Context, chatID, body string) (chat.Message, error) {
	data, err := c.doRequest(ctx, http.MethodPost,
		"/v1/chats/"+url.PathEscape(chatID)+"/messages",
		map[string]string{"body": body}, nil)
	if err != nil {
		return chat.Message{}, err
	}
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return chat.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return c.toMessage(wm), nil
}

// UploadAttachments implements Client. Files and caption go up as one
// multipart request and come back as a single confirmed message.
func (c *HTTPClient) UploadAttachments(ctx context.Context, chatID string, files []Upload, caption string) (chat.Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return chat.Message{}, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return chat.Message{}, fmt.Errorf("write form file: %w", err)
		}
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return chat.Message{}, fmt.Errorf("write caption: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return chat.Message{}, fmt.Errorf("close multipart: %w", err)
	}

	u := c.baseURL + "/v1/chats/" + url.PathEscape(chatID) + "/attachments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return chat.Message{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return chat.Message{}, fmt.Errorf("upload attachments: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Message{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chat.Message{}, fmt.Errorf("upload attachments: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return chat.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return c.toMessage(wm), nil
}

// MarkRead implements Client.
func (c *HTTPClient) MarkRead(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost,
		"/v1/sessions/"+url.PathEscape(sessionID)+"/read", nil, nil)
	return err
}

// ListConversations implements Client.
func (c *HTTPClient) ListConversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v1/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	var list []wireSummary
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]chat.ConversationSummary, 0, len(list))
	for _, ws := range list {
		sum := chat.ConversationSummary{
			ID:        ws.ID,
			Recipient: chat.Recipient(ws.Recipient),
			Unread:    ws.Unread,
			Status:    chat.ConversationStatus(ws.Status),
		}
		if ws.LastMessage != nil {
			sum.LastMessage = c.toMessage(*ws.LastMessage)
		}
		out = append(out, sum)
	}
	return out, nil
}

// SearchMessages implements Client.
func (c *HTTPClient) SearchMessages(ctx context.Context, chatID, term string) ([]chat.SearchHit, error) {
	data, err := c.doRequest(ctx, http.MethodGet,
		"/v1/chats/"+url.PathEscape(chatID)+"/messages/search", nil,
		map[string]string{"q": term})
	if err != nil {
		return nil, err
	}
	var hits []wireHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, fmt.Errorf("decode search hits: %w", err)
	}
	out := make([]chat.SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, chat.SearchHit(h))
	}
	return out, nil
}
