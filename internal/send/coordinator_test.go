package send

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport"
	"github.com/velacare/chatsync/internal/transport/transporttest"
	"go.uber.org/zap"
)

func newTestCoordinator(fake *transporttest.Fake) (*Coordinator, *cache.Store, *bus.Bus) {
	b := bus.New()
	s := cache.New(nil)
	s.SetActive("c1")
	s.Replace("c1", chat.PaginatedMessages{
		Pages:      []chat.Page{{Items: []chat.Message{{ID: "m1", ChatID: "c1"}}, Total: 1}},
		PageParams: []int{1},
	})
	s.SetSummaries([]chat.ConversationSummary{{ID: "c1"}})
	return New(s, fake, b, zap.NewNop()), s, b
}

func TestSendTextSuccess(t *testing.T) {
	fake := &transporttest.Fake{
		SendTextFn: func(_ context.Context, chatID, body string) (chat.Message, error) {
			return chat.Message{ID: "srv-1", ChatID: chatID, Body: body, CreatedAt: time.Now()}, nil
		},
	}
	coord, s, b := newTestCoordinator(fake)
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	msg, err := coord.SendText(context.Background(), "c1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-1" {
		t.Errorf("msg id = %q, want srv-1", msg.ID)
	}

	pm, _ := s.Get("c1")
	head := pm.Pages[0].Items[0]
	if head.Body != "hello" {
		t.Errorf("body = %q, want hello", head.Body)
	}
	if !head.IsOwn {
		t.Error("confirmed message not marked own")
	}
	// Status stays unset until a read receipt arrives.
	if head.DeliveryStatus != "" {
		t.Errorf("delivery status = %q, want unset", head.DeliveryStatus)
	}

	if sum, _ := s.Summary("c1"); sum.LastMessage.ID != "srv-1" {
		t.Errorf("summary last message = %q, want srv-1", sum.LastMessage.ID)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageSent {
			t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindMessageSent)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sent event")
	}
}

func TestSendTextFailureLeavesCacheUntouched(t *testing.T) {
	fake := &transporttest.Fake{
		SendTextFn: func(_ context.Context, chatID, body string) (chat.Message, error) {
			return chat.Message{}, errors.New("network down")
		},
	}
	coord, s, b := newTestCoordinator(fake)
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	before, _ := s.Get("c1")
	if _, err := coord.SendText(context.Background(), "c1", "hello"); err == nil {
		t.Fatal("expected error")
	}

	after, _ := s.Get("c1")
	if len(after.Pages[0].Items) != len(before.Pages[0].Items) {
		t.Error("failed send mutated the cache")
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageSendFailed {
			t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindMessageSendFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for failure event")
	}

	// The guard releases on failure, so a retry goes through.
	fake.SendTextFn = func(_ context.Context, chatID, body string) (chat.Message, error) {
		return chat.Message{ID: "srv-2", ChatID: chatID, Body: body}, nil
	}
	if _, err := coord.SendText(context.Background(), "c1", "hello"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestSendInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	fake := &transporttest.Fake{
		SendTextFn: func(_ context.Context, chatID, body string) (chat.Message, error) {
			<-release
			return chat.Message{ID: "srv-1", ChatID: chatID, Body: body}, nil
		},
	}
	coord, _, _ := newTestCoordinator(fake)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := coord.SendText(context.Background(), "c1", "first"); err != nil {
			t.Errorf("first send failed: %v", err)
		}
	}()

	// Wait for the first send to take the guard.
	deadline := time.After(time.Second)
	for len(fake.SendCalls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first send never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := coord.SendText(context.Background(), "c1", "second"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("second send error = %v, want ErrSendInFlight", err)
	}

	close(release)
	wg.Wait()
}

func TestSendAttachments(t *testing.T) {
	var gotFiles int
	var gotCaption string
	fake := &transporttest.Fake{
		UploadAttachmentsFn: func(_ context.Context, chatID string, files []transport.Upload, caption string) (chat.Message, error) {
			gotFiles = len(files)
			gotCaption = caption
			return chat.Message{
				ID: "srv-att", ChatID: chatID, Body: caption,
				Attachments: []chat.Attachment{{ID: "a1", URL: "https://files.example.com/a1"}},
			}, nil
		},
	}
	coord, s, _ := newTestCoordinator(fake)

	files := []transport.Upload{
		{Name: "scan.pdf", MimeType: "application/pdf", Data: []byte("pdf")},
		{Name: "photo.jpg", MimeType: "image/jpeg", Data: []byte("jpg")},
	}
	msg, err := coord.SendAttachments(context.Background(), "c1", files, "results")
	if err != nil {
		t.Fatal(err)
	}
	if gotFiles != 2 || gotCaption != "results" {
		t.Errorf("upload got %d files caption %q, want 2/results", gotFiles, gotCaption)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].URL == "" {
		t.Error("confirmed message missing resolved attachment URLs")
	}

	pm, _ := s.Get("c1")
	if head := pm.Pages[0].Items[0]; head.ID != "srv-att" || !head.IsOwn {
		t.Errorf("head = %+v, want own srv-att", head)
	}
}

func TestSendForInactiveConversationSkipsWindow(t *testing.T) {
	fake := &transporttest.Fake{
		SendTextFn: func(_ context.Context, chatID, body string) (chat.Message, error) {
			return chat.Message{ID: "srv-9", ChatID: chatID, Body: body}, nil
		},
	}
	coord, s, _ := newTestCoordinator(fake)
	s.SetSummaries([]chat.ConversationSummary{{ID: "c1"}, {ID: "c2"}})

	if _, err := coord.SendText(context.Background(), "c2", "bg"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("c2"); ok {
		t.Error("send created a window for a conversation that is not open")
	}
	if sum, _ := s.Summary("c2"); sum.LastMessage.ID != "srv-9" {
		t.Error("summary not updated for background send")
	}
}
