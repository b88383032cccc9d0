package paginate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/chat"
	"github.com/velacare/chatsync/internal/transport/transporttest"
	"go.uber.org/zap"
)

// serverPage builds the page a backend would serve for a conversation of
// `total` messages m1..mN, newest-first, 1-based page index.
func serverPage(chatID string, total, limit, p int) chat.Page {
	start := total - (p-1)*limit
	var items []chat.Message
	for i := 0; i < limit && start-i >= 1; i++ {
		items = append(items, chat.Message{ID: fmt.Sprintf("m%d", start-i), ChatID: chatID})
	}
	pg := chat.Page{Items: items, Total: total}
	if p*limit < total {
		pg.NextPage = p + 1
	}
	if p > 1 {
		pg.PrevPage = p - 1
	}
	return pg
}

func pagingFake(total int) *transporttest.Fake {
	return &transporttest.Fake{
		FetchPageFn: func(_ context.Context, chatID string, page, limit int) (chat.Page, error) {
			return serverPage(chatID, total, limit, page), nil
		},
	}
}

func newTestController(t *testing.T, total int) (*Controller, *cache.Store, *transporttest.Fake) {
	t.Helper()
	s := cache.New(nil)
	s.SetActive("c1")
	fake := pagingFake(total)
	return New("c1", 20, s, fake, zap.NewNop()), s, fake
}

func TestFetchOlderFirstPage(t *testing.T) {
	ctrl, s, _ := newTestController(t, 45)

	if err := ctrl.FetchOlder(context.Background()); err != nil {
		t.Fatal(err)
	}

	pm, ok := s.Get("c1")
	if !ok {
		t.Fatal("window not created")
	}
	if len(pm.Pages[0].Items) != 20 {
		t.Errorf("got %d items, want 20", len(pm.Pages[0].Items))
	}
	if pm.Pages[0].Total != 45 {
		t.Errorf("total = %d, want 45", pm.Pages[0].Total)
	}
	if !ctrl.HasMoreOlder() {
		t.Error("HasMoreOlder() = false, want true")
	}
}

func TestFetchOlderPageParamsStrictlyIncreasing(t *testing.T) {
	ctrl, s, fake := newTestController(t, 45)

	// 45 messages at limit 20 is three pages; further calls are no-ops.
	for i := 0; i < 5; i++ {
		if err := ctrl.FetchOlder(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	pm, _ := s.Get("c1")
	if len(pm.PageParams) != 3 {
		t.Fatalf("pageParams = %v, want 3 entries", pm.PageParams)
	}
	for i := 1; i < len(pm.PageParams); i++ {
		if pm.PageParams[i] <= pm.PageParams[i-1] {
			t.Fatalf("pageParams not strictly increasing: %v", pm.PageParams)
		}
	}
	if ctrl.HasMoreOlder() {
		t.Error("HasMoreOlder() = true after exhaustion")
	}
	if calls := fake.FetchCalls(); len(calls) != 3 {
		t.Errorf("got %d fetches, want 3 (exhausted calls must not hit the transport)", len(calls))
	}
}

func TestFetchOlderCoalesced(t *testing.T) {
	s := cache.New(nil)
	s.SetActive("c1")
	entered := make(chan struct{})
	release := make(chan struct{})
	fake := &transporttest.Fake{
		FetchPageFn: func(_ context.Context, chatID string, page, limit int) (chat.Page, error) {
			close(entered)
			<-release
			return serverPage(chatID, 45, limit, page), nil
		},
	}
	ctrl := New("c1", 20, s, fake, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ctrl.FetchOlder(context.Background())
	}()

	// With the first fetch parked inside the transport, further calls must
	// coalesce into it and return immediately.
	<-entered
	if err := ctrl.FetchOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.FetchOlder(context.Background()); err != nil {
		t.Fatal(err)
	}

	close(release)
	wg.Wait()

	if calls := fake.FetchCalls(); len(calls) != 1 {
		t.Errorf("got %d fetches for concurrent calls, want 1 (coalesced)", len(calls))
	}
}

func TestFetchOlderFailureKeepsCursor(t *testing.T) {
	s := cache.New(nil)
	s.SetActive("c1")
	fail := true
	fake := &transporttest.Fake{
		FetchPageFn: func(_ context.Context, chatID string, page, limit int) (chat.Page, error) {
			if fail {
				return chat.Page{}, errors.New("boom")
			}
			return serverPage(chatID, 45, limit, page), nil
		},
	}
	ctrl := New("c1", 20, s, fake, zap.NewNop())

	if err := ctrl.FetchOlder(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if pm, ok := s.Get("c1"); ok && len(pm.Pages) != 0 {
		t.Error("failed fetch mutated the window")
	}

	// Retry targets the same page and succeeds.
	fail = false
	if err := ctrl.FetchOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := fake.FetchCalls()
	if len(calls) != 2 || calls[0].Page != 1 || calls[1].Page != 1 {
		t.Errorf("calls = %v, want page 1 twice", calls)
	}
}

func TestFetchOlderStaleResponseDropped(t *testing.T) {
	s := cache.New(nil)
	s.SetActive("c1")
	fake := &transporttest.Fake{
		FetchPageFn: func(_ context.Context, chatID string, page, limit int) (chat.Page, error) {
			// User switches conversations while the fetch is in flight.
			s.SetActive("c2")
			return serverPage(chatID, 45, limit, page), nil
		},
	}
	ctrl := New("c1", 20, s, fake, zap.NewNop())

	if err := ctrl.FetchOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pm, ok := s.Get("c1"); ok && len(pm.Pages) != 0 {
		t.Error("stale response was applied to the cache")
	}
}

func TestFetchNewerAnchor(t *testing.T) {
	ctrl, s, _ := newTestController(t, 45)

	// Window positioned in the past, as after a search jump to page 3.
	jump := serverPage("c1", 45, 20, 3)
	s.Replace("c1", chat.PaginatedMessages{Pages: []chat.Page{jump}, PageParams: []int{3}})

	if !ctrl.HasMoreNewer() {
		t.Fatal("HasMoreNewer() = false, want true after jump into the past")
	}

	anchor, err := ctrl.FetchNewer(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	pm, _ := s.Get("c1")
	if len(pm.PageParams) != 2 || pm.PageParams[0] != 2 || pm.PageParams[1] != 3 {
		t.Fatalf("pageParams = %v, want [2 3]", pm.PageParams)
	}
	// The anchor is the oldest item of the new page: the boundary with the
	// previously loaded content.
	newPage := pm.Pages[0]
	if want := newPage.Items[len(newPage.Items)-1].ID; anchor != want {
		t.Errorf("anchor = %q, want %q", anchor, want)
	}
}

func TestFetchNewerWithoutNewerHistory(t *testing.T) {
	ctrl, _, fake := newTestController(t, 45)

	if err := ctrl.FetchOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	anchor, err := ctrl.FetchNewer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if anchor != "" {
		t.Errorf("anchor = %q, want empty", anchor)
	}
	if calls := fake.FetchCalls(); len(calls) != 1 {
		t.Errorf("got %d fetches, want 1 (no newer history to load)", len(calls))
	}
}
