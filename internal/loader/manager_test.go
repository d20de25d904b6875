package loader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taglayer/pkg/types"
)

// funcFetcher adapts a func to the Fetcher interface.
type funcFetcher func(ctx context.Context, url string) error

func (f funcFetcher) Fetch(ctx context.Context, url string) error { return f(ctx, url) }

// failNTimes fails the first n fetches per URL, then succeeds.
func failNTimes(n int) Fetcher {
	var mu sync.Mutex
	seen := make(map[string]int)
	return funcFetcher(func(ctx context.Context, url string) error {
		mu.Lock()
		defer mu.Unlock()
		seen[url]++
		if seen[url] <= n {
			return errors.New("connection refused")
		}
		return nil
	})
}

func waitReady(t *testing.T, m *Manager) []types.LoadState {
	t.Helper()
	select {
	case final := <-m.WhenReady():
		return final
	case <-time.After(5 * time.Second):
		t.Fatal("readiness did not settle in time")
		return nil
	}
}

func fastConfig(doc Document, f Fetcher) Config {
	return Config{
		Document:    doc,
		Fetcher:     f,
		MaxRetries:  3,
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		LoadTimeout: time.Second,
	}
}

func TestBackoffDelaySequence(t *testing.T) {
	m := New(Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second})
	b := m.newBackoff()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("delay %d = %v, want %v", i, got, w)
		}
	}
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	m := New(Config{BaseDelay: 10 * time.Second, MaxDelay: 15 * time.Second})
	b := m.newBackoff()
	if got := b.NextBackOff(); got != 10*time.Second {
		t.Fatalf("first delay = %v", got)
	}
	if got := b.NextBackOff(); got != 15*time.Second {
		t.Fatalf("second delay not capped: %v", got)
	}
}

func TestEnsureSuccess(t *testing.T) {
	doc := NewMemoryDocument()
	m := New(fastConfig(doc, failNTimes(0)))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	final := waitReady(t, m)
	if len(final) != 1 {
		t.Fatalf("expected 1 record, got %d", len(final))
	}
	st := final[0]
	if st.Status != types.StatusLoaded || st.Error != "" || st.Attempts != 1 {
		t.Fatalf("unexpected record: %+v", st)
	}
	if !doc.Has("TL-1") {
		t.Fatal("element missing from document")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	doc := NewMemoryDocument()
	m := New(fastConfig(doc, failNTimes(1)))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	final := waitReady(t, m)
	st := final[0]
	if st.Status != types.StatusLoaded {
		t.Fatalf("expected loaded after retry, got %+v", st)
	}
	if st.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", st.Attempts)
	}
}

func TestRetriesExhaustedFails(t *testing.T) {
	doc := NewMemoryDocument()
	cfg := fastConfig(doc, failNTimes(100))
	cfg.MaxRetries = 3
	m := New(cfg)
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	final := waitReady(t, m)
	st := final[0]
	if st.Status != types.StatusFailed {
		t.Fatalf("expected failed, got %+v", st)
	}
	if st.Attempts != 4 {
		t.Fatalf("expected initial + 3 retries = 4 attempts, got %d", st.Attempts)
	}
	if st.Error == "" {
		t.Fatal("failed record must carry an error description")
	}
	if doc.Has("TL-1") {
		t.Fatal("failed element should have been removed")
	}
}

func TestAlreadyPresentRecordsFromCache(t *testing.T) {
	doc := NewMemoryDocument()
	_ = doc.Insert(Element{SourceID: "TL-1", InstanceID: "other", URL: "x"})
	fetches := int32(0)
	f := funcFetcher(func(ctx context.Context, url string) error {
		atomic.AddInt32(&fetches, 1)
		return nil
	})
	m := New(fastConfig(doc, f))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	final := waitReady(t, m)
	st := final[0]
	if st.Status != types.StatusLoaded || !st.FromCache {
		t.Fatalf("expected loaded-from-cache, got %+v", st)
	}
	if atomic.LoadInt32(&fetches) != 0 {
		t.Fatal("no fetch should happen for an already-present resource")
	}
}

func TestNoDocumentSkipsEverything(t *testing.T) {
	m := New(fastConfig(nil, failNTimes(0)))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}, {ID: "TL-2"}})
	final := waitReady(t, m)
	if len(final) != 2 {
		t.Fatalf("expected 2 records, got %d", len(final))
	}
	for _, st := range final {
		if st.Status != types.StatusSkipped || st.Error != errNoDocument {
			t.Fatalf("unexpected record: %+v", st)
		}
	}
	if !m.Ready() {
		t.Fatal("readiness must resolve immediately without a document")
	}
}

func TestVerificationSuccessAndExpiry(t *testing.T) {
	var verified atomic.Bool
	cfg := fastConfig(NewMemoryDocument(), failNTimes(0))
	cfg.Verify = func(string) bool { return verified.Load() }
	cfg.VerifyInterval = time.Millisecond
	cfg.VerifyTimeout = 500 * time.Millisecond
	m := New(cfg)
	verified.Store(true)
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	if st := waitReady(t, m)[0]; st.Status != types.StatusLoaded {
		t.Fatalf("expected loaded after verification, got %+v", st)
	}

	verified.Store(false)
	cfg2 := cfg
	cfg2.Document = NewMemoryDocument()
	cfg2.VerifyTimeout = 10 * time.Millisecond
	m2 := New(cfg2)
	m2.Ensure(context.Background(), []types.Source{{ID: "TL-2"}})
	if st := waitReady(t, m2)[0]; st.Status != types.StatusPartial {
		t.Fatalf("expected partial on verification expiry, got %+v", st)
	}
}

func TestReadinessSettleOnce(t *testing.T) {
	m := New(fastConfig(NewMemoryDocument(), failNTimes(0)))
	var mu sync.Mutex
	calls := make([]int, 0, 5)
	observer := func(i int) func([]types.LoadState) {
		return func(final []types.LoadState) {
			mu.Lock()
			calls = append(calls, i)
			mu.Unlock()
			if len(final) != 1 || final[0].Status != types.StatusLoaded {
				t.Errorf("observer %d got snapshot %+v", i, final)
			}
		}
	}
	for i := 0; i < 3; i++ {
		m.OnReady(observer(i))
	}
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	waitReady(t, m)
	for i := 3; i < 5; i++ {
		m.OnReady(observer(i))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 5 {
		t.Fatalf("expected 5 observer calls, got %d (%v)", len(calls), calls)
	}
}

func TestOnReadyUnsubscribe(t *testing.T) {
	m := New(fastConfig(NewMemoryDocument(), failNTimes(0)))
	fired := false
	cancel := m.OnReady(func([]types.LoadState) { fired = true })
	cancel()
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	waitReady(t, m)
	if fired {
		t.Fatal("unsubscribed observer must not fire")
	}
}

func TestNotifyUnloadSkipsPending(t *testing.T) {
	block := make(chan struct{})
	f := funcFetcher(func(ctx context.Context, url string) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	m := New(fastConfig(NewMemoryDocument(), f))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	m.NotifyUnload()
	final := waitReady(t, m)
	if final[0].Status != types.StatusSkipped || final[0].Error != errUnload {
		t.Fatalf("unexpected record after unload: %+v", final[0])
	}
	close(block)
}

func TestTeardownRemovesElementsAndStartsClean(t *testing.T) {
	doc := NewMemoryDocument()
	m := New(fastConfig(doc, failNTimes(0)))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	waitReady(t, m)
	m.Teardown()
	if doc.Has("TL-1") {
		t.Fatal("teardown must remove inserted elements")
	}
	if m.Ready() {
		t.Fatal("readiness must reset on teardown")
	}
	if len(m.States()) != 0 {
		t.Fatal("state records must reset on teardown")
	}

	// A subsequent Ensure starts a clean lifecycle.
	m.Ensure(context.Background(), []types.Source{{ID: "TL-1"}})
	final := waitReady(t, m)
	if final[0].Status != types.StatusLoaded || final[0].Attempts != 1 {
		t.Fatalf("clean restart failed: %+v", final[0])
	}
}

func TestTwoSourcesOneRetrying(t *testing.T) {
	doc := NewMemoryDocument()
	var mu sync.Mutex
	fails := map[string]int{}
	f := funcFetcher(func(ctx context.Context, url string) error {
		if strings.Contains(url, "id=TL-FLAKY") {
			mu.Lock()
			defer mu.Unlock()
			fails[url]++
			if fails[url] == 1 {
				return errors.New("transient failure")
			}
			return nil
		}
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	m := New(fastConfig(doc, f))
	m.Ensure(context.Background(), []types.Source{{ID: "TL-SLOW"}, {ID: "TL-FLAKY"}})
	final := waitReady(t, m)
	if len(final) != 2 {
		t.Fatalf("expected 2 records, got %d", len(final))
	}
	byID := map[string]types.LoadState{}
	for _, st := range final {
		byID[st.SourceID] = st
	}
	slow, flaky := byID["TL-SLOW"], byID["TL-FLAKY"]
	if slow.Status != types.StatusLoaded || slow.Error != "" {
		t.Fatalf("slow source: %+v", slow)
	}
	if flaky.Status != types.StatusLoaded || flaky.Attempts != 2 {
		t.Fatalf("flaky source: %+v", flaky)
	}
}
