package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"fun-with-ai/internal/history"
	"fun-with-ai/internal/llm"
	"fun-with-ai/internal/metrics"
	"fun-with-ai/internal/storage"
)

type fakeClient struct {
	mu        sync.Mutex
	engines   []llm.Engine
	listErr   error
	text      string
	err       error
	prompts   []string
	engineIDs []string
	// block, when set, holds CreateCompletion until it is closed or ctx ends.
	block chan struct{}
}

func (f *fakeClient) ListEngines(ctx context.Context) ([]llm.Engine, error) {
	return f.engines, f.listErr
}

func (f *fakeClient) CreateCompletion(ctx context.Context, engineID, prompt string) (llm.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.engineIDs = append(f.engineIDs, engineID)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return llm.Completion{}, &llm.Error{Kind: llm.KindTransport, Op: "create completion", Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Text: f.text, Engine: engineID}, nil
}

type countingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *countingNotifier) Notify(notice string) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendInteraction(ev storage.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) LoadInteractions() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event{}, m.events...), nil
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (f failingStore) Save(ctx context.Context, h history.History) error { return f.saveErr }
func (f failingStore) Load(ctx context.Context) (history.History, bool, error) {
	return nil, false, f.loadErr
}

func engines(ids ...string) []llm.Engine {
	out := make([]llm.Engine, 0, len(ids))
	for _, id := range ids {
		out = append(out, llm.Engine{ID: id, Ready: true})
	}
	return out
}

func newTestController(t *testing.T, client *fakeClient) (*Controller, *history.Store, *storage.MemoryStore, *countingNotifier) {
	t.Helper()
	kv := storage.NewMemoryStore(0)
	store := history.NewStore(kv, "responses")
	n := &countingNotifier{}
	c := New(client, store, Options{DefaultEngine: "text-curie-001", Scope: "test", Notifier: n})
	return c, store, kv, n
}

func TestEndToEndSubmit(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-ada-001", "text-curie-001"), text: "Hi there"}
	c, store, kv, n := newTestController(t, client)

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	st := c.State()
	if len(st.History) != 0 || st.Engine != "text-curie-001" {
		t.Fatalf("unexpected initial state: %+v", st)
	}
	if strings.Join(st.Catalog, ",") != "text-ada-001,text-curie-001" {
		t.Fatalf("unexpected catalog: %v", st.Catalog)
	}

	it, err := c.SubmitPrompt(ctx, "Hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := history.Interaction{Prompt: "Hello", Response: "Hi there", Engine: "text-curie-001"}
	if it != want {
		t.Fatalf("unexpected interaction: %+v", it)
	}
	st = c.State()
	if len(st.History) != 1 || st.History[0] != want || st.Loading {
		t.Fatalf("unexpected state: %+v", st)
	}

	stored, ok, err := store.Load(ctx)
	if err != nil || !ok || len(stored) != 1 || stored[0] != want {
		t.Fatalf("persisted history mismatch: %+v ok=%v err=%v", stored, ok, err)
	}
	raw, _, _ := kv.Get(ctx, "responses")
	if raw != `[{"prompt":"Hello","response":"Hi there","engine":"text-curie-001"}]` {
		t.Fatalf("unexpected stored value: %s", raw)
	}
	if n.count() != 0 {
		t.Fatalf("unexpected notices: %d", n.count())
	}
}

func TestSubmitNewestFirst(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: "ok"}
	c, store, _, _ := newTestController(t, client)
	_ = c.Initialize(ctx)

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := c.SubmitPrompt(ctx, fmt.Sprintf("p%d", i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	h := c.State().History
	if len(h) != n {
		t.Fatalf("want %d, got %d", n, len(h))
	}
	for i := 0; i < n; i++ {
		if h[i].Prompt != fmt.Sprintf("p%d", n-1-i) {
			t.Fatalf("position %d: %+v", i, h[i])
		}
	}
	stored, _, _ := store.Load(ctx)
	if len(stored) != n || stored[0].Prompt != "p4" {
		t.Fatalf("stored order mismatch: %+v", stored)
	}
}

func TestSubmitAcceptsEmptyPromptAndClearsDraft(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: "?"}
	c, _, _, _ := newTestController(t, client)
	_ = c.Initialize(ctx)

	c.UpdateDraft("typing")
	if c.State().Draft != "typing" {
		t.Fatalf("draft not kept")
	}
	if _, err := c.SubmitPrompt(ctx, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	st := c.State()
	if st.Draft != "" || len(st.History) != 1 || st.History[0].Prompt != "" {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestSubmitFailureKeepsHistory(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []llm.Kind{llm.KindTransport, llm.KindAPI} {
		t.Run(string(kind), func(t *testing.T) {
			client := &fakeClient{engines: engines("text-curie-001"), text: "ok"}
			rec := &memRecorder{}
			kv := storage.NewMemoryStore(0)
			n := &countingNotifier{}
			c := New(client, history.NewStore(kv, "responses"), Options{DefaultEngine: "text-curie-001", Notifier: n, Recorder: rec})
			_ = c.Initialize(ctx)
			if _, err := c.SubmitPrompt(ctx, "first"); err != nil {
				t.Fatalf("submit: %v", err)
			}

			client.err = &llm.Error{Kind: kind, Op: "create completion", Err: errors.New("boom")}
			_, err := c.SubmitPrompt(ctx, "second")
			if err == nil {
				t.Fatalf("expected error")
			}
			if Classify(err) != string(kind) {
				t.Fatalf("want kind %s, got %s", kind, Classify(err))
			}
			st := c.State()
			if len(st.History) != 1 || st.Loading {
				t.Fatalf("unexpected state after failure: %+v", st)
			}
			if n.count() != 1 || n.notices[0] != GenericNotice {
				t.Fatalf("want one generic notice, got %v", n.notices)
			}
			evs, _ := rec.LoadInteractions()
			if len(evs) != 2 || evs[0].Error != "" || evs[1].Error != string(kind) {
				t.Fatalf("unexpected journal: %+v", evs)
			}
		})
	}
}

func TestSubmitStorageFailureKeepsInteractionInMemory(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: strings.Repeat("x", 64)}
	n := &countingNotifier{}
	c := New(client, history.NewStore(storage.NewMemoryStore(32), "responses"), Options{DefaultEngine: "text-curie-001", Notifier: n})
	_ = c.Initialize(ctx)

	it, err := c.SubmitPrompt(ctx, "Hello")
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}
	if Classify(err) != KindStorage {
		t.Fatalf("want storage kind, got %s", Classify(err))
	}
	st := c.State()
	if len(st.History) != 1 || st.History[0] != it || st.Loading {
		t.Fatalf("unexpected state: %+v", st)
	}
	if n.count() != 1 {
		t.Fatalf("want one notice, got %d", n.count())
	}
}

func TestLoadingFlagLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: "ok", block: make(chan struct{})}
	c, _, _, _ := newTestController(t, client)
	_ = c.Initialize(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitPrompt(ctx, "slow")
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !c.Loading() {
		select {
		case <-deadline:
			t.Fatalf("loading flag never set")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Loading() {
		t.Fatalf("loading flag not cleared")
	}
}

func TestRequestTimeoutClearsLoading(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), block: make(chan struct{})}
	n := &countingNotifier{}
	c := New(client, history.NewStore(storage.NewMemoryStore(0), "responses"), Options{
		DefaultEngine:  "text-curie-001",
		RequestTimeout: 20 * time.Millisecond,
		Notifier:       n,
	})
	_ = c.Initialize(ctx)

	_, err := c.SubmitPrompt(ctx, "hang")
	if Classify(err) != KindTransport {
		t.Fatalf("want transport error, got %v", err)
	}
	if c.Loading() || len(c.State().History) != 0 || n.count() != 1 {
		t.Fatalf("unexpected state after timeout: %+v", c.State())
	}
}

func TestSelectEngineValidatesAgainstCatalog(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-ada-001", "text-curie-001"), text: "ok"}
	c, _, _, _ := newTestController(t, client)

	if err := c.SelectEngine("text-ada-001"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("selection before catalog load should be rejected, got %v", err)
	}
	_ = c.Initialize(ctx)

	if err := c.SelectEngine("text-ada-001"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.SelectEngine("gpt-unknown"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("want ErrUnknownEngine, got %v", err)
	}
	if got := c.State().Engine; got != "text-ada-001" {
		t.Fatalf("rejected selection changed engine to %q", got)
	}
	if _, err := c.SubmitPrompt(ctx, "hi"); err != nil {
		t.Fatalf("submit after rejected selection: %v", err)
	}
	if client.engineIDs[0] != "text-ada-001" {
		t.Fatalf("completion used %q", client.engineIDs[0])
	}
}

func TestDefaultEngineFallback(t *testing.T) {
	client := &fakeClient{engines: engines("gpt-a", "gpt-b")}
	c, _, _, _ := newTestController(t, client)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := c.State().Engine; got != "gpt-a" {
		t.Fatalf("want fallback to first catalog entry, got %q", got)
	}
}

func TestInitializeFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("catalog failure", func(t *testing.T) {
		client := &fakeClient{listErr: &llm.Error{Kind: llm.KindTransport, Op: "list engines", Err: errors.New("offline")}}
		c, _, _, n := newTestController(t, client)
		if err := c.Initialize(ctx); err == nil {
			t.Fatalf("expected error")
		}
		st := c.State()
		if len(st.Catalog) != 0 || st.Engine != "text-curie-001" || n.count() != 1 {
			t.Fatalf("unexpected state: %+v notices=%d", st, n.count())
		}
	})

	t.Run("corrupt history", func(t *testing.T) {
		kv := storage.NewMemoryStore(0)
		_ = kv.Set(ctx, "responses", "garbage")
		n := &countingNotifier{}
		c := New(&fakeClient{engines: engines("text-curie-001")}, history.NewStore(kv, "responses"), Options{DefaultEngine: "text-curie-001", Notifier: n})
		err := c.Initialize(ctx)
		if !errors.Is(err, storage.ErrCorrupt) {
			t.Fatalf("want ErrCorrupt, got %v", err)
		}
		if len(c.State().History) != 0 || len(c.State().Catalog) != 1 || n.count() != 1 {
			t.Fatalf("unexpected state: %+v", c.State())
		}
	})

	t.Run("stored history restored", func(t *testing.T) {
		kv := storage.NewMemoryStore(0)
		store := history.NewStore(kv, "responses")
		_ = store.Save(ctx, history.History{{Prompt: "a", Response: "b", Engine: "text-curie-001"}})
		c := New(&fakeClient{engines: engines("text-curie-001")}, store, Options{DefaultEngine: "text-curie-001"})
		if err := c.Initialize(ctx); err != nil {
			t.Fatalf("init: %v", err)
		}
		if h := c.State().History; len(h) != 1 || h[0].Prompt != "a" {
			t.Fatalf("history not restored: %+v", h)
		}
	})
}

func TestClearHistoryPersistsEmptySequence(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: "ok"}
	c, store, kv, _ := newTestController(t, client)
	_ = c.Initialize(ctx)
	_, _ = c.SubmitPrompt(ctx, "one")
	_, _ = c.SubmitPrompt(ctx, "two")
	if len(c.State().History) != 2 {
		t.Fatalf("setup failed")
	}

	if err := c.ClearHistory(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(c.State().History) != 0 {
		t.Fatalf("memory not cleared")
	}
	raw, ok, _ := kv.Get(ctx, "responses")
	if !ok || raw != "[]" {
		t.Fatalf("want key kept with [], got %q ok=%v", raw, ok)
	}
	h, present, err := store.Load(ctx)
	if err != nil || !present || len(h) != 0 {
		t.Fatalf("want present empty history, got %v present=%v err=%v", h, present, err)
	}
}

func TestClearHistoryStorageFailure(t *testing.T) {
	n := &countingNotifier{}
	c := New(&fakeClient{}, failingStore{saveErr: &storage.Error{Op: "set", Err: errors.New("disk full")}}, Options{Notifier: n})
	err := c.ClearHistory(context.Background())
	if Classify(err) != KindStorage || n.count() != 1 {
		t.Fatalf("want storage error with notice, got %v (%d notices)", err, n.count())
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-ada-001", "text-curie-001"), text: "ok"}
	c, _, _, _ := newTestController(t, client)
	_ = c.Initialize(ctx)

	cmds := []Command{
		UpdateDraft{Text: "draft"},
		SelectEngine{EngineID: "text-ada-001"},
		SubmitPrompt{Text: "hello"},
		SubmitPrompt{Text: "again"},
	}
	for _, cmd := range cmds {
		if err := c.Dispatch(ctx, cmd); err != nil {
			t.Fatalf("dispatch %T: %v", cmd, err)
		}
	}
	st := c.State()
	if len(st.History) != 2 || st.History[0].Engine != "text-ada-001" || st.Draft != "" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if err := c.Dispatch(ctx, ClearHistory{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(c.State().History) != 0 {
		t.Fatalf("history not cleared")
	}
	if err := c.Dispatch(ctx, SelectEngine{EngineID: "nope"}); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("want ErrUnknownEngine, got %v", err)
	}
}

func TestConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: "ok"}
	c, store, _, _ := newTestController(t, client)
	_ = c.Initialize(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.SubmitPrompt(ctx, fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Wait()

	st := c.State()
	if len(st.History) != 20 || st.Loading {
		t.Fatalf("unexpected state: len=%d loading=%v", len(st.History), st.Loading)
	}
	stored, _, _ := store.Load(ctx)
	for i := range stored {
		if stored[i] != st.History[i] {
			t.Fatalf("stored order diverges from memory at %d", i)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		KindTransport: &llm.Error{Kind: llm.KindTransport, Err: errors.New("x")},
		KindAPI:       fmt.Errorf("wrapped: %w", &llm.Error{Kind: llm.KindAPI, Err: errors.New("x")}),
		KindStorage:   &storage.Error{Op: "set", Err: storage.ErrQuotaExceeded},
		KindUnknown:   errors.New("other"),
	}
	for want, err := range cases {
		if got := Classify(err); got != want {
			t.Fatalf("Classify(%v) = %s, want %s", err, got, want)
		}
	}
	if Classify(context.DeadlineExceeded) != KindTransport {
		t.Fatalf("deadline should classify as transport")
	}
}

// staleStore always loads the same snapshot and records every save.
type staleStore struct {
	mu     sync.Mutex
	loaded history.History
	saves  []history.History
}

func (s *staleStore) Save(ctx context.Context, h history.History) error {
	s.mu.Lock()
	s.saves = append(s.saves, h.Clone())
	s.mu.Unlock()
	return nil
}

func (s *staleStore) Load(ctx context.Context) (history.History, bool, error) {
	return s.loaded.Clone(), true, nil
}

func TestInitializeKeepsInteractionsSubmittedBeforeLoad(t *testing.T) {
	ctx := context.Background()
	old := history.Interaction{Prompt: "old", Response: "r-old", Engine: "text-curie-001"}
	store := &staleStore{loaded: history.History{old}}
	client := &fakeClient{engines: engines("text-curie-001"), text: "r-new"}
	c := New(client, store, Options{DefaultEngine: "text-curie-001", Scope: "test"})

	if _, err := c.SubmitPrompt(ctx, "new"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	h := c.State().History
	if len(h) != 2 || h[0].Prompt != "new" || h[1] != old {
		t.Fatalf("unexpected history: %+v", h)
	}
	last := store.saves[len(store.saves)-1]
	if len(last) != 2 || last[1] != old {
		t.Fatalf("merged history not persisted: %+v", last)
	}
}

func TestInitializeDoesNotDuplicateAlreadyStoredInteractions(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{engines: engines("text-curie-001"), text: "r"}
	c, store, _, _ := newTestController(t, client)

	if _, err := c.SubmitPrompt(ctx, "first"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if h := c.State().History; len(h) != 1 {
		t.Fatalf("want 1 interaction, got %+v", h)
	}
	if stored, _, _ := store.Load(ctx); len(stored) != 1 {
		t.Fatalf("want 1 stored interaction, got %+v", stored)
	}
}

func TestFailedSubmitIsCountedByKind(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)
	m, err := metrics.NewSubmissionsWithMeter(provider.Meter("test"))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	client := &fakeClient{
		engines: engines("text-curie-001"),
		err:     &llm.Error{Kind: llm.KindAPI, Op: "create completion", Err: errors.New("status 400")},
	}
	store := history.NewStore(storage.NewMemoryStore(0), "responses")
	c := New(client, store, Options{DefaultEngine: "text-curie-001", Scope: "test", Metrics: m})
	_ = c.Initialize(ctx)
	if _, err := c.SubmitPrompt(ctx, "hello"); err == nil {
		t.Fatalf("expected failure")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := md.Name
				if v, ok := dp.Attributes.Value(attribute.Key("kind")); ok {
					key += "{kind=" + v.AsString() + "}"
				}
				counts[key] += dp.Value
			}
		}
	}
	if counts["funwithai.prompts.failed{kind=api}"] != 1 {
		t.Fatalf("want one api failure, got %v", counts)
	}
	if counts["funwithai.prompts.completed"] != 0 || counts["funwithai.prompts.in_flight"] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
