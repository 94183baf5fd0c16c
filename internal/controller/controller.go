package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fun-with-ai/internal/history"
	"fun-with-ai/internal/llm"
	"fun-with-ai/internal/storage"
)

// HistoryStore persists the whole history under a single key.
type HistoryStore interface {
	Save(ctx context.Context, h history.History) error
	Load(ctx context.Context) (history.History, bool, error)
}

// SubmitMetrics is satisfied by *metrics.Submissions.
type SubmitMetrics interface {
	RecordSubmitted(ctx context.Context, engine string)
	RecordCompleted(ctx context.Context, engine string, duration time.Duration)
	RecordFailed(ctx context.Context, engine, kind string, duration time.Duration)
}

type Options struct {
	DefaultEngine string
	// RequestTimeout bounds every remote call; zero disables it.
	RequestTimeout time.Duration
	// Scope names the history in logs and in the journal.
	Scope    string
	Notifier Notifier
	Recorder storage.Recorder
	Metrics  SubmitMetrics
	// Now is used for journal timestamps; defaults to time.Now.
	Now func() time.Time
}

// State is a snapshot for rendering. Callers may keep it; it never changes.
type State struct {
	Loading bool
	Draft   string
	Engine  string
	Catalog []string
	History history.History
}

// Controller owns history, engine selection and the loading flag. All
// transitions go through its methods; it is safe for concurrent use.
type Controller struct {
	client llm.CompletionClient
	store  HistoryStore
	opts   Options

	mu       sync.Mutex
	history  history.History
	catalog  EngineCatalog
	selected EngineID
	draft    string
	inFlight int
}

func New(client llm.CompletionClient, store HistoryStore, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Controller{
		client:   client,
		store:    store,
		opts:     opts,
		history:  history.History{},
		selected: EngineID{id: opts.DefaultEngine},
	}
}

// Initialize loads the stored history and the engine catalog. Failures leave the
// respective part empty, raise the notice, and are returned joined. Interactions
// already in memory are kept ahead of the loaded ones.
func (c *Controller) Initialize(ctx context.Context) error {
	var errs []error

	h, ok, err := c.store.Load(ctx)
	switch {
	case err != nil:
		log.Printf("[%s] failed to load history (%s): %v", c.opts.Scope, Classify(err), err)
		errs = append(errs, err)
	case ok:
		c.mu.Lock()
		merged := len(c.history) > 0 && !h.HasPrefix(c.history)
		if merged {
			// submits that ran before the load stay in front of the stored entries
			h = append(c.history.Clone(), h...)
			if err := c.store.Save(ctx, h); err != nil {
				log.Printf("[%s] failed to persist merged history (%s): %v", c.opts.Scope, Classify(err), err)
				errs = append(errs, err)
			}
		}
		c.history = h
		c.mu.Unlock()
		log.Printf("[%s] loaded history: %d interactions (merged=%v)", c.opts.Scope, len(h), merged)
	}

	callCtx, cancel := c.withTimeout(ctx)
	engines, err := c.client.ListEngines(callCtx)
	cancel()
	if err != nil {
		log.Printf("[%s] failed to list engines (%s): %v", c.opts.Scope, Classify(err), err)
		errs = append(errs, err)
	} else {
		catalog := NewEngineCatalog(engines)
		c.mu.Lock()
		c.catalog = catalog
		if sel, ok := catalog.Fallback(c.selected.String()); ok {
			if sel != c.selected {
				log.Printf("[%s] default engine %q not offered, falling back to %q", c.opts.Scope, c.selected.String(), sel.String())
			}
			c.selected = sel
		}
		c.mu.Unlock()
		log.Printf("[%s] engine catalog loaded: %d engines", c.opts.Scope, catalog.Len())
	}

	if len(errs) > 0 {
		c.notify()
		return errors.Join(errs...)
	}
	return nil
}

// SubmitPrompt completes text on the selected engine and prepends the result.
// Concurrent submits are not rejected; they land in the order their answers arrive.
func (c *Controller) SubmitPrompt(ctx context.Context, text string) (history.Interaction, error) {
	c.mu.Lock()
	engine := c.selected.String()
	c.inFlight++
	c.draft = ""
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	ctx, span := otel.Tracer("fun-with-ai/controller").Start(ctx, "controller.submit_prompt")
	defer span.End()
	span.SetAttributes(attribute.String("engine", engine), attribute.String("scope", c.opts.Scope))

	start := c.opts.Now()
	c.opts.Metrics.RecordSubmitted(ctx, engine)

	callCtx, cancel := c.withTimeout(ctx)
	completion, err := c.client.CreateCompletion(callCtx, engine, text)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Classify(err))
		c.fail(ctx, engine, text, "", err, start)
		return history.Interaction{}, fmt.Errorf("submit prompt: %w", err)
	}

	it := history.Interaction{Prompt: text, Response: completion.Text, Engine: engine}

	// The save happens under the lock so the stored order matches memory.
	c.mu.Lock()
	c.history = c.history.Prepend(it)
	size := len(c.history)
	err = c.store.Save(ctx, c.history)
	c.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindStorage)
		c.fail(ctx, engine, text, it.Response, err, start)
		return it, fmt.Errorf("persist interaction: %w", err)
	}

	span.SetAttributes(attribute.Int("tokens.total", completion.TotalTokens), attribute.Int("history.size", size))
	c.opts.Metrics.RecordCompleted(ctx, engine, c.opts.Now().Sub(start))
	c.journal(storage.Event{Engine: engine, Prompt: text, Response: it.Response})
	log.Printf("[%s] completion stored [engine=%s, tokens: prompt=%d, completion=%d, total=%d, history=%d]",
		c.opts.Scope, engine, completion.PromptTokens, completion.CompletionTokens, completion.TotalTokens, size)
	return it, nil
}

// SelectEngine accepts only identifiers present in the loaded catalog.
func (c *Controller) SelectEngine(engineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel, err := c.catalog.Resolve(engineID)
	if err != nil {
		log.Printf("[%s] rejected engine selection: %v", c.opts.Scope, err)
		return err
	}
	c.selected = sel
	return nil
}

// ClearHistory empties the history and persists the empty sequence.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	c.history = history.History{}
	err := c.store.Save(ctx, c.history)
	c.mu.Unlock()
	if err != nil {
		log.Printf("[%s] failed to persist cleared history (%s): %v", c.opts.Scope, Classify(err), err)
		c.notify()
		return fmt.Errorf("clear history: %w", err)
	}
	log.Printf("[%s] history cleared", c.opts.Scope)
	return nil
}

func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Loading: c.inFlight > 0,
		Draft:   c.draft,
		Engine:  c.selected.String(),
		Catalog: c.catalog.IDs(),
		History: c.history.Clone(),
	}
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

func (c *Controller) fail(ctx context.Context, engine, prompt, response string, err error, start time.Time) {
	kind := Classify(err)
	log.Printf("[%s] submit failed [engine=%s, kind=%s]: %v", c.opts.Scope, engine, kind, err)
	c.opts.Metrics.RecordFailed(ctx, engine, kind, c.opts.Now().Sub(start))
	c.journal(storage.Event{Engine: engine, Prompt: prompt, Response: response, Error: kind})
	c.notify()
}

func (c *Controller) journal(ev storage.Event) {
	if c.opts.Recorder == nil {
		return
	}
	ev.Timestamp = c.opts.Now().UTC()
	ev.Scope = c.opts.Scope
	if err := c.opts.Recorder.AppendInteraction(ev); err != nil {
		log.Printf("[%s] failed to journal interaction: %v", c.opts.Scope, err)
	}
}

func (c *Controller) notify() {
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(GenericNotice)
	}
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.RequestTimeout)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmitted(context.Context, string) {}
func (noopMetrics) RecordCompleted(context.Context, string, time.Duration) {}
func (noopMetrics) RecordFailed(context.Context, string, string, time.Duration) {}
