package llm

import (
	"context"
	"errors"
	"fmt"
)

// Engine is one model variant offered by a completion backend.
type Engine struct {
	ID    string
	Owner string
	Ready bool
}

type Completion struct {
	Text             string
	Engine           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionClient lists engines and completes prompts on a named engine.
type CompletionClient interface {
	ListEngines(ctx context.Context) ([]Engine, error)
	CreateCompletion(ctx context.Context, engineID, prompt string) (Completion, error)
}

type Kind string

const (
	// KindTransport covers unreachable hosts, timeouts and cancelled contexts.
	KindTransport Kind = "transport"
	// KindAPI covers non-2xx answers and responses without usable choices.
	KindAPI Kind = "api"
)

// Error is returned by every CompletionClient implementation in this package.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoChoices is wrapped when a completion answer carries no choices.
var ErrNoChoices = errors.New("completion returned no choices")

// KindOf reports the kind of a client error; ok is false for foreign errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
