package controller

import (
	"errors"
	"fmt"

	"fun-with-ai/internal/llm"
)

var ErrUnknownEngine = errors.New("unknown engine")

// EngineID can only be obtained from a loaded catalog (or the configured default
// before any catalog exists), so a selected engine is always one the backend offered.
type EngineID struct{ id string }

func (e EngineID) String() string { return e.id }

// EngineCatalog is the read-only set of engines fetched at startup, in backend order.
type EngineCatalog struct {
	ids   []string
	index map[string]struct{}
}

func NewEngineCatalog(engines []llm.Engine) EngineCatalog {
	c := EngineCatalog{index: make(map[string]struct{}, len(engines))}
	for _, e := range engines {
		if e.ID == "" {
			continue
		}
		if _, dup := c.index[e.ID]; dup {
			continue
		}
		c.index[e.ID] = struct{}{}
		c.ids = append(c.ids, e.ID)
	}
	return c
}

func (c EngineCatalog) Len() int { return len(c.ids) }

func (c EngineCatalog) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c EngineCatalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Resolve turns a raw identifier into an EngineID. Everything is rejected while
// the catalog is empty.
func (c EngineCatalog) Resolve(id string) (EngineID, error) {
	if !c.Contains(id) {
		return EngineID{}, fmt.Errorf("%w: %q", ErrUnknownEngine, id)
	}
	return EngineID{id: id}, nil
}

// Fallback keeps preferred when the catalog offers it and otherwise picks the first
// catalog entry. ok is false for an empty catalog.
func (c EngineCatalog) Fallback(preferred string) (EngineID, bool) {
	if c.Contains(preferred) {
		return EngineID{id: preferred}, true
	}
	if len(c.ids) == 0 {
		return EngineID{}, false
	}
	return EngineID{id: c.ids[0]}, true
}
