package history

import (
	"context"
	"encoding/json"
	"fmt"

	"fun-with-ai/internal/storage"
)

// Interaction is one prompt/response pair and the engine that produced it.
type Interaction struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Engine   string `json:"engine"`
}

// History is ordered newest first.
type History []Interaction

// Prepend returns a new History with it in front. h is left untouched so
// snapshots handed out earlier never change.
func (h History) Prepend(it Interaction) History {
	out := make(History, 0, len(h)+1)
	out = append(out, it)
	return append(out, h...)
}

// HasPrefix reports whether h starts with every entry of p, in order.
func (h History) HasPrefix(p History) bool {
	if len(p) > len(h) {
		return false
	}
	for i := range p {
		if h[i] != p[i] {
			return false
		}
	}
	return true
}

func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Store is the persistence adapter for a History kept under one key of a KV store.
// It keeps no reference to the history it saves.
type Store struct {
	kv  storage.KV
	key string
}

func NewStore(kv storage.KV, key string) *Store {
	return &Store{kv: kv, key: key}
}

func (s *Store) Key() string { return s.key }

// Save overwrites the stored history. An empty history is written as [] so a
// cleared history stays distinguishable from one never saved.
func (s *Store) Save(ctx context.Context, h History) error {
	if h == nil {
		h = History{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return &storage.Error{Op: "encode", Key: s.key, Err: err}
	}
	if err := s.kv.Set(ctx, s.key, string(b)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Load returns present=false when nothing was ever saved. A value that does not
// decode is reported as storage.ErrCorrupt rather than treated as absent.
func (s *Store) Load(ctx context.Context) (History, bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var h History
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, false, &storage.Error{Op: "decode", Key: s.key, Err: fmt.Errorf("%w: %v", storage.ErrCorrupt, err)}
	}
	if h == nil {
		h = History{}
	}
	return h, true, nil
}
