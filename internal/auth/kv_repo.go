package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fun-with-ai/internal/storage"
)

// KVRepository keeps the allowlist as one JSON array under a single store key.
type KVRepository struct {
	kv  storage.KV
	key string
	mu  sync.Mutex
}

func NewKVRepository(kv storage.KV, key string) *KVRepository {
	return &KVRepository{kv: kv, key: key}
}

func (r *KVRepository) LoadAll() ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *KVRepository) Upsert(user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, u := range users {
		if u.ID == user.ID {
			users[i] = user
			updated = true
			break
		}
	}
	if !updated {
		users = append(users, user)
	}
	return r.saveUnlocked(users)
}

func (r *KVRepository) Remove(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.ID != userID {
			out = append(out, u)
		}
	}
	return r.saveUnlocked(out)
}

func (r *KVRepository) loadUnlocked() ([]User, error) {
	raw, ok, err := r.kv.Get(context.Background(), r.key)
	if err != nil {
		return nil, fmt.Errorf("load allowlist: %w", err)
	}
	if !ok || raw == "" {
		return []User{}, nil
	}
	var users []User
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, &storage.Error{Op: "decode", Key: r.key, Err: fmt.Errorf("%w: %v", storage.ErrCorrupt, err)}
	}
	return users, nil
}

func (r *KVRepository) saveUnlocked(users []User) error {
	b, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode allowlist: %w", err)
	}
	if err := r.kv.Set(context.Background(), r.key, string(b)); err != nil {
		return fmt.Errorf("save allowlist: %w", err)
	}
	return nil
}
