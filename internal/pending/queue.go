package pending

import (
	"sort"
	"sync"

	"fun-with-ai/internal/auth"
)

// Queue holds access requests awaiting an admin decision.
type Queue struct {
	mu   sync.Mutex
	repo auth.Repository
}

func NewQueue(repo auth.Repository) *Queue {
	return &Queue{repo: repo}
}

// Add records a request. It reports false when the user was already waiting,
// so the admin is asked only once.
func (q *Queue) Add(user auth.User) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	users, err := q.repo.LoadAll()
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.ID == user.ID {
			return false, nil
		}
	}
	return true, q.repo.Upsert(user)
}

// Take removes the request for userID and returns it.
func (q *Queue) Take(userID int64) (auth.User, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	users, err := q.repo.LoadAll()
	if err != nil {
		return auth.User{}, false, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, true, q.repo.Remove(userID)
		}
	}
	return auth.User{}, false, nil
}

func (q *Queue) List() ([]auth.User, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	users, err := q.repo.LoadAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}
