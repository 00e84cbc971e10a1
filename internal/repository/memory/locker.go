package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type claim struct {
	token   string
	expires time.Time
}

// Locker is a process-local stand-in for the redis claim lock.
type Locker struct {
	mu    sync.Mutex
	held  map[string]claim
	clock func() time.Time
}

func NewLocker() *Locker {
	return &Locker{held: map[string]claim{}, clock: time.Now}
}

func (l *Locker) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if c, ok := l.held[key]; ok && now.Before(c.expires) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.held[key] = claim{token: token, expires: now.Add(ttl)}

	return token, true, nil
}

// Release drops the claim only if token still owns it.
func (l *Locker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.held[key]; ok && c.token == token {
		delete(l.held, key)
	}

	return nil
}
