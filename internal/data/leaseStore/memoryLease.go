package leaseStore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLease is the single-instance fallback when redis is unreachable at
// startup. Same contract, but it only excludes workers inside this process.
type MemoryLease struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (l *MemoryLease) Acquire(ctx context.Context, recordId string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.entries[recordId]; held && l.now().Before(entry.expires) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.entries[recordId] = memoryEntry{token: token, expires: l.now().Add(ttl)}
	return token, true, nil
}

func (l *MemoryLease) Release(ctx context.Context, recordId string, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.entries[recordId]; held && entry.token == token {
		delete(l.entries, recordId)
	}
	return nil
}
