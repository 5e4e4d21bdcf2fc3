package bot

import (
	"context"
	"sync"
	"time"
)

// Deduper отсекает повторную доставку транзакции мастера после переподключения
type Deduper interface {
	// MarkSeen возвращает true, если транзакция встретилась впервые
	MarkSeen(ctx context.Context, masterID, transactionID string) (bool, error)
}

// MemoryDeduper - дедупликация в памяти процесса с TTL
type MemoryDeduper struct {
	ttl       time.Duration
	entries   map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewMemoryDeduper создаёт in-memory дедупликатор
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduper{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// MarkSeen реализует Deduper
func (d *MemoryDeduper) MarkSeen(_ context.Context, masterID, transactionID string) (bool, error) {
	key := DedupKey(masterID, transactionID)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastSweep) > d.ttl/4 {
		d.sweep(now)
	}

	if expires, ok := d.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	d.entries[key] = now.Add(d.ttl)
	return true, nil
}

// Len возвращает количество хранимых ключей
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *MemoryDeduper) sweep(now time.Time) {
	for key, expires := range d.entries {
		if !now.Before(expires) {
			delete(d.entries, key)
		}
	}
	d.lastSweep = now
}

// DedupKey - ключ транзакции мастера
func DedupKey(masterID, transactionID string) string {
	return "copytrader:tx:" + masterID + ":" + transactionID
}
