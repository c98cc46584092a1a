package draw

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lockTable hands out exclusive, entity-keyed locks. It stands in for row
// locks on a single-node deployment: every mutating operation takes the locks
// for the rows it touches up front and releases them only after its
// transaction committed or rolled back.
//
// Keys are namespaced by entity kind. To keep concurrent operations
// deadlock-free, acquisition follows one global order: project, then prizes
// (sorted), then batches (sorted), then winners.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func projectKey(id uuid.UUID) string { return "project:" + id.String() }
func prizeKey(id uuid.UUID) string   { return "prize:" + id.String() }
func batchKey(id uuid.UUID) string   { return "batch:" + id.String() }
func winnerKey(id uuid.UUID) string  { return "winner:" + id.String() }

func (t *lockTable) slot(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		t.slots[key] = slot
	}
	return slot
}

// acquire takes the given keys in order, waiting at most wait in total. On
// timeout or context cancellation it releases everything taken so far and
// reports ErrBusy.
func (t *lockTable) acquire(ctx context.Context, wait time.Duration, keys ...string) (func(), error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, key := range keys {
		slot := t.slot(key)
		select {
		case slot <- struct{}{}:
			held = append(held, slot)
		case <-deadline.C:
			release()
			return nil, fmt.Errorf("lock wait timed out on %s: %w", key, ErrBusy)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("lock wait canceled on %s: %w", key, ErrBusy)
		}
	}
	return release, nil
}

func sortedKeys(prefix func(uuid.UUID) string, ids []uuid.UUID) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefix(id)
	}
	sort.Strings(keys)
	return keys
}
