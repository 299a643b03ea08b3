package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryStore()
	first, err := NewRedisLock(store, "ctr:lock:cron", 30*time.Second)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "ctr:lock:cron", 30*time.Second)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["ctr:lock:cron"] != 30*time.Second {
		t.Fatalf("ttl not forwarded: %v", store.ttls["ctr:lock:cron"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second instance acquired a held lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("lock not available after release")
	}
}

func TestRedisLockLeavesForeignOwnerAlone(t *testing.T) {
	store := newMemoryStore()
	lock, _ := NewRedisLock(store, "k", time.Second)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}
	store.data["k"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["k"] != "someone-else" {
		t.Fatalf("foreign lock deleted")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
}

func TestRedisLockAcquireError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	lock, _ := NewRedisLock(store, "k", 0)
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.ttl)
	}
	if _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatalf("expected acquire error")
	}
}
