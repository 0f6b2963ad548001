package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is a in-memory implementation of KV.
type MemoryKV[K ~string, V any] struct {
	data map[K]kvData[V]
	lock sync.RWMutex
}

type kvData[V any] struct {
	value  V
	expire time.Time
}

func NewMemoryKV[K ~string, V any]() KV[K, V] {
	return &MemoryKV[K, V]{
		data: make(map[K]kvData[V]),
	}
}

func (kv *MemoryKV[K, V]) Get(ctx context.Context, key K) (V, error) {
	kv.lock.RLock()
	data, ok := kv.data[key]
	kv.lock.RUnlock()

	if ok && !expired(data.expire) {
		return data.value, nil
	}
	if ok {
		kv.lock.Lock()
		if cur, still := kv.data[key]; still && expired(cur.expire) {
			delete(kv.data, key)
		}
		kv.lock.Unlock()
	}

	var zero V
	return zero, ErrNotFound
}

func (kv *MemoryKV[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	kv.data[key] = kvData[V]{
		value:  value,
		expire: expiry(ttl),
	}
	return nil
}

func (kv *MemoryKV[K, V]) Delete(ctx context.Context, key K) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	delete(kv.data, key)
	return nil
}

func (kv *MemoryKV[K, V]) Close() error {
	return nil
}
