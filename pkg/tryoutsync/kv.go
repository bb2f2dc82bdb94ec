// Package tryoutsync is the client-side core of the tryout platform: a
// durable local attempt store, the countdown timer, a navigation guard and a
// background flusher that reconciles answer/flag events with the backend.
//
// It is used by embedding applications (the web client via bindings, and the
// simulate-attempt load tool) and deliberately has no server dependencies.
package tryoutsync

import (
	"context"
	"errors"
	"sync"
)

// ErrStorageUnavailable signals that the local persistence backend cannot be
// read or written. Callers must treat it as transient and retry; in-memory
// progress is never dropped because of it.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// KV is the namespaced local key-value space backing the attempt store.
// A missing key yields (nil, nil). Backend failures wrap
// ErrStorageUnavailable.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemKV is an in-memory KV, used in tests and as a fallback when no durable
// backend is configured. Progress then survives within the process only.
type MemKV struct {
	mu          sync.Mutex
	data        map[string][]byte
	unavailable bool
}

// NewMemKV creates an empty in-memory KV.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

// SetUnavailable toggles simulated backend failure.
func (m *MemKV) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

func (m *MemKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrStorageUnavailable
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrStorageUnavailable
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrStorageUnavailable
	}
	delete(m.data, key)
	return nil
}
