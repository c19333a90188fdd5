package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/uvensys/ironshield/lib/store"
)

type factory struct{}

func (factory) Build(ctx context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(ctx), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expires)
}

type impl struct {
	lock sync.Mutex
	data map[string]entry
}

func (i *impl) Create(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.lock.Lock()
	defer i.lock.Unlock()

	now := time.Now()
	if e, ok := i.data[key]; ok && !e.expired(now) {
		return fmt.Errorf("%w: %q", store.ErrExists, key)
	}

	i.data[key] = entry{value: value, expires: now.Add(expiry)}
	return nil
}

func (i *impl) Delete(_ context.Context, key string) error {
	i.lock.Lock()
	defer i.lock.Unlock()

	e, ok := i.data[key]
	delete(i.data, key)
	if !ok || e.expired(time.Now()) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	i.lock.Lock()
	defer i.lock.Unlock()

	e, ok := i.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return e.value, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.lock.Lock()
	defer i.lock.Unlock()

	i.data[key] = entry{value: value, expires: time.Now().Add(expiry)}
	return nil
}

func (i *impl) cleanup() {
	i.lock.Lock()
	defer i.lock.Unlock()

	now := time.Now()
	for key, e := range i.data {
		if e.expired(now) {
			delete(i.data, key)
		}
	}
}

func (i *impl) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			i.cleanup()
		}
	}
}

// New creates a simple in-memory store. Each gate instance gets its own
// signing key when using it.
func New(ctx context.Context) store.Interface {
	result := &impl{
		data: map[string]entry{},
	}

	go result.cleanupThread(ctx)

	return result
}
