// Package dedupe tracks idempotency keys: session creation request ids and
// in-flight detection jobs.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records keys so a request or job is handled at most once.
type Deduper interface {
	// SeenAndRecord atomically checks whether key is held and claims it if not.
	// It returns true when key was already held.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key so the work can be retried.
	Unrecord(ctx context.Context, key string)

	// Remember attaches a result to a held key, e.g. the session id a
	// request created. It is a no-op for keys that are not held.
	Remember(ctx context.Context, key, result string)

	// Lookup returns the result remembered for key. ok is false when the key
	// is not held; an empty result means the work is still in flight.
	Lookup(ctx context.Context, key string) (result string, ok bool)

	Size() int64
}

type entry struct {
	key    string
	result string
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest
// once maxSize is reached. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.index = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.index[key] = d.order.PushBack(&entry{key: key})
	d.size.Store(int64(d.order.Len()))
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.order.Remove(el)
		delete(d.index, key)
		d.size.Store(int64(d.order.Len()))
	}
}

func (d *inMemoryDeduper) Remember(_ context.Context, key, result string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		el.Value.(*entry).result = result
	}
}

func (d *inMemoryDeduper) Lookup(_ context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.index[key]
	if !ok {
		return "", false
	}
	return el.Value.(*entry).result, true
}

// evictOldest drops the first inserted key. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.index, front.Value.(*entry).key)
}

// Size returns the current number of held keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
