package docsync

import (
	"context"
	"sync"
)

// MemoryStore is an in-process DocumentStore. Every Upsert is fanned out to
// the subscribers of its key; a slow subscriber only keeps the latest blob.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	subs map[string]map[chan []byte]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[string][]byte{},
		subs: map[string]map[chan []byte]struct{}{},
	}
}

// Read returns a copy of the blob stored under key.
func (m *MemoryStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Upsert stores blob and notifies the subscribers of key.
func (m *MemoryStore) Upsert(ctx context.Context, key string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := append([]byte(nil), blob...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = b
	for ch := range m.subs[key] {
		select {
		case ch <- b:
		default:
			// replace the pending blob with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- b:
			default:
			}
		}
	}
	return nil
}

// Subscribe streams blobs written to key after the call.
func (m *MemoryStore) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan []byte, 1)
	m.mu.Lock()
	if m.subs[key] == nil {
		m.subs[key] = map[chan []byte]struct{}{}
	}
	m.subs[key][ch] = struct{}{}
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[key], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}
