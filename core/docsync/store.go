// Package docsync keeps the local workspace loosely synchronized with a
// shared document store. A Synchronizer actor debounces local changes into
// full-document writes and applies remote documents field by field, with
// last-writer-wins semantics.
package docsync

import (
	"context"
	"errors"

	"github.com/kilianp07/runsheet/core/factory"
)

// ErrNotFound is returned by Read when the key holds no document.
var ErrNotFound = errors.New("document not found")

// DocumentStore is a keyed blob store with change notifications.
type DocumentStore interface {
	// Read returns the current blob of key, ErrNotFound when empty.
	Read(ctx context.Context, key string) ([]byte, error)
	// Upsert replaces the blob of key.
	Upsert(ctx context.Context, key string, blob []byte) error
	// Subscribe streams every new blob of key. The channel is closed when
	// ctx ends.
	Subscribe(ctx context.Context, key string) (<-chan []byte, error)
}

// Closer is implemented by stores holding a connection.
type Closer interface {
	Close() error
}

var storeRegistry = factory.NewRegistry[DocumentStore]()

// RegisterStore adds a document store factory identified by name.
func RegisterStore(name string, f factory.Factory[DocumentStore]) error {
	return storeRegistry.Register(name, f)
}

// NewStore builds the document store described by cfg. An empty type
// selects the in-memory store.
func NewStore(cfg factory.ModuleConfig) (DocumentStore, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	return storeRegistry.Create(cfg)
}

// StoreTypes lists the registered store types.
func StoreTypes() []string { return storeRegistry.Names() }

func init() {
	_ = RegisterStore("memory", func(map[string]any) (DocumentStore, error) {
		return NewMemoryStore(), nil
	})
}
