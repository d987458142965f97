// Package store provides a key-addressed document store with per-document
// merge-write semantics and change subscriptions that push the full current
// document set of a collection to every open subscriber on any change.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrWriteDenied      = errors.New("write denied for acting subject")
)

// Document is a single stored record.
type Document struct {
	Collection string
	Key        string
	Fields     map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// String field accessor; missing or non-string values yield "".
func (d Document) String(field string) string {
	if v, ok := d.Fields[field].(string); ok {
		return v
	}
	return ""
}

// Int field accessor; jsonb decoding yields float64, in-memory documents
// keep what the writer stored.
func (d Document) Int(field string) int {
	switch v := d.Fields[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// DocumentStore is the storage boundary the rest of the system talks to.
// Writes touch exactly one document atomically; with merge=true only the
// supplied fields change and everything else is left untouched.
type DocumentStore interface {
	Put(ctx context.Context, collection, key string, fields map[string]interface{}, merge bool) error
	Delete(ctx context.Context, collection, key string) error
	Get(ctx context.Context, collection, key string) (*Document, error)
	List(ctx context.Context, collection string) ([]Document, error)

	// SubscribeCollection delivers the full current set immediately and again
	// after every change. The caller owns the handle and must Cancel it.
	SubscribeCollection(ctx context.Context, collection string) (*CollectionSubscription, error)
	SubscribeDocument(ctx context.Context, collection, key string) (*DocumentSubscription, error)
}

// CollectionSubscription is an explicit handle to a collection change feed.
type CollectionSubscription struct {
	ch       chan []Document
	cancelMu sync.Mutex
	onCancel func()
	done     bool
}

// Updates yields the full document set of the collection; the channel keeps
// only the latest snapshot, so a slow consumer sees gaps, never stale order.
func (s *CollectionSubscription) Updates() <-chan []Document { return s.ch }

func (s *CollectionSubscription) Cancel() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.onCancel()
	close(s.ch)
}

// DocumentSubscription yields the current document or nil when absent.
type DocumentSubscription struct {
	ch       chan *Document
	cancelMu sync.Mutex
	onCancel func()
	done     bool
}

func (s *DocumentSubscription) Updates() <-chan *Document { return s.ch }

func (s *DocumentSubscription) Cancel() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.onCancel()
	close(s.ch)
}

// broadcaster fans out full-set snapshots to open subscriptions. Sends are
// coalescing: when a subscriber has not drained the previous snapshot yet,
// it is replaced with the newer one.
type broadcaster struct {
	mu      sync.Mutex
	colSubs map[string]map[*CollectionSubscription]struct{}
	docSubs map[string]map[*DocumentSubscription]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		colSubs: make(map[string]map[*CollectionSubscription]struct{}),
		docSubs: make(map[string]map[*DocumentSubscription]struct{}),
	}
}

func docSubKey(collection, key string) string { return collection + "\x00" + key }

func (b *broadcaster) addCollection(collection string) *CollectionSubscription {
	sub := &CollectionSubscription{ch: make(chan []Document, 1)}
	sub.onCancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.colSubs[collection], sub)
		if len(b.colSubs[collection]) == 0 {
			delete(b.colSubs, collection)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.colSubs[collection]; !ok {
		b.colSubs[collection] = make(map[*CollectionSubscription]struct{})
	}
	b.colSubs[collection][sub] = struct{}{}
	return sub
}

func (b *broadcaster) addDocument(collection, key string) *DocumentSubscription {
	k := docSubKey(collection, key)
	sub := &DocumentSubscription{ch: make(chan *Document, 1)}
	sub.onCancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.docSubs[k], sub)
		if len(b.docSubs[k]) == 0 {
			delete(b.docSubs, k)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docSubs[k]; !ok {
		b.docSubs[k] = make(map[*DocumentSubscription]struct{})
	}
	b.docSubs[k][sub] = struct{}{}
	return sub
}

func (b *broadcaster) publishCollection(collection string, docs []Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.colSubs[collection] {
		select {
		case sub.ch <- docs:
		default:
			// Вытесняем устаревший снимок, важен только последний.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- docs:
			default:
			}
		}
	}
}

func (b *broadcaster) publishDocument(collection, key string, doc *Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.docSubs[docSubKey(collection, key)] {
		select {
		case sub.ch <- doc:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- doc:
			default:
			}
		}
	}
}

// hasDocumentSubscribers lets implementations skip the point read when nobody
// listens for that document.
func (b *broadcaster) hasDocumentSubscribers(collection, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docSubs[docSubKey(collection, key)]) > 0
}
