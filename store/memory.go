package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore mirrors the Postgres implementation's semantics in process
// memory. It backs the test suite and local development without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]*Document
	pubMu  sync.Mutex
	notify *broadcaster
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]map[string]*Document),
		notify: newBroadcaster(),
		now:    time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, collection, key string, fields map[string]interface{}, merge bool) error {
	s.mu.Lock()
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string]*Document)
		s.data[collection] = col
	}

	now := s.now()
	existing, exists := col[key]
	switch {
	case exists && merge:
		for k, v := range fields {
			existing.Fields[k] = v
		}
		existing.UpdatedAt = now
	case exists: // replace
		existing.Fields = cloneFields(fields)
		existing.UpdatedAt = now
	default:
		col[key] = &Document{
			Collection: collection,
			Key:        key,
			Fields:     cloneFields(fields),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	s.mu.Unlock()

	s.publishChange(collection, key)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	col, ok := s.data[collection]
	if !ok {
		s.mu.Unlock()
		return ErrDocumentNotFound
	}
	if _, ok := col[key]; !ok {
		s.mu.Unlock()
		return ErrDocumentNotFound
	}
	delete(col, key)
	s.mu.Unlock()

	s.publishChange(collection, key)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][key]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return copyDocument(doc), nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(collection), nil
}

func (s *MemoryStore) SubscribeCollection(ctx context.Context, collection string) (*CollectionSubscription, error) {
	sub := s.notify.addCollection(collection)
	s.mu.RLock()
	docs := s.snapshotLocked(collection)
	s.mu.RUnlock()
	sub.ch <- docs
	return sub, nil
}

func (s *MemoryStore) SubscribeDocument(ctx context.Context, collection, key string) (*DocumentSubscription, error) {
	sub := s.notify.addDocument(collection, key)
	s.mu.RLock()
	var doc *Document
	if d, ok := s.data[collection][key]; ok {
		doc = copyDocument(d)
	}
	s.mu.RUnlock()
	sub.ch <- doc
	return sub, nil
}

func (s *MemoryStore) publishChange(collection, key string) {
	// Снимок и рассылка под одним мьютексом: иначе два конкурентных
	// писателя могут доставить снимки в порядке, обратном записи, и
	// устаревший останется в канале как "последний".
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.RLock()
	docs := s.snapshotLocked(collection)
	var doc *Document
	if d, ok := s.data[collection][key]; ok {
		doc = copyDocument(d)
	}
	s.mu.RUnlock()

	s.notify.publishCollection(collection, docs)
	s.notify.publishDocument(collection, key, doc)
}

// snapshotLocked returns deep copies ordered by creation time, matching the
// Postgres ORDER BY created_at.
func (s *MemoryStore) snapshotLocked(collection string) []Document {
	col := s.data[collection]
	docs := make([]Document, 0, len(col))
	for _, doc := range col {
		docs = append(docs, *copyDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].Key < docs[j].Key
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs
}

func cloneFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func copyDocument(doc *Document) *Document {
	return &Document{
		Collection: doc.Collection,
		Key:        doc.Key,
		Fields:     cloneFields(doc.Fields),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
