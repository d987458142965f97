package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lib/pq"
)

// PostgresStore keeps every collection in a single jsonb-addressed table.
// Merge writes are applied server-side (fields || excluded.fields), so each
// write touches one row atomically — there is no cross-field partial state.
type PostgresStore struct {
	db     *sql.DB
	pubMu  sync.Mutex
	notify *broadcaster
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		notify: newBroadcaster(),
		logger: logger,
	}
}

func (s *PostgresStore) Put(ctx context.Context, collection, key string, fields map[string]interface{}, merge bool) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode document fields: %w", err)
	}

	query := `
		INSERT INTO documents (collection, key, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key)
		DO UPDATE SET fields = documents.fields || EXCLUDED.fields, updated_at = now()`
	if !merge {
		query = `
			INSERT INTO documents (collection, key, fields)
			VALUES ($1, $2, $3)
			ON CONFLICT (collection, key)
			DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`
	}

	if _, err := s.db.ExecContext(ctx, query, collection, key, payload); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("failed to write document %s/%s (pq %s): %w", collection, key, pqErr.Code, err)
		}
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, err)
	}

	s.publishChange(ctx, collection, key)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for document deletion: %w", err)
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}

	s.publishChange(ctx, collection, key)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fields, created_at, updated_at FROM documents WHERE collection = $1 AND key = $2`,
		collection, key)
	return s.scanDocument(row, collection, key)
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, fields, created_at, updated_at FROM documents WHERE collection = $1 ORDER BY created_at ASC`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc := Document{Collection: collection}
		var payload []byte
		if err := rows.Scan(&doc.Key, &payload, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		if err := json.Unmarshal(payload, &doc.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, doc.Key, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection %s: %w", collection, err)
	}
	return docs, nil
}

func (s *PostgresStore) SubscribeCollection(ctx context.Context, collection string) (*CollectionSubscription, error) {
	sub := s.notify.addCollection(collection)
	// Первый снимок — сразу при подписке.
	docs, err := s.List(ctx, collection)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.ch <- docs
	return sub, nil
}

func (s *PostgresStore) SubscribeDocument(ctx context.Context, collection, key string) (*DocumentSubscription, error) {
	sub := s.notify.addDocument(collection, key)
	doc, err := s.Get(ctx, collection, key)
	if err != nil && !errors.Is(err, ErrDocumentNotFound) {
		sub.Cancel()
		return nil, err
	}
	sub.ch <- doc
	return sub, nil
}

// publishChange re-reads the authoritative set and fans it out. A failed
// re-read is a gap in the stream, not an error to the writer: subscribers
// keep the last snapshot and resume on the next change.
func (s *PostgresStore) publishChange(ctx context.Context, collection, key string) {
	// Снимок и рассылка под одним мьютексом, чтобы конкурентные писатели
	// не доставили снимки в порядке, обратном записи.
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	docs, err := s.List(ctx, collection)
	if err != nil {
		s.logger.Warn("change notification skipped",
			slog.String("collection", collection), slog.Any("error", err))
	} else {
		s.notify.publishCollection(collection, docs)
	}

	if !s.notify.hasDocumentSubscribers(collection, key) {
		return
	}
	doc, err := s.Get(ctx, collection, key)
	if err != nil && !errors.Is(err, ErrDocumentNotFound) {
		s.logger.Warn("document notification skipped",
			slog.String("collection", collection), slog.String("key", key), slog.Any("error", err))
		return
	}
	s.notify.publishDocument(collection, key, doc)
}

func (s *PostgresStore) scanDocument(row *sql.Row, collection, key string) (*Document, error) {
	doc := &Document{Collection: collection, Key: key}
	var payload []byte
	if err := row.Scan(&payload, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, key, err)
	}
	if err := json.Unmarshal(payload, &doc.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}
	return doc, nil
}
