package store

import (
	"context"
	"strings"
)

type actorContextKey struct{}

// WithActor marks the context as acting on behalf of the given subject.
// Set by the authentication middleware after the bearer token is verified.
func WithActor(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, subjectID)
}

// ActorFromContext returns the authenticated subject id, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	subjectID, ok := ctx.Value(actorContextKey{}).(string)
	return subjectID, ok && subjectID != ""
}

// GuardedStore enforces the access rule at the storage boundary, not through
// application locking: a write to users/{subject} or to an attendees or
// picks collection under key {subject} is permitted only when the acting
// subject equals that subject. Reads and subscriptions pass through
// unchanged.
type GuardedStore struct {
	DocumentStore
}

func NewGuardedStore(inner DocumentStore) *GuardedStore {
	return &GuardedStore{DocumentStore: inner}
}

func (g *GuardedStore) Put(ctx context.Context, collection, key string, fields map[string]interface{}, merge bool) error {
	if err := authorizeWrite(ctx, collection, key); err != nil {
		return err
	}
	return g.DocumentStore.Put(ctx, collection, key, fields, merge)
}

func (g *GuardedStore) Delete(ctx context.Context, collection, key string) error {
	if err := authorizeWrite(ctx, collection, key); err != nil {
		return err
	}
	return g.DocumentStore.Delete(ctx, collection, key)
}

func authorizeWrite(ctx context.Context, collection, key string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		// Запись без аутентификации запрещена всегда.
		return ErrWriteDenied
	}

	switch {
	case collection == "users":
		if key != actor {
			return ErrWriteDenied
		}
	case strings.HasPrefix(collection, "events/") &&
		(strings.HasSuffix(collection, "/attendees") || strings.HasSuffix(collection, "/picks")):
		if key != actor {
			return ErrWriteDenied
		}
	case collection == "teams":
		// Каталог команд доступен любому аутентифицированному субъекту.
	default:
		return ErrWriteDenied
	}
	return nil
}
