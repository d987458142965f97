package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutMergeKeepsUntouchedFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "users", "u1", map[string]interface{}{
		"display_name":  "Ana",
		"contact_phone": "+15105550100",
	}, true))
	require.NoError(t, s.Put(ctx, "users", "u1", map[string]interface{}{
		"display_name": "Ana María",
	}, true))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", doc.String("display_name"))
	assert.Equal(t, "+15105550100", doc.String("contact_phone"))
}

func TestMemoryStorePutReplaceDropsOldFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "users", "u1", map[string]interface{}{
		"display_name":  "Ana",
		"contact_phone": "+15105550100",
	}, true))
	require.NoError(t, s.Put(ctx, "users", "u1", map[string]interface{}{
		"display_name": "Ana",
	}, false))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "", doc.String("contact_phone"))
}

func TestMemoryStoreMissingDocuments(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "users", "ghost")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = s.Delete(ctx, "users", "ghost")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStoreListOrdersByCreation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, s.Put(ctx, "teams", "b-team", map[string]interface{}{"name": "B"}, true))
	require.NoError(t, s.Put(ctx, "teams", "a-team", map[string]interface{}{"name": "A"}, true))

	docs, err := s.List(ctx, "teams")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b-team", docs[0].Key)
	assert.Equal(t, "a-team", docs[1].Key)
}

func TestMemoryStoreSubscriptionPushesFullSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	collection := "events/e1/attendees"

	sub, err := s.SubscribeCollection(ctx, collection)
	require.NoError(t, err)
	defer sub.Cancel()

	// Первый снимок приходит сразу, ещё до каких-либо изменений.
	assert.Empty(t, receiveSnapshot(t, sub))

	require.NoError(t, s.Put(ctx, collection, "u1", map[string]interface{}{"side": "A"}, true))
	docs := receiveSnapshot(t, sub)
	require.Len(t, docs, 1)
	assert.Equal(t, "A", docs[0].String("side"))

	require.NoError(t, s.Put(ctx, collection, "u2", map[string]interface{}{"side": "B"}, true))
	assert.Len(t, receiveSnapshot(t, sub), 2)

	require.NoError(t, s.Delete(ctx, collection, "u1"))
	docs = receiveSnapshot(t, sub)
	require.Len(t, docs, 1)
	assert.Equal(t, "u2", docs[0].Key)
}

func TestMemoryStoreSubscriptionCoalescesWhenSlow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	collection := "events/e1/attendees"

	sub, err := s.SubscribeCollection(ctx, collection)
	require.NoError(t, err)
	defer sub.Cancel()
	receiveSnapshot(t, sub)

	// Подписчик не читает: снимки вытесняют друг друга, остаётся последний.
	require.NoError(t, s.Put(ctx, collection, "u1", map[string]interface{}{"side": "A"}, true))
	require.NoError(t, s.Put(ctx, collection, "u2", map[string]interface{}{"side": "B"}, true))
	require.NoError(t, s.Put(ctx, collection, "u3", map[string]interface{}{"side": "A"}, true))

	assert.Len(t, receiveSnapshot(t, sub), 3)
}

func TestMemoryStoreConcurrentWritersLastSnapshotIsFinal(t *testing.T) {
	// Конкурентные писатели: снимок, доставленный последним, обязан
	// соответствовать итоговому множеству — устаревший снимок не имеет
	// права вытеснить более свежий.
	const iterations = 500
	const writers = 4

	for i := 0; i < iterations; i++ {
		s := NewMemoryStore()
		ctx := context.Background()
		collection := "events/e1/attendees"

		sub, err := s.SubscribeCollection(ctx, collection)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				key := string(rune('a' + w))
				require.NoError(t, s.Put(ctx, collection, key, map[string]interface{}{"side": "A"}, true))
			}(w)
		}
		wg.Wait()

		// Все записи завершены: вычитываем канал до конца, последний
		// доставленный снимок должен содержать все документы.
		var last []Document
	drain:
		for {
			select {
			case docs := <-sub.Updates():
				last = docs
			default:
				break drain
			}
		}
		require.Len(t, last, writers, "iteration %d delivered a stale snapshot last", i)
		sub.Cancel()
	}
}

func TestMemoryStoreSubscriptionCancel(t *testing.T) {
	s := NewMemoryStore()
	sub, err := s.SubscribeCollection(context.Background(), "teams")
	require.NoError(t, err)

	sub.Cancel()
	sub.Cancel() // повторная отмена безопасна

	// После отмены канал закрыт и дренирован до конца.
	for range sub.Updates() {
	}

	// Запись после отмены не должна паниковать на закрытом канале.
	require.NoError(t, s.Put(context.Background(), "teams", "x", map[string]interface{}{"name": "X"}, true))
}

func TestMemoryStoreDocumentSubscription(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sub, err := s.SubscribeDocument(ctx, "users", "u1")
	require.NoError(t, err)
	defer sub.Cancel()

	// Документа ещё нет — приходит nil.
	assert.Nil(t, receiveDocument(t, sub))

	require.NoError(t, s.Put(ctx, "users", "u1", map[string]interface{}{"display_name": "Ana"}, true))
	doc := receiveDocument(t, sub)
	require.NotNil(t, doc)
	assert.Equal(t, "Ana", doc.String("display_name"))

	require.NoError(t, s.Delete(ctx, "users", "u1"))
	assert.Nil(t, receiveDocument(t, sub))
}

func TestGuardedStoreWritePolicy(t *testing.T) {
	s := NewGuardedStore(NewMemoryStore())
	fields := map[string]interface{}{"k": "v"}

	anon := context.Background()
	asU1 := WithActor(context.Background(), "u1")

	// Без аутентификации запись запрещена всегда.
	assert.ErrorIs(t, s.Put(anon, "users", "u1", fields, true), ErrWriteDenied)
	assert.ErrorIs(t, s.Delete(anon, "users", "u1"), ErrWriteDenied)

	// Свой профиль, своя запись посещения и своя квиниела — можно.
	assert.NoError(t, s.Put(asU1, "users", "u1", fields, true))
	assert.NoError(t, s.Put(asU1, "events/e1/attendees", "u1", fields, true))
	assert.NoError(t, s.Put(asU1, "events/e1/picks", "u1", fields, true))

	// Чужой ключ — нельзя, даже с валидной сессией.
	assert.ErrorIs(t, s.Put(asU1, "users", "u2", fields, true), ErrWriteDenied)
	assert.ErrorIs(t, s.Put(asU1, "events/e1/attendees", "u2", fields, true), ErrWriteDenied)
	assert.ErrorIs(t, s.Put(asU1, "events/e1/picks", "u2", fields, true), ErrWriteDenied)
	assert.ErrorIs(t, s.Delete(asU1, "events/e1/attendees", "u2"), ErrWriteDenied)

	// Каталог команд открыт любому аутентифицированному субъекту.
	assert.NoError(t, s.Put(asU1, "teams", "some-team", fields, true))

	// Прочие коллекции по умолчанию закрыты.
	assert.ErrorIs(t, s.Put(asU1, "identities", "u1", fields, true), ErrWriteDenied)
}

func TestGuardedStoreReadsPassThrough(t *testing.T) {
	inner := NewMemoryStore()
	s := NewGuardedStore(inner)
	ctx := context.Background()

	require.NoError(t, inner.Put(ctx, "users", "u1", map[string]interface{}{"display_name": "Ana"}, true))

	doc, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc.String("display_name"))

	docs, err := s.List(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func receiveSnapshot(t *testing.T, sub *CollectionSubscription) []Document {
	t.Helper()
	select {
	case docs, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed unexpectedly")
		return docs
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for collection snapshot")
		return nil
	}
}

func receiveDocument(t *testing.T, sub *DocumentSubscription) *Document {
	t.Helper()
	select {
	case doc, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed unexpectedly")
		return doc
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for document snapshot")
		return nil
	}
}
