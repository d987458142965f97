package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronos-live/attendance-system/models"
	"github.com/cronos-live/attendance-system/store"
)

func newProfileFixture(t *testing.T) (*ProfileService, *store.MemoryStore, context.Context, *models.Identity) {
	t.Helper()
	memory := store.NewMemoryStore()
	guarded := store.NewGuardedStore(memory)
	profiles := NewProfileService(guarded, newTestCatalog(t), NewTeamService(guarded))
	identity := &models.Identity{SubjectID: "subj-1", VerificationState: models.VerificationAnonymous}
	ctx := store.WithActor(context.Background(), identity.SubjectID)
	return profiles, memory, ctx, identity
}

func TestProfileGetEmpty(t *testing.T) {
	profiles, _, ctx, identity := newProfileFixture(t)

	// Субъект без профиля получает пустой профиль, не ошибку.
	view, err := profiles.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, identity.SubjectID, view.Profile.SubjectID)
	assert.Empty(t, view.Profile.DisplayName)
	assert.Empty(t, view.Reservations)

	_, err = profiles.Get(ctx, nil)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestProfileGetIncludesReservations(t *testing.T) {
	profiles, memory, ctx, identity := newProfileFixture(t)

	require.NoError(t, memory.Put(ctx, "users", identity.SubjectID, map[string]interface{}{
		"display_name":  "Ana",
		"contact_phone": "+15105550100",
	}, true))
	require.NoError(t, memory.Put(ctx, AttendeesCollection("mex-jpn-2025"), identity.SubjectID,
		map[string]interface{}{
			"side":             "A",
			"team_label":       "México",
			"reservation_code": "042917",
		}, true))

	view, err := profiles.Get(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "Ana", view.Profile.DisplayName)
	require.Len(t, view.Reservations, 1)
	assert.Equal(t, "mex-jpn-2025", view.Reservations[0].EventID)
	assert.Equal(t, models.SideA, view.Reservations[0].Side)
	assert.Equal(t, "042917", view.Reservations[0].ReservationCode)
}

func TestProfileUpdateMerges(t *testing.T) {
	profiles, memory, ctx, identity := newProfileFixture(t)

	require.NoError(t, memory.Put(ctx, "users", identity.SubjectID, map[string]interface{}{
		"display_name":  "Ana",
		"contact_phone": "+15105550100",
	}, true))

	updated, err := profiles.Update(ctx, identity, ProfileUpdate{FavoriteSide: "Club América"})
	require.NoError(t, err)

	// Merge: телефон и имя не затронуты, любимая команда добавлена.
	assert.Equal(t, "Ana", updated.DisplayName)
	assert.Equal(t, "+15105550100", updated.ContactPhone)
	assert.Equal(t, "Club América", updated.FavoriteSide)

	// Новая команда попала в каталог для пикеров.
	teams, err := memory.List(ctx, "teams")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "Club América", teams[0].String("name"))
}

func TestProfileUpdateValidation(t *testing.T) {
	profiles, _, ctx, identity := newProfileFixture(t)

	_, err := profiles.Update(ctx, identity, ProfileUpdate{})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = profiles.Update(ctx, nil, ProfileUpdate{DisplayName: "Ana"})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	// Контекст чужого субъекта: охрана хранилища отклоняет запись.
	foreignCtx := store.WithActor(context.Background(), "someone-else")
	_, err = profiles.Update(foreignCtx, identity, ProfileUpdate{DisplayName: "Ana"})
	assert.ErrorIs(t, err, ErrForbiddenOperation)
}
