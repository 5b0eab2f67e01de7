package memstore

import (
	"context"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &authcore.User{
		ID:        "u1",
		Email:     "Ada@Example.com",
		Providers: []authcore.ProviderLink{{Provider: "google", Subject: "g-1"}},
	}
	require.NoError(t, s.Create(ctx, u))

	got, err := s.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	got, err = s.FindByProvider(ctx, "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	got.Email = "mutated@example.com"
	again, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", again.Email, "stored user must not alias returned clones")

	assert.ErrorIs(t, s.Create(ctx, &authcore.User{ID: "u2", Email: "ada@example.com"}), authcore.ErrRecordExists)
	assert.ErrorIs(t, s.Create(ctx, &authcore.User{ID: "u1", Email: "other@example.com"}), authcore.ErrRecordExists)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, authcore.ErrRecordNotFound)
}

func TestUpdateReindexesProviders(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, &authcore.User{ID: "u1", Email: "a@example.com"}))
	require.NoError(t, s.Create(ctx, &authcore.User{ID: "u2", Email: "b@example.com",
		Providers: []authcore.ProviderLink{{Provider: "google", Subject: "taken"}}}))

	links := []authcore.ProviderLink{{Provider: "google", Subject: "g-1"}}
	require.NoError(t, s.Update(ctx, "u1", authcore.UserPatch{Providers: &links}))

	got, err := s.FindByProvider(ctx, "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	stolen := []authcore.ProviderLink{{Provider: "google", Subject: "taken"}}
	assert.ErrorIs(t, s.Update(ctx, "u1", authcore.UserPatch{Providers: &stolen}), authcore.ErrRecordExists)

	assert.ErrorIs(t, s.Update(ctx, "nobody", authcore.UserPatch{}), authcore.ErrRecordNotFound)
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, &authcore.User{ID: "u1", Email: "a@example.com"}))

	assert.ErrorIs(t, s.CreateSession(ctx, "nobody", session.Session{Hash: "h"}), authcore.ErrRecordNotFound)

	require.NoError(t, s.CreateSession(ctx, "u1", session.Session{Hash: "h1", IP: "10.0.0.1"}))
	require.NoError(t, s.CreateSession(ctx, "u1", session.Session{Hash: "h2"}))
	assert.ErrorIs(t, s.CreateSession(ctx, "u1", session.Session{Hash: "h1"}), authcore.ErrRecordExists)

	require.NoError(t, s.UpdateSession(ctx, "u1", session.Session{Hash: "h1", IP: "10.0.0.9"}))
	assert.ErrorIs(t, s.UpdateSession(ctx, "u1", session.Session{Hash: "nope"}), authcore.ErrRecordNotFound)

	list, err := s.Sessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].Hash)
	assert.Equal(t, "10.0.0.9", list[0].IP)

	require.NoError(t, s.DeleteSession(ctx, "u1", "h1"))
	require.NoError(t, s.DeleteSession(ctx, "u1", "h1"))
	list, err = s.Sessions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "u1"))
	_, err = s.Sessions(ctx, "u1")
	assert.ErrorIs(t, err, authcore.ErrRecordNotFound)
	_, err = s.FindByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, authcore.ErrRecordNotFound)
}
