package session

import (
	"errors"
	"testing"

	"microblog-client/internal/models"
	"microblog-client/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPersister struct {
	err error
}

func (f *failingPersister) Get(string) (string, error) { return "", f.err }
func (f *failingPersister) Set(string, string) error   { return f.err }
func (f *failingPersister) Delete(string) error        { return f.err }

func newDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_RestoreEmpty(t *testing.T) {
	s := NewStore(newDB(t))
	require.NoError(t, s.Restore())
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
}

func TestStore_RestoreDoesNotValidate(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Set(TokenKey, "persisted"))

	s := NewStore(db)
	require.NoError(t, s.Restore())

	assert.True(t, s.IsAuthenticated())
	assert.Nil(t, s.User(), "restored token must not carry a profile")
	token, _ := s.Token()
	assert.Equal(t, "persisted", token)
}

func TestStore_SetAuthenticatedPersists(t *testing.T) {
	db := newDB(t)
	s := NewStore(db)

	user := &models.User{ID: 1, Username: "alice"}
	require.NoError(t, s.SetAuthenticated("tok", user))

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "alice", s.User().Username)

	stored, err := db.Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", stored)
}

func TestStore_SetAuthenticatedRequiresBoth(t *testing.T) {
	s := NewStore(newDB(t))
	assert.Error(t, s.SetAuthenticated("tok", nil))
	assert.Error(t, s.SetAuthenticated("", &models.User{ID: 1}))
	assert.False(t, s.IsAuthenticated())
}

func TestStore_SetAuthenticatedPersistFailure(t *testing.T) {
	s := NewStore(&failingPersister{err: errors.New("disk full")})

	err := s.SetAuthenticated("tok", &models.User{ID: 1})
	require.Error(t, err)
	assert.False(t, s.IsAuthenticated(), "state must be unchanged when persisting fails")
}

func TestStore_ClearRemovesPersistedToken(t *testing.T) {
	db := newDB(t)
	s := NewStore(db)
	require.NoError(t, s.SetAuthenticated("tok", &models.User{ID: 1}))

	require.NoError(t, s.Clear())

	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	_, err := db.Get(TokenKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ClearAlwaysClearsMemory(t *testing.T) {
	p := &failingPersister{}
	s := NewStore(p)
	require.NoError(t, s.SetAuthenticated("tok", &models.User{ID: 1}))

	p.err = errors.New("read-only")
	err := s.Clear()
	assert.Error(t, err)
	assert.False(t, s.IsAuthenticated())
}

func TestStore_SetUserIgnoresStaleGeneration(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Set(TokenKey, "persisted"))
	s := NewStore(db)
	require.NoError(t, s.Restore())

	_, gen := s.Token()
	require.NoError(t, s.Clear())

	assert.False(t, s.SetUser(gen, &models.User{ID: 9}))
	assert.Nil(t, s.User())
}

func TestStore_SetUserCurrentGeneration(t *testing.T) {
	db := newDB(t)
	require.NoError(t, db.Set(TokenKey, "persisted"))
	s := NewStore(db)
	require.NoError(t, s.Restore())

	_, gen := s.Token()
	assert.True(t, s.SetUser(gen, &models.User{ID: 9, Username: "zed"}))
	assert.Equal(t, "zed", s.Snapshot().User.Username)
}

func TestStore_InvalidateOnlyCurrentGeneration(t *testing.T) {
	db := newDB(t)
	s := NewStore(db)
	require.NoError(t, s.SetAuthenticated("old", &models.User{ID: 1}))
	_, staleGen := s.Token()
	require.NoError(t, s.SetAuthenticated("new", &models.User{ID: 1}))

	cleared, err := s.Invalidate(staleGen)
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.True(t, s.IsAuthenticated())

	_, gen := s.Token()
	cleared, err = s.Invalidate(gen)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, s.IsAuthenticated())
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore(newDB(t))
	require.NoError(t, s.SetAuthenticated("tok", &models.User{ID: 1, Username: "alice"}))

	snap := s.Snapshot()
	snap.User.Username = "mallory"
	assert.Equal(t, "alice", s.User().Username)
}

func TestStore_AuthenticateIgnoresStaleGeneration(t *testing.T) {
	db := newDB(t)
	s := NewStore(db)
	gen := s.Generation()
	require.NoError(t, s.Clear())

	ok, err := s.Authenticate(gen, "late", &models.User{ID: 1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())
	_, err = db.Get(TokenKey)
	assert.ErrorIs(t, err, storage.ErrNotFound, "a discarded login must not be persisted")

	ok, err = s.Authenticate(s.Generation(), "fresh", &models.User{ID: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	persisted, err := db.Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "fresh", persisted)
}
