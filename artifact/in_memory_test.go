package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndGet(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("session-1", "settlement", []byte("结算报告")))

	data, err := store.Get("session-1", "settlement")
	require.NoError(t, err)
	assert.Equal(t, []byte("结算报告"), data)
}

func TestStore_GetCopiesData(t *testing.T) {
	store := NewInMemoryStore()

	src := []byte("original")
	require.NoError(t, store.Save("session-1", "contract", src))

	// Mutating the caller's buffer must not affect the stored artifact.
	src[0] = 'X'
	data, err := store.Get("session-1", "contract")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)

	// Nor must mutating a retrieved copy.
	data[0] = 'Y'
	again, err := store.Get("session-1", "contract")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("session-1", "settlement", []byte("v1")))
	require.NoError(t, store.Save("session-1", "settlement", []byte("v2")))

	data, err := store.Get("session-1", "settlement")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestStore_GetNotFound(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Get("session-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save("session-1", "settlement", []byte("x")))
	_, err = store.Get("session-2", "settlement")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	store := NewInMemoryStore()

	ids, err := store.List("session-1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save("session-1", "settlement", []byte("a")))
	require.NoError(t, store.Save("session-1", "procurement_contract", []byte("b")))
	require.NoError(t, store.Save("session-2", "other", []byte("c")))

	ids, err = store.List("session-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"settlement", "procurement_contract"}, ids)
}

func TestStore_Delete(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("session-1", "settlement", []byte("a")))
	require.NoError(t, store.Delete("session-1", "settlement"))

	_, err := store.Get("session-1", "settlement")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete("session-1", "settlement"), ErrNotFound)
	assert.ErrorIs(t, store.Delete("no-such-session", "settlement"), ErrNotFound)
}
