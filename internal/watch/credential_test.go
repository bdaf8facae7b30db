package watch

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_PerServer(t *testing.T) {
	store := NewTokenStore(keyring.NewArrayKeyring(nil))

	_, err := store.Load("http://relief.local:8080")
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save("http://relief.local:8080/", "tok-a"))
	require.NoError(t, store.Save("https://other.example", "tok-b"))

	got, err := store.Load("https://RELIEF.local:8080/api")
	require.NoError(t, err)
	assert.Equal(t, "tok-a", got)

	got, err = store.Load("https://other.example")
	require.NoError(t, err)
	assert.Equal(t, "tok-b", got)

	require.NoError(t, store.Save("http://relief.local:8080", "tok-a2"))
	got, err = store.Load("http://relief.local:8080")
	require.NoError(t, err)
	assert.Equal(t, "tok-a2", got)
}

func TestTokenStore_Forget(t *testing.T) {
	store := NewTokenStore(keyring.NewArrayKeyring(nil))
	require.NoError(t, store.Save("http://relief.local", "tok"))

	require.NoError(t, store.Forget("http://relief.local"))
	require.NoError(t, store.Forget("http://relief.local"))

	_, err := store.Load("http://relief.local")
	assert.ErrorIs(t, err, ErrNoToken)
}
