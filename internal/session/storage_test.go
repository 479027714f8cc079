package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talesmith-ai/talesmith/internal/history"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	sess := New(20)
	sess.History.Append(history.RoleUser, "Hello")
	sess.History.AppendTool("call_1", "Interface updated.")
	sess.History.Append(history.RoleAssistant, "Welcome to the keep.")

	require.NoError(t, store.Save(sess))

	loaded, err := store.Load(sess.ID, 20)
	require.NoError(t, err)

	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, sess.History.Turns(), loaded.History.Turns())
}

func TestLoadAppliesEvictionWindow(t *testing.T) {
	store, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	sess := New(20)
	for i := 0; i < 10; i++ {
		sess.History.Append(history.RoleUser, "turn")
	}
	require.NoError(t, store.Save(sess))

	// Resuming with a smaller window keeps only the most recent turns.
	loaded, err := store.Load(sess.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.History.Len())

	want := sess.History.Turns()
	assert.Equal(t, want[len(want)-4:], loaded.History.Turns())
}

func TestLoadMissingSession(t *testing.T) {
	store, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("no-such-id", 20)
	assert.Error(t, err)
}

func TestListAndDelete(t *testing.T) {
	store, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	a := New(20)
	b := New(20)
	require.NoError(t, store.Save(a))
	require.NoError(t, store.Save(b))

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	require.NoError(t, store.Delete(a.ID))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(a.ID))
}
