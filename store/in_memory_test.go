package store

import (
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySessionStore_SaveGetIsolation(t *testing.T) {
	s := NewInMemorySessionStore()

	sess := core.NewSession("s1")
	sess.AddMessage(core.NewUserMessage("a1", "hello"))
	require.NoError(t, s.Save(sess))

	// Mutating the original after save must not change the stored copy.
	sess.AddMessage(core.NewUserMessage("a1", "later"))

	got, err := s.Get("s1")
	require.NoError(t, err)
	assert.Len(t, got.GetMessages(), 1)

	// Mutating the returned copy must not change the stored copy either.
	got.AddMessage(core.NewUserMessage("a1", "external"))
	again, err := s.Get("s1")
	require.NoError(t, err)
	assert.Len(t, again.GetMessages(), 1)
}

func TestInMemorySessionStore_GetUnknownReturnsErrNotFound(t *testing.T) {
	s := NewInMemorySessionStore()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemorySessionStore_AppendMessageCreatesLazily(t *testing.T) {
	s := NewInMemorySessionStore()

	require.NoError(t, s.AppendMessage("s1", core.NewUserMessage("a1", "first")))
	require.NoError(t, s.AppendMessage("s1", core.NewUserMessage("a1", "second")))

	got, err := s.Get("s1")
	require.NoError(t, err)
	msgs := got.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text())
	assert.Equal(t, "second", msgs[1].Text())
}

func TestInMemorySessionStore_DeleteAndCount(t *testing.T) {
	s := NewInMemorySessionStore()
	require.NoError(t, s.Save(core.NewSession("s1")))
	require.NoError(t, s.Save(core.NewSession("s2")))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Delete("s1"))
	require.NoError(t, s.Delete("s1")) // unknown id is a no-op

	ok, err := s.Exists("s1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInMemoryDefinitionStore_CRUDAndFindByName(t *testing.T) {
	s := NewInMemoryDefinitionStore()

	def := core.NewDefinition("researcher", "You research things.", "test-model")
	require.NoError(t, s.Save(def))

	got, err := s.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)

	byName, err := s.FindByName("researcher")
	require.NoError(t, err)
	assert.Equal(t, def.ID, byName.ID)

	_, err = s.FindByName("unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(def.ID))
	_, err = s.Get(def.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryImageStore_CopiesBytes(t *testing.T) {
	s := NewInMemoryImageStore()

	data := []byte{1, 2, 3}
	img := core.NewImage("image/png", data)
	require.NoError(t, s.Save(img))

	// Mutating the caller's buffer must not affect the stored image.
	data[0] = 99

	got, err := s.Get(img.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Data)

	// Mutating the returned buffer must not affect the stored image.
	got.Data[1] = 42
	again, err := s.Get(img.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, again.Data)
}
