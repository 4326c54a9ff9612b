package keystore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldwatch/intel-backend/internal/testutil"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", map[string]int{"count": 3}))

	data, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"count":3}`, string(data))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_MissingKey(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := NewMemoryStore()

	data, found, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestMemoryStore_OverwriteReplacesValue(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", "first"))
	require.NoError(t, store.Set(ctx, "k", "second"))

	data, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)

	var got string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_RejectsUnmarshalableValue(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := NewMemoryStore()

	err := store.Set(ctx, "k", make(chan int))
	assert.Error(t, err)
	assert.Zero(t, store.Len())
}
