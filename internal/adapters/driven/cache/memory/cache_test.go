package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New()

	c.Set("key", []byte("value"))

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)
	assert.True(t, c.Has("key"))

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.False(t, c.Has("missing"))
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := New()

	original := []byte("value")
	c.Set("key", original)
	original[0] = 'X'

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), got)

	got[0] = 'Y'
	again, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), again)
}

func TestCache_Expiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(WithTTL(time.Minute), WithClock(clock))

	c.Set("key", []byte("value"))
	assert.True(t, c.Has("key"))

	now = now.Add(2 * time.Minute)

	_, ok := c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := New(WithTTL(0), WithClock(func() time.Time { return now }))

	c.Set("key", []byte("value"))
	now = now.Add(24 * 365 * time.Hour)

	assert.True(t, c.Has("key"))
}

func TestCache_Delete(t *testing.T) {
	c := New()

	c.Set("key", []byte("value"))
	c.Delete("key")
	assert.False(t, c.Has("key"))

	c.Delete("missing")
}

func TestCache_SetSweepsExpiredEntries(t *testing.T) {
	now := time.Now()
	c := New(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	c.Set("old", []byte("value"))
	now = now.Add(2 * time.Minute)
	c.Set("new", []byte("value"))

	assert.Equal(t, 1, c.Len())
}

func TestCache_Overwrite(t *testing.T) {
	c := New()

	c.Set("key", []byte("first"))
	c.Set("key", []byte("second"))

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)
}
