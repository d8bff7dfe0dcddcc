// Package uuid provides unit tests for id generation and remapping.
package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew tests that New() generates valid UUID v4 strings.
func TestNew(t *testing.T) {
	id := New()
	require.NotEmpty(t, id)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.Equal(t, uuid.RFC4122, parsed.Variant())

	_, err = uuid.Parse(NewID().String())
	assert.NoError(t, err)
}

// TestNewUniqueness tests that New() generates unique IDs.
func TestNewUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		require.False(t, ids[id], "duplicate UUID generated: %s", id)
		ids[id] = true
	}
}

// TestRemapper verifies one-way, consistent translation of foreign ids.
func TestRemapper(t *testing.T) {
	r := NewRemapper()

	mount, err := r.Assign("mount")
	require.NoError(t, err)
	armbar, err := r.Assign("armbar")
	require.NoError(t, err)
	assert.NotEqual(t, mount, armbar)
	_, err = uuid.Parse(mount.String())
	assert.NoError(t, err)

	got, ok := r.Lookup("mount")
	require.True(t, ok)
	assert.Equal(t, mount, got)

	_, ok = r.Lookup("guard")
	assert.False(t, ok)

	_, err = r.Assign("mount")
	assert.Error(t, err, "duplicate foreign id")
	_, err = r.Assign("")
	assert.Error(t, err)

	_, ok = r.Lookup("")
	assert.False(t, ok, "a rejected id is not assigned")
}
