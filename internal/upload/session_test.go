package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	assert.True(t, StatusPending.CanAdvanceTo(StatusUploaded))
	assert.True(t, StatusPending.CanAdvanceTo(StatusCompleted))
	assert.True(t, StatusUploaded.CanAdvanceTo(StatusCompleted))

	// idempotent
	assert.True(t, StatusUploaded.CanAdvanceTo(StatusUploaded))
	assert.True(t, StatusCompleted.CanAdvanceTo(StatusCompleted))

	// never backwards
	assert.False(t, StatusUploaded.CanAdvanceTo(StatusPending))
	assert.False(t, StatusCompleted.CanAdvanceTo(StatusUploaded))
	assert.False(t, StatusCompleted.CanAdvanceTo(StatusPending))

	// unknown states advance nowhere
	assert.False(t, Status("gone").CanAdvanceTo(StatusPending))
	assert.False(t, StatusPending.CanAdvanceTo(Status("gone")))
}

func TestSessionFirstPending(t *testing.T) {
	sess := &Session{
		PartURLs:         []string{"a", "b", "c"},
		PartUploadStatus: []bool{true, true, false},
		PartETags:        map[int]string{0: "e0", 1: "e1"},
	}

	first, err := sess.FirstPending()
	require.NoError(t, err)
	assert.Equal(t, 2, first)
}

func TestSessionFirstPending_NothingUploaded(t *testing.T) {
	sess := &Session{
		PartURLs:         []string{"a", "b"},
		PartUploadStatus: []bool{false, false},
		PartETags:        map[int]string{},
	}

	first, err := sess.FirstPending()
	require.NoError(t, err)
	assert.Equal(t, 0, first)
}

func TestSessionFirstPending_AllUploaded(t *testing.T) {
	sess := &Session{
		PartURLs:         []string{"a", "b"},
		PartUploadStatus: []bool{true, true},
		PartETags:        map[int]string{0: "e0", 1: "e1"},
	}

	first, err := sess.FirstPending()
	require.NoError(t, err)
	assert.Equal(t, 2, first)
}

func TestSessionFirstPending_GapFailsClosed(t *testing.T) {
	sess := &Session{
		PartURLs:         []string{"a", "b", "c"},
		PartUploadStatus: []bool{true, false, true},
		PartETags:        map[int]string{0: "e0", 2: "e2"},
	}

	_, err := sess.FirstPending()
	assert.ErrorIs(t, err, ErrSessionCorrupted)
}

func TestSessionFirstPending_UploadedPartWithoutETag(t *testing.T) {
	sess := &Session{
		PartURLs:         []string{"a", "b"},
		PartUploadStatus: []bool{true, false},
		PartETags:        map[int]string{},
	}

	_, err := sess.FirstPending()
	assert.ErrorIs(t, err, ErrSessionCorrupted)
}
