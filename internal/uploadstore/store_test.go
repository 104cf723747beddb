package uploadstore

import (
	"path/filepath"
	"testing"

	"github.com/openmined/syftvault/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "uploads.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	return store
}

func testSessionKey() upload.SessionKey {
	return upload.SessionKey{
		LocalID:      "/data/photo.enc",
		FileHash:     "deadbeef",
		CollectionID: "col-1",
	}
}

func testCreateParams() *upload.CreateParams {
	return &upload.CreateParams{
		ObjectKey:   "obj-1",
		CompleteURL: "https://storage.example/complete",
		PartURLs:    []string{"https://storage.example/p1", "https://storage.example/p2", "https://storage.example/p3"},
		PartSize:    10_000_000,
		WrappedKey:  []byte{1, 2, 3},
		KeyNonce:    []byte{4, 5, 6},
	}
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()

	require.NoError(t, store.CreateSession(key, testCreateParams()))

	sess, err := store.GetSession(key)
	require.NoError(t, err)

	assert.Equal(t, "obj-1", sess.ObjectKey)
	assert.Equal(t, "https://storage.example/complete", sess.CompleteURL)
	assert.Len(t, sess.PartURLs, 3)
	assert.Equal(t, int64(10_000_000), sess.PartSize)
	assert.Equal(t, upload.StatusPending, sess.Status)
	assert.Equal(t, []bool{false, false, false}, sess.PartUploadStatus)
	assert.Empty(t, sess.PartETags)
	assert.Equal(t, []byte{1, 2, 3}, sess.WrappedKey)
	assert.Equal(t, []byte{4, 5, 6}, sess.KeyNonce)
}

func TestCreateSession_DuplicateTuple(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()

	require.NoError(t, store.CreateSession(key, testCreateParams()))

	// one live session per tuple, enforced at the store boundary
	err := store.CreateSession(key, testCreateParams())
	assert.ErrorIs(t, err, upload.ErrSessionExists)
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(testSessionKey())
	assert.ErrorIs(t, err, upload.ErrSessionNotFound)
}

func TestRecordPartUploaded(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()
	require.NoError(t, store.CreateSession(key, testCreateParams()))

	require.NoError(t, store.RecordPartUploaded("obj-1", 0, "etag-1"))
	require.NoError(t, store.RecordPartUploaded("obj-1", 1, "etag-2"))

	sess, err := store.GetSession(key)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, false}, sess.PartUploadStatus)
	assert.Equal(t, map[int]string{0: "etag-1", 1: "etag-2"}, sess.PartETags)

	first, err := sess.FirstPending()
	require.NoError(t, err)
	assert.Equal(t, 2, first)
}

func TestRecordPartUploaded_EmptyETag(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()
	require.NoError(t, store.CreateSession(key, testCreateParams()))

	// an empty identifier must never mark a part uploaded
	require.Error(t, store.RecordPartUploaded("obj-1", 0, ""))

	sess, err := store.GetSession(key)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, sess.PartUploadStatus)
}

func TestSetSessionStatus_Monotonic(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()
	require.NoError(t, store.CreateSession(key, testCreateParams()))

	require.NoError(t, store.SetSessionStatus("obj-1", upload.StatusUploaded))
	require.NoError(t, store.SetSessionStatus("obj-1", upload.StatusCompleted))

	// idempotent
	require.NoError(t, store.SetSessionStatus("obj-1", upload.StatusCompleted))

	// never backwards
	err := store.SetSessionStatus("obj-1", upload.StatusPending)
	assert.ErrorIs(t, err, upload.ErrStatusRegression)

	err = store.SetSessionStatus("obj-1", upload.StatusUploaded)
	assert.ErrorIs(t, err, upload.ErrStatusRegression)

	sess, err := store.GetSession(key)
	require.NoError(t, err)
	assert.Equal(t, upload.StatusCompleted, sess.Status)
}

func TestSetSessionStatus_UnknownObjectKey(t *testing.T) {
	store := newTestStore(t)

	err := store.SetSessionStatus("nope", upload.StatusUploaded)
	assert.ErrorIs(t, err, upload.ErrSessionNotFound)
}

func TestTouchLastAttempt(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()
	require.NoError(t, store.CreateSession(key, testCreateParams()))

	assert.NoError(t, store.TouchLastAttempt(key))
}

func TestWrappedFileKey(t *testing.T) {
	store := newTestStore(t)
	key := testSessionKey()
	require.NoError(t, store.CreateSession(key, testCreateParams()))

	blob, nonce, err := store.WrappedFileKey(key.LocalID, key.FileHash, key.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob)
	assert.Equal(t, []byte{4, 5, 6}, nonce)

	_, _, err = store.WrappedFileKey("other", "other", "other")
	assert.ErrorIs(t, err, upload.ErrSessionNotFound)
}

func TestSessionsAreIndependent(t *testing.T) {
	store := newTestStore(t)

	keyA := testSessionKey()
	keyB := upload.SessionKey{LocalID: "/data/other.enc", FileHash: "cafef00d", CollectionID: "col-2"}

	paramsB := testCreateParams()
	paramsB.ObjectKey = "obj-2"

	require.NoError(t, store.CreateSession(keyA, testCreateParams()))
	require.NoError(t, store.CreateSession(keyB, paramsB))

	require.NoError(t, store.RecordPartUploaded("obj-2", 0, "etag-b"))

	sessA, err := store.GetSession(keyA)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, sessA.PartUploadStatus)

	sessB, err := store.GetSession(keyB)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, sessB.PartUploadStatus)
}
