package upload

// Status is the lifecycle state of a multipart session. It only advances
// forward: pending -> uploaded -> completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploaded  Status = "uploaded"
	StatusCompleted Status = "completed"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusUploaded:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether a session may move from s to next. Staying on
// the same status is allowed so persistence calls are idempotent.
func (s Status) CanAdvanceTo(next Status) bool {
	sr, nr := s.rank(), next.rank()
	return sr >= 0 && nr >= 0 && nr >= sr
}

// SessionKey uniquely identifies one multipart session. Exactly one live
// session exists per key; a second upload attempt loads it instead of
// creating a duplicate.
type SessionKey struct {
	LocalID      string
	FileHash     string
	CollectionID string
}

// Session is the durable record of one in-flight or finished multipart
// upload, reloaded verbatim after a crash.
type Session struct {
	SessionKey

	ObjectKey   string
	CompleteURL string
	PartURLs    []string
	PartSize    int64
	Status      Status

	// PartUploadStatus[i] is true once part i's etag is durably recorded.
	PartUploadStatus []bool
	// PartETags maps 0-based part index to the backend-issued identifier.
	PartETags map[int]string

	// WrappedKey and KeyNonce carry the collection-key-wrapped file key so a
	// resumed session can re-derive its encryption identity.
	WrappedKey []byte
	KeyNonce   []byte
}

// PartCount returns the planned number of parts.
func (s *Session) PartCount() int {
	return len(s.PartURLs)
}

// FirstPending returns the index of the first part that is not yet uploaded.
// Resumption is only safe when the uploaded parts form a contiguous prefix;
// a gap returns ErrSessionCorrupted and the session must not be resumed.
func (s *Session) FirstPending() (int, error) {
	first := -1
	for i, done := range s.PartUploadStatus {
		if !done {
			if first == -1 {
				first = i
			}
			continue
		}
		if first != -1 {
			return 0, ErrSessionCorrupted
		}
		if s.PartETags[i] == "" {
			return 0, ErrSessionCorrupted
		}
	}
	if first == -1 {
		return s.PartCount(), nil
	}
	return first, nil
}

// CreateParams is everything the store persists when a session is created,
// before the first byte is uploaded.
type CreateParams struct {
	ObjectKey   string
	CompleteURL string
	PartURLs    []string
	PartSize    int64
	WrappedKey  []byte
	KeyNonce    []byte
}

// SessionStore is the persistence contract the orchestrator drives. Calls
// must be atomic and safe to interleave across unrelated sessions; within one
// session the orchestrator is the single writer.
type SessionStore interface {
	// CreateSession persists a new session in the pending state. It fails
	// with ErrSessionExists if the key already has a live session.
	CreateSession(key SessionKey, params *CreateParams) error

	// GetSession loads the session for key, or ErrSessionNotFound.
	GetSession(key SessionKey) (*Session, error)

	// TouchLastAttempt stamps the session's last activity time. Liveness
	// hint only, not correctness-critical.
	TouchLastAttempt(key SessionKey) error

	// RecordPartUploaded durably records a part's etag. It must be on disk
	// before the next part upload begins.
	RecordPartUploaded(objectKey string, partIndex int, etag string) error

	// SetSessionStatus advances the session status. Moving backwards fails
	// with ErrStatusRegression.
	SetSessionStatus(objectKey string, status Status) error
}
