// Package uploadstore persists multipart upload sessions in SQLite. It is
// the crash-consistency boundary of the pipeline: a part is visible here
// strictly after its identifier was confirmed, so resumption after a crash
// never re-uploads or skips a part.
package uploadstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftvault/internal/db"
	"github.com/openmined/syftvault/internal/upload"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
    local_id TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    collection_id TEXT NOT NULL,
    object_key TEXT NOT NULL UNIQUE,
    complete_url TEXT NOT NULL,
    part_urls TEXT NOT NULL, -- JSON array, one url per part
    part_size INTEGER NOT NULL,
    part_count INTEGER NOT NULL,
    wrapped_key BLOB NOT NULL,
    key_nonce BLOB NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    last_attempt TEXT NOT NULL, -- RFC3339
    PRIMARY KEY (local_id, file_hash, collection_id)
);

CREATE TABLE IF NOT EXISTS upload_parts (
    object_key TEXT NOT NULL,
    part_index INTEGER NOT NULL,
    etag TEXT NOT NULL,
    PRIMARY KEY (object_key, part_index)
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_object_key ON upload_sessions(object_key);
`

type dbSession struct {
	LocalID      string `db:"local_id"`
	FileHash     string `db:"file_hash"`
	CollectionID string `db:"collection_id"`
	ObjectKey    string `db:"object_key"`
	CompleteURL  string `db:"complete_url"`
	PartURLs     string `db:"part_urls"`
	PartSize     int64  `db:"part_size"`
	PartCount    int    `db:"part_count"`
	WrappedKey   []byte `db:"wrapped_key"`
	KeyNonce     []byte `db:"key_nonce"`
	Status       string `db:"status"`
	LastAttempt  string `db:"last_attempt"`
}

type dbPart struct {
	ObjectKey string `db:"object_key"`
	PartIndex int    `db:"part_index"`
	ETag      string `db:"etag"`
}

// Store is a SQLite-backed upload.SessionStore. It also serves wrapped file
// keys back out of persisted sessions, so a resumed upload can re-derive its
// encryption identity (see keyring.KeyStore).
type Store struct {
	db     *sqlx.DB
	dbPath string
}

func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Open the store and the underlying database.
func (s *Store) Open() error {
	if s.db != nil {
		return fmt.Errorf("upload store already open")
	}

	database, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open upload store: %w", err)
	}

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return fmt.Errorf("initialize upload store schema: %w", err)
	}

	s.db = database
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return fmt.Errorf("upload store not open")
	}
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close upload store database", "error", err)
		return err
	}
	slog.Debug("upload store closed")
	return nil
}

// CreateSession persists a new pending session. The tuple uniqueness
// invariant is enforced here, at the store boundary: a second session for
// the same (localID, fileHash, collectionID) fails with ErrSessionExists.
func (s *Store) CreateSession(key upload.SessionKey, params *upload.CreateParams) error {
	urls, err := json.Marshal(params.PartURLs)
	if err != nil {
		return fmt.Errorf("encode part urls: %w", err)
	}

	data := dbSession{
		LocalID:      key.LocalID,
		FileHash:     key.FileHash,
		CollectionID: key.CollectionID,
		ObjectKey:    params.ObjectKey,
		CompleteURL:  params.CompleteURL,
		PartURLs:     string(urls),
		PartSize:     params.PartSize,
		PartCount:    len(params.PartURLs),
		WrappedKey:   params.WrappedKey,
		KeyNonce:     params.KeyNonce,
		Status:       string(upload.StatusPending),
		LastAttempt:  time.Now().UTC().Format(time.RFC3339),
	}

	query := `INSERT INTO upload_sessions
	          (local_id, file_hash, collection_id, object_key, complete_url, part_urls, part_size, part_count, wrapped_key, key_nonce, status, last_attempt)
	          VALUES (:local_id, :file_hash, :collection_id, :object_key, :complete_url, :part_urls, :part_size, :part_count, :wrapped_key, :key_nonce, :status, :last_attempt)`
	if _, err := s.db.NamedExec(query, data); err != nil {
		if isUniqueViolation(err) {
			return upload.ErrSessionExists
		}
		return fmt.Errorf("create session %s: %w", params.ObjectKey, err)
	}

	slog.Debug("upload session persisted", "objectKey", params.ObjectKey, "parts", len(params.PartURLs))
	return nil
}

// GetSession loads a session and its recorded parts.
func (s *Store) GetSession(key upload.SessionKey) (*upload.Session, error) {
	var row dbSession
	err := s.db.Get(&row,
		`SELECT * FROM upload_sessions WHERE local_id = ? AND file_hash = ? AND collection_id = ?`,
		key.LocalID, key.FileHash, key.CollectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, upload.ErrSessionNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	var urls []string
	if err := json.Unmarshal([]byte(row.PartURLs), &urls); err != nil {
		return nil, fmt.Errorf("decode part urls for %s: %w", row.ObjectKey, err)
	}
	if len(urls) != row.PartCount {
		return nil, fmt.Errorf("session %s has %d urls for %d parts: %w", row.ObjectKey, len(urls), row.PartCount, upload.ErrSessionCorrupted)
	}

	var parts []dbPart
	if err := s.db.Select(&parts, `SELECT * FROM upload_parts WHERE object_key = ? ORDER BY part_index`, row.ObjectKey); err != nil {
		return nil, fmt.Errorf("query parts for %s: %w", row.ObjectKey, err)
	}

	sess := &upload.Session{
		SessionKey:       key,
		ObjectKey:        row.ObjectKey,
		CompleteURL:      row.CompleteURL,
		PartURLs:         urls,
		PartSize:         row.PartSize,
		Status:           upload.Status(row.Status),
		PartUploadStatus: make([]bool, row.PartCount),
		PartETags:        make(map[int]string, len(parts)),
		WrappedKey:       row.WrappedKey,
		KeyNonce:         row.KeyNonce,
	}

	for _, part := range parts {
		if part.PartIndex < 0 || part.PartIndex >= row.PartCount {
			return nil, fmt.Errorf("session %s has part index %d out of range: %w", row.ObjectKey, part.PartIndex, upload.ErrSessionCorrupted)
		}
		sess.PartUploadStatus[part.PartIndex] = true
		sess.PartETags[part.PartIndex] = part.ETag
	}

	return sess, nil
}

// TouchLastAttempt stamps the session's last activity time.
func (s *Store) TouchLastAttempt(key upload.SessionKey) error {
	_, err := s.db.Exec(
		`UPDATE upload_sessions SET last_attempt = ? WHERE local_id = ? AND file_hash = ? AND collection_id = ?`,
		time.Now().UTC().Format(time.RFC3339), key.LocalID, key.FileHash, key.CollectionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// RecordPartUploaded durably records one part's identifier. The write is
// committed before this returns, so the next part only starts once this
// part's progress is safe.
func (s *Store) RecordPartUploaded(objectKey string, partIndex int, etag string) error {
	if etag == "" {
		return fmt.Errorf("record part %d of %s: empty etag", partIndex, objectKey)
	}
	if partIndex < 0 {
		return fmt.Errorf("record part of %s: negative index %d", objectKey, partIndex)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO upload_parts (object_key, part_index, etag) VALUES (?, ?, ?)`,
		objectKey, partIndex, etag)
	if err != nil {
		return fmt.Errorf("record part %d of %s: %w", partIndex, objectKey, err)
	}

	slog.Debug("part recorded", "objectKey", objectKey, "part", partIndex, "etag", etag)
	return nil
}

// SetSessionStatus advances a session's status. The status is monotonic;
// moving backwards fails with ErrStatusRegression.
func (s *Store) SetSessionStatus(objectKey string, status upload.Status) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("set status of %s: %w", objectKey, err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.Get(&current, `SELECT status FROM upload_sessions WHERE object_key = ?`, objectKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return upload.ErrSessionNotFound
		}
		return fmt.Errorf("set status of %s: %w", objectKey, err)
	}

	if !upload.Status(current).CanAdvanceTo(status) {
		return fmt.Errorf("set status of %s from %s to %s: %w", objectKey, current, status, upload.ErrStatusRegression)
	}

	if _, err := tx.Exec(`UPDATE upload_sessions SET status = ? WHERE object_key = ?`, string(status), objectKey); err != nil {
		return fmt.Errorf("set status of %s: %w", objectKey, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set status of %s: %w", objectKey, err)
	}

	slog.Debug("session status", "objectKey", objectKey, "status", status)
	return nil
}

// WrappedFileKey serves the persisted wrapped key for a session, satisfying
// keyring.KeyStore for resumed uploads.
func (s *Store) WrappedFileKey(localID, fileHash, collectionID string) ([]byte, []byte, error) {
	var row struct {
		WrappedKey []byte `db:"wrapped_key"`
		KeyNonce   []byte `db:"key_nonce"`
	}
	err := s.db.Get(&row,
		`SELECT wrapped_key, key_nonce FROM upload_sessions WHERE local_id = ? AND file_hash = ? AND collection_id = ?`,
		localID, fileHash, collectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, upload.ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("query wrapped key: %w", err)
	}
	return row.WrappedKey, row.KeyNonce, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// both sqlite drivers surface constraint failures in the message
	return strings.Contains(err.Error(), "constraint failed")
}
