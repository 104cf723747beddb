package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftvault/internal/keyring"
)

// KeyResolver recovers the encryption identity of a file before its upload
// can be described. See keyring.Resolver.
type KeyResolver interface {
	Resolve(localID, fileHash, collectionID string) (*keyring.EncryptionIdentity, error)
}

// PresignedUpload is the backend's answer to a presign request: one object
// key, one upload target per part, and the finalize target.
type PresignedUpload struct {
	ObjectKey   string
	CompleteURL string
	PartURLs    []string
}

// Presigner obtains presigned upload targets from the backend. Failures are
// clean to retry upstream: no session exists until presigning succeeds.
type Presigner interface {
	PresignUpload(ctx context.Context, fileHash string, size int64, partSize int64, partCount int) (*PresignedUpload, error)
}

// ProgressFunc is called after every confirmed part with cumulative bytes.
type ProgressFunc func(uploadedBytes, totalBytes int64)

// Request describes one file to upload. The file at Path holds the already
// encrypted bytes.
type Request struct {
	LocalID      string
	FileHash     string
	CollectionID string
	Path         string
}

// Orchestrator sequences the upload pipeline: resolve keys, plan parts,
// create or load the session, drive the part loop, finalize. It performs no
// retries of its own; every failure surfaces to the caller with partial
// progress already persisted.
type Orchestrator struct {
	resolver  KeyResolver
	keySource keyring.KeyStore
	store     SessionStore
	presigner Presigner
	transport *PartTransport
	completer *CompletionAssembler
	tier      Tier
	partSize  int64
	progress  ProgressFunc
}

// Config wires an Orchestrator. All collaborators are required except
// Progress and PartSize.
type Config struct {
	Resolver  KeyResolver
	KeySource keyring.KeyStore
	Store     SessionStore
	Presigner Presigner
	Transport *PartTransport
	Completer *CompletionAssembler
	Tier      Tier
	// PartSize overrides the tier's part size when > 0.
	PartSize int64
	Progress ProgressFunc
}

func NewOrchestrator(cfg *Config) *Orchestrator {
	return &Orchestrator{
		resolver:  cfg.Resolver,
		keySource: cfg.KeySource,
		store:     cfg.Store,
		presigner: cfg.Presigner,
		transport: cfg.Transport,
		completer: cfg.Completer,
		tier:      cfg.Tier,
		partSize:  cfg.PartSize,
		progress:  cfg.Progress,
	}
}

// Upload runs one file through the pipeline and returns the object key. It
// is idempotent: re-invoking with the same request resumes a pending
// session, re-runs a failed completion, or returns immediately when the
// session already completed.
func (o *Orchestrator) Upload(ctx context.Context, r *Request) (string, error) {
	identity, err := o.resolver.Resolve(r.LocalID, r.FileHash, r.CollectionID)
	if err != nil {
		return "", err
	}
	defer identity.Wipe()

	info, err := os.Stat(r.Path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", r.Path, err)
	}
	size := info.Size()

	key := SessionKey{LocalID: r.LocalID, FileHash: r.FileHash, CollectionID: r.CollectionID}
	sess, err := o.store.GetSession(key)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess, err = o.createSession(ctx, key, size)
		if err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		slog.Debug("upload session found", "objectKey", sess.ObjectKey, "status", sess.Status)
	}

	if sess.Status == StatusCompleted {
		slog.Debug("upload already completed", "objectKey", sess.ObjectKey)
		return sess.ObjectKey, nil
	}

	if sess.Status == StatusPending {
		if err := o.uploadParts(ctx, sess, size, r.Path); err != nil {
			return "", err
		}
		if err := o.store.SetSessionStatus(sess.ObjectKey, StatusUploaded); err != nil {
			return "", err
		}
		sess.Status = StatusUploaded
	}

	if err := o.completer.Complete(ctx, sess.CompleteURL, sess.PartETags); err != nil {
		return "", err
	}
	if err := o.store.SetSessionStatus(sess.ObjectKey, StatusCompleted); err != nil {
		return "", err
	}

	slog.Info("upload completed", "objectKey", sess.ObjectKey, "size", humanize.Bytes(uint64(size)), "parts", sess.PartCount())
	return sess.ObjectKey, nil
}

// createSession presigns the part targets and persists the session before
// any byte moves, so a crash right after creation resumes without
// re-requesting urls.
func (o *Orchestrator) createSession(ctx context.Context, key SessionKey, size int64) (*Session, error) {
	partSize := o.partSize
	if partSize <= 0 {
		partSize = PartSizeForTier(o.tier)
	}
	var partCount int
	if partSize <= 0 {
		// single-shot tier: the whole file is one part
		partSize = size
		partCount = 1
	} else {
		partCount = int(divideAndCeil(size, partSize))
		if partCount < 1 {
			partCount = 1
		}
	}

	presigned, err := o.presigner.PresignUpload(ctx, key.FileHash, size, partSize, partCount)
	if err != nil {
		return nil, err
	}
	if len(presigned.PartURLs) != partCount {
		return nil, fmt.Errorf("presign returned %d part urls, want %d", len(presigned.PartURLs), partCount)
	}

	wrappedKey, keyNonce, err := o.keySource.WrappedFileKey(key.LocalID, key.FileHash, key.CollectionID)
	if err != nil {
		return nil, err
	}

	if err := o.store.CreateSession(key, &CreateParams{
		ObjectKey:   presigned.ObjectKey,
		CompleteURL: presigned.CompleteURL,
		PartURLs:    presigned.PartURLs,
		PartSize:    partSize,
		WrappedKey:  wrappedKey,
		KeyNonce:    keyNonce,
	}); err != nil {
		return nil, err
	}

	slog.Debug("upload session created", "objectKey", presigned.ObjectKey, "parts", partCount, "partSize", humanize.Bytes(uint64(partSize)))
	return o.store.GetSession(key)
}

// uploadParts drives the part loop from the first un-uploaded index,
// strictly ascending, one part at a time. Each etag is durably recorded
// before the next part begins; that ordering is what makes resumption safe.
func (o *Orchestrator) uploadParts(ctx context.Context, sess *Session, size int64, path string) error {
	first, err := sess.FirstPending()
	if err != nil {
		return err
	}

	count := sess.PartCount()
	var uploaded int64
	for i := 0; i < first; i++ {
		_, length := PartRange(size, sess.PartSize, i, count)
		uploaded += length
	}
	if o.progress != nil && uploaded > 0 {
		o.progress(uploaded, size)
	}
	if first >= count {
		return nil
	}

	if err := o.store.TouchLastAttempt(sess.SessionKey); err != nil {
		slog.Error("touch last attempt", "objectKey", sess.ObjectKey, "error", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	for i := first; i < count; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		offset, length := PartRange(size, sess.PartSize, i, count)
		section := io.NewSectionReader(file, offset, length)

		etag, err := o.transport.UploadPart(ctx, sess.PartURLs[i], section, length, i+1)
		if err != nil {
			return err
		}

		if err := o.store.RecordPartUploaded(sess.ObjectKey, i, etag); err != nil {
			return err
		}
		sess.PartUploadStatus[i] = true
		sess.PartETags[i] = etag

		uploaded += length
		if o.progress != nil {
			o.progress(uploaded, size)
		}
		slog.Debug("part uploaded", "objectKey", sess.ObjectKey, "part", i+1, "of", count)
	}

	return nil
}
