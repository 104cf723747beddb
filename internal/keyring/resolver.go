// Package keyring derives the per-file encryption identity an upload needs
// before it can be described to the storage backend. File keys are wrapped
// with the owning collection's symmetric key using NaCl secretbox; unwrapping
// is authenticated, so corrupted or mismatched key material fails loudly.
package keyring

import (
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	collectionKeySize = 32
	nonceSize         = 24
	fileKeySize       = 32
)

// CollectionKeys looks up the symmetric key of a collection. Implemented by
// the collection metadata layer; only the lookup is needed here.
type CollectionKeys interface {
	CollectionKey(collectionID string) ([]byte, error)
}

// KeyStore fetches the stored, collection-key-wrapped file key and the nonce
// it was wrapped with. Implemented by the local record store.
type KeyStore interface {
	WrappedFileKey(localID, fileHash, collectionID string) (blob []byte, nonce []byte, err error)
}

// EncryptionIdentity is the recovered raw file key and content header. It is
// ephemeral: callers must Wipe it before the owning scope exits and never
// persist it.
type EncryptionIdentity struct {
	Key    []byte
	Header []byte
}

// Wipe zeroes the key material in place.
func (id *EncryptionIdentity) Wipe() {
	if id == nil {
		return
	}
	for i := range id.Key {
		id.Key[i] = 0
	}
	for i := range id.Header {
		id.Header[i] = 0
	}
}

// KeyMaterialError means the wrapped file key could not be authenticated and
// decrypted. This is fatal for the upload: the key or collection metadata is
// inconsistent and retrying cannot fix it.
type KeyMaterialError struct {
	LocalID string
	Reason  string
}

func (e *KeyMaterialError) Error() string {
	return fmt.Sprintf("keyring: %s: %s", e.LocalID, e.Reason)
}

// Resolver recovers encryption identities from wrapped key blobs.
type Resolver struct {
	collections CollectionKeys
	keys        KeyStore
}

func NewResolver(collections CollectionKeys, keys KeyStore) *Resolver {
	return &Resolver{
		collections: collections,
		keys:        keys,
	}
}

// Resolve looks up the collection key and the wrapped file key for the given
// file, then unwraps it. The plaintext layout is fileKey[32] || header.
func (r *Resolver) Resolve(localID, fileHash, collectionID string) (*EncryptionIdentity, error) {
	collectionKey, err := r.collections.CollectionKey(collectionID)
	if err != nil {
		return nil, fmt.Errorf("collection key %s: %w", collectionID, err)
	}

	blob, nonce, err := r.keys.WrappedFileKey(localID, fileHash, collectionID)
	if err != nil {
		return nil, fmt.Errorf("wrapped file key %s: %w", localID, err)
	}

	return Unwrap(localID, collectionKey, blob, nonce)
}

// Unwrap performs the authenticated decryption of a wrapped file key blob.
func Unwrap(localID string, collectionKey, blob, nonce []byte) (*EncryptionIdentity, error) {
	if len(collectionKey) != collectionKeySize {
		return nil, &KeyMaterialError{LocalID: localID, Reason: fmt.Sprintf("collection key is %d bytes, want %d", len(collectionKey), collectionKeySize)}
	}
	if len(nonce) != nonceSize {
		return nil, &KeyMaterialError{LocalID: localID, Reason: fmt.Sprintf("key nonce is %d bytes, want %d", len(nonce), nonceSize)}
	}

	var boxKey [collectionKeySize]byte
	var boxNonce [nonceSize]byte
	copy(boxKey[:], collectionKey)
	copy(boxNonce[:], nonce)
	defer func() {
		boxKey = [collectionKeySize]byte{}
	}()

	plaintext, ok := secretbox.Open(nil, blob, &boxNonce, &boxKey)
	if !ok {
		return nil, &KeyMaterialError{LocalID: localID, Reason: "file key decryption failed"}
	}
	if len(plaintext) <= fileKeySize {
		for i := range plaintext {
			plaintext[i] = 0
		}
		return nil, &KeyMaterialError{LocalID: localID, Reason: "decrypted key blob too short"}
	}

	return &EncryptionIdentity{
		Key:    plaintext[:fileKeySize],
		Header: plaintext[fileKeySize:],
	}, nil
}

// Wrap seals a file key and header with a collection key. Used by the
// encryption step and by tests to produce valid wrapped blobs.
func Wrap(collectionKey, fileKey, header, nonce []byte) ([]byte, error) {
	if len(collectionKey) != collectionKeySize {
		return nil, fmt.Errorf("keyring: collection key is %d bytes, want %d", len(collectionKey), collectionKeySize)
	}
	if len(nonce) != nonceSize {
		return nil, fmt.Errorf("keyring: nonce is %d bytes, want %d", len(nonce), nonceSize)
	}

	var boxKey [collectionKeySize]byte
	var boxNonce [nonceSize]byte
	copy(boxKey[:], collectionKey)
	copy(boxNonce[:], nonce)

	plaintext := make([]byte, 0, len(fileKey)+len(header))
	plaintext = append(plaintext, fileKey...)
	plaintext = append(plaintext, header...)

	return secretbox.Seal(nil, plaintext, &boxNonce, &boxKey), nil
}
