package keyring

import "fmt"

// StaticCollectionKeys is a fixed in-memory CollectionKeys lookup, used by
// the CLI (keys loaded from config) and by tests.
type StaticCollectionKeys map[string][]byte

func (s StaticCollectionKeys) CollectionKey(collectionID string) ([]byte, error) {
	key, ok := s[collectionID]
	if !ok {
		return nil, fmt.Errorf("keyring: no key for collection %s", collectionID)
	}
	return key, nil
}

// WrappedKeyRecord is one stored wrapped file key entry.
type WrappedKeyRecord struct {
	Blob  []byte
	Nonce []byte
}

// StaticKeyStore is a fixed in-memory KeyStore keyed by
// localID|fileHash|collectionID.
type StaticKeyStore map[string]WrappedKeyRecord

func keyStoreID(localID, fileHash, collectionID string) string {
	return localID + "|" + fileHash + "|" + collectionID
}

func (s StaticKeyStore) Put(localID, fileHash, collectionID string, rec WrappedKeyRecord) {
	s[keyStoreID(localID, fileHash, collectionID)] = rec
}

func (s StaticKeyStore) WrappedFileKey(localID, fileHash, collectionID string) ([]byte, []byte, error) {
	rec, ok := s[keyStoreID(localID, fileHash, collectionID)]
	if !ok {
		return nil, nil, fmt.Errorf("keyring: no wrapped key for %s", localID)
	}
	return rec.Blob, rec.Nonce, nil
}
