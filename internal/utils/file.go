package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// FileHash returns the hex SHA-256 of a file's contents. Used as the
// content-hash component of a session key.
func FileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
