package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Digest returns the hex-encoded SHA-256 of data. Uploaded files are keyed
// by digest so the same report cannot be registered twice.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestFile hashes a file on disk without loading it into memory.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
