package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDigestKnownVector(t *testing.T) {
	// sha256 of the empty string
	if got := Digest(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Digest(nil) = %s", got)
	}
}

func TestDigestFileMatchesDigest(t *testing.T) {
	data := []byte("Txn Time,Amount\n2026-07-01 10:00:00,5.00\n")
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DigestFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := Digest(data); got != want {
		t.Errorf("DigestFile = %s, want %s", got, want)
	}
}

func TestDigestFileMissing(t *testing.T) {
	if _, err := DigestFile(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("missing file should error")
	}
}
