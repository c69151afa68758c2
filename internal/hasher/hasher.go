// Package hasher implements C2: SHA-256 content hashing with the "new_file"
// sentinel used throughout the approval pipeline to represent an absent
// target.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/softwaresalt/agent-intercom/internal/errs"
)

// NewFile is the distinguished sentinel hash for a path that does not exist.
// It compares equal only to itself.
const NewFile = "new_file"

// Hash returns the hex-encoded SHA-256 digest of the file at path, or
// NewFile if the path does not exist.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewFile, nil
		}
		return "", errs.Wrap(errs.Diff, "cannot open file for hashing", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.Wrap(errs.Diff, "cannot read file for hashing", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of data directly, used
// when content is already in memory (e.g. comparing a proposed write).
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
