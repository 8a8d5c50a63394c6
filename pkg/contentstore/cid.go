package contentstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const cidPrefix = "sha256:"

var (
	ErrNotFound   = errors.New("content not found")
	ErrInvalidCID = errors.New("invalid content identifier")
	// ErrStoreUnavailable wraps every backend and transport failure seen by Client.
	ErrStoreUnavailable = errors.New("content store unavailable")
)

// CID addresses an immutable blob: "sha256:" followed by the hex digest of its bytes.
type CID string

func (c CID) String() string { return string(c) }

// ComputeCID returns the identifier the stores assign to data.
func ComputeCID(data []byte) CID {
	sum := sha256.Sum256(data)
	return CID(cidPrefix + hex.EncodeToString(sum[:]))
}

// Digest validates c and returns its hex digest.
func (c CID) Digest() (string, error) {
	s := string(c)
	if !strings.HasPrefix(s, cidPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCID, s)
	}
	raw := s[len(cidPrefix):]
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("%w: %q", ErrInvalidCID, s)
	}
	return strings.ToLower(raw), nil
}
