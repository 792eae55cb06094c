package blobtier

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Digest algorithms supported by DigestKeyStrategy.
const (
	DigestMD5    = "MD5"
	DigestSHA256 = "SHA-256"
)

// DigestKeyStrategy derives content-addressed keys: the lowercase hex digest
// of the content.
type DigestKeyStrategy struct {
	// Algorithm is DigestMD5 (default) or DigestSHA256.
	Algorithm string
}

// NewDigestKeyStrategy returns a digest strategy after validating the
// algorithm name.
func NewDigestKeyStrategy(algorithm string) (DigestKeyStrategy, error) {
	s := DigestKeyStrategy{Algorithm: algorithm}
	if _, err := s.hasher(); err != nil {
		return DigestKeyStrategy{}, err
	}
	return s, nil
}

func (s DigestKeyStrategy) hasher() (hash.Hash, error) {
	switch strings.ToUpper(s.Algorithm) {
	case "", DigestMD5:
		return md5.New(), nil
	case DigestSHA256, "SHA256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %s", s.Algorithm)
	}
}

// Key returns the digest of wc.Content.
func (s DigestKeyStrategy) Key(wc WriteContext) (string, error) {
	h, err := s.hasher()
	if err != nil {
		return "", err
	}
	h.Write(wc.Content)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s DigestKeyStrategy) ContentAddressed() bool { return true }

// recordSeq is shared by every RecordKeyStrategy so keys stay unique across
// stores in one process.
var recordSeq atomic.Int64

func init() {
	recordSeq.Store(time.Now().UnixNano())
}

// RecordKeyStrategy derives owner scoped keys of the form <docId>@<ordinal>.
// Every write gets a new ordinal, so overwriting a document's content never
// reuses a key.
type RecordKeyStrategy struct{}

// Key returns a fresh record key for wc.DocID.
func (RecordKeyStrategy) Key(wc WriteContext) (string, error) {
	if wc.DocID == "" {
		return "", ErrMissingOwner
	}
	return wc.DocID + "@" + strconv.FormatInt(recordSeq.Add(1), 10), nil
}

func (RecordKeyStrategy) ContentAddressed() bool { return false }

// RecordOwner returns the owner document id of a record key.
func RecordOwner(key string) (string, bool) {
	i := strings.LastIndexByte(key, '@')
	if i <= 0 {
		return "", false
	}
	return key[:i], true
}
