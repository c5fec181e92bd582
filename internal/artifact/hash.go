package artifact

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of canonical content.
type Hash [32]byte

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for logs.
func (h Hash) Short() string {
	return h.String()[:12]
}

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a hex string produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Domain keys keep content hashes and set hashes from ever colliding.
// ASCII names zero-padded to the 32 bytes BLAKE3 keyed mode requires.
var (
	contentDomainKey = [32]byte{
		'g', 'e', 'o', 'r', 'e', 'f', 'r', 'e', 's', 'h', '.', 'c', 'o', 'n', 't', 'e',
		'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	setDomainKey = [32]byte{
		'g', 'e', 'o', 'r', 'e', 'f', 'r', 'e', 's', 'h', '.', 's', 'e', 't', 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashContent computes the content-domain hash of canonical bytes.
func HashContent(canonical []byte) Hash {
	h := newKeyed(contentDomainKey)
	_, _ = h.Write(canonical)
	return sum(h)
}

// hashEntries computes the set-domain hash over (path, hash) pairs, which
// must already be sorted by path. Paths are length-prefixed so that
// ("ab","c") and ("a","bc") never hash alike.
func hashEntries(entries []Artifact) Hash {
	h := newKeyed(setDomainKey)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(entries)))
	_, _ = h.Write(lenBuf[:])
	for _, a := range entries {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(a.Path)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(a.Path))
		_, _ = h.Write(a.Hash[:])
	}
	return sum(h)
}

func newKeyed(key [32]byte) *blake3.Hasher {
	// NewKeyed only fails on a key that is not 32 bytes.
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return h
}

func sum(h *blake3.Hasher) Hash {
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
