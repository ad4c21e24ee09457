// Package infohash holds the content identity used to key every per-torrent structure.
package infohash

import (
	"crypto/sha1"
	"encoding"
	"encoding/hex"
	"fmt"
)

const Size = 20

// The SHA-1 of a torrent's info dictionary. Comparable, so it can be used directly as a map key.
type T [Size]byte

var (
	_ encoding.TextUnmarshaler = (*T)(nil)
	_ encoding.TextMarshaler   = T{}
	_ fmt.Stringer             = T{}
)

func (t T) Bytes() []byte {
	return t[:]
}

func (t T) IsZero() bool {
	return t == T{}
}

func (t T) String() string {
	return t.HexString()
}

func (t T) HexString() string {
	return hex.EncodeToString(t[:])
}

// First 8 hex digits, for log lines.
func (t T) Short() string {
	return t.HexString()[:8]
}

func (t *T) FromHexString(s string) (err error) {
	if len(s) != 2*Size {
		return fmt.Errorf("hash hex string has bad length: %d", len(s))
	}
	n, err := hex.Decode(t[:], []byte(s))
	if err != nil {
		return
	}
	if n != Size {
		panic(n)
	}
	return
}

func (t *T) UnmarshalText(b []byte) error {
	return t.FromHexString(string(b))
}

func (t T) MarshalText() (text []byte, err error) {
	return []byte(t.HexString()), nil
}

func FromHexString(s string) (h T) {
	err := h.FromHexString(s)
	if err != nil {
		panic(err)
	}
	return
}

func HashBytes(b []byte) (ret T) {
	return sha1.Sum(b)
}
