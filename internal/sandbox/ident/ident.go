// Package ident generates unguessable names for per-request artifacts.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the number of random bytes behind one identifier.
const Size = 32

// Reader is the entropy source. Tests may swap it.
var Reader io.Reader = rand.Reader

// New returns a 64-character lowercase hex identifier backed by 256 random bits.
func New() (string, error) {
	buf := make([]byte, Size)
	if _, err := io.ReadFull(Reader, buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Valid reports whether id has the exact shape New produces.
func Valid(id string) bool {
	if len(id) != Size*2 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
