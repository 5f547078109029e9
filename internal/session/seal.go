// Package session keeps portal logins server side. Backend tokens never
// reach the browser; they are stored sealed and resolved per request.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrSealBroken is returned when a sealed token cannot be opened, usually
// because SESSION_SECRET changed.
var ErrSealBroken = errors.New("session: sealed token cannot be opened")

// Sealer encrypts tokens at rest.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("session: empty secret")
	}
	s := &Sealer{}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("ejaar portal session tokens"))
	if _, err := io.ReadFull(r, s.key[:]); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return s, nil
}

// Seal encrypts plain. The nonce is prepended to the box.
func (s *Sealer) Seal(plain string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("session: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key), nil
}

// Open decrypts a box produced by Seal. An empty box opens to "".
func (s *Sealer) Open(box []byte) (string, error) {
	if len(box) == 0 {
		return "", nil
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return "", ErrSealBroken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealBroken
	}
	return string(plain), nil
}
