package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const keyCost = 12

// HashKey hashes a plaintext API key using bcrypt.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), keyCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// CheckKey compares a plaintext API key against a bcrypt hash.
func CheckKey(key, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
}

// GenerateToken produces a cryptographically random API key: 32 bytes,
// base64url-encoded behind an "ar_" prefix.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return "ar_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// NewKey generates an API key and its hash in one step.
func NewKey() (key, hash string, err error) {
	key, err = GenerateToken()
	if err != nil {
		return "", "", err
	}
	hash, err = HashKey(key)
	if err != nil {
		return "", "", err
	}
	return key, hash, nil
}

// Verifier remembers keys that already matched a hash so repeat requests skip
// the bcrypt comparison. Changing the hash forgets every remembered key. The
// zero value is ready to use.
type Verifier struct {
	mu    sync.Mutex
	hash  string
	known map[[sha256.Size]byte]bool
}

func (v *Verifier) Check(key, hash string) error {
	sum := sha256.Sum256([]byte(key))

	v.mu.Lock()
	if v.known == nil || v.hash != hash {
		v.hash = hash
		v.known = make(map[[sha256.Size]byte]bool)
	}
	ok := v.known[sum]
	v.mu.Unlock()
	if ok {
		return nil
	}

	if err := CheckKey(key, hash); err != nil {
		return err
	}

	v.mu.Lock()
	if v.hash == hash {
		v.known[sum] = true
	}
	v.mu.Unlock()
	return nil
}
