// Package secure holds sensitive material in protected memory.
//
// The provider credential lives in a memguard enclave: encrypted at rest in
// process memory, mlocked where the platform allows it, and wiped when the
// plaintext view is closed. Cache secure-erase also routes through this
// package so all overwrite-before-free behavior lives in one place.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Credential stores the provider credential in an encrypted enclave. The
// plaintext only exists in a locked buffer while Use runs.
type Credential struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewCredential seals token into a protected enclave. The caller's copy of
// the token should be dropped as soon as possible afterwards.
func NewCredential(token string) *Credential {
	return &Credential{
		enclave: memguard.NewEnclave([]byte(token)),
	}
}

// Use decrypts the credential and passes the plaintext to fn. The backing
// buffer is wiped when fn returns; fn must not retain the string beyond its
// own scope (building a request header is fine, storing it in a struct is
// not).
func (c *Credential) Use(fn func(token string) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.destroyed || c.enclave == nil {
		return fn("")
	}

	locked, err := c.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.String())
}

// Destroy marks the credential as unusable. Idempotent; after Destroy, Use
// sees an empty token. The enclave ciphertext is left for the collector —
// it is useless without the in-enclave key.
func (c *Credential) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}
	c.enclave = nil
	c.destroyed = true
}

// Scramble overwrites buf in place with cryptographically random bytes.
// Used by the cache to erase secret values before releasing entries.
func Scramble(buf []byte) {
	if len(buf) == 0 {
		return
	}
	memguard.ScrambleBytes(buf)
}

// Wipe zeroes buf in place.
func Wipe(buf []byte) {
	if len(buf) == 0 {
		return
	}
	memguard.WipeBytes(buf)
}
