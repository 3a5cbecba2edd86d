// Package credential derives and verifies salted password hashes.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrHashingFailure is returned when a credential cannot be derived. Callers
// must treat it as fatal for the operation; no weaker fallback is attempted.
var ErrHashingFailure = errors.New("credential: hashing failure")

const (
	// DefaultWorkFactor is the argon2id time parameter used when none is configured.
	DefaultWorkFactor = 3
	// DefaultMemoryKiB is the argon2id memory parameter (64 MiB).
	DefaultMemoryKiB = 64 * 1024
	// DefaultThreads is the argon2id parallelism parameter.
	DefaultThreads = 4
	// KeyLen is the byte length of every derived hash.
	KeyLen = 32
	// SaltLen is the byte length of every generated salt.
	SaltLen = 16
)

// Params are the argon2id cost settings a credential was derived with.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

func (p Params) valid() bool {
	return p.Time > 0 && p.Memory > 0 && p.Threads > 0
}

// Credential is the stored form of a secret: per-record salt, derived key and
// the parameters that produced it.
type Credential struct {
	Salt   []byte
	Hash   []byte
	Params Params
}

// Encode returns text forms suitable for document fields. The hash is written
// as "$argon2id$v=19$m=<kib>,t=<time>,p=<threads>$<key>" so the cost settings
// travel with the record; the salt stays in its own field.
func (c Credential) Encode() (salt, hash string) {
	key := base64.RawStdEncoding.EncodeToString(c.Hash)
	if c.Params.valid() {
		key = fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
			argon2.Version, c.Params.Memory, c.Params.Time, c.Params.Threads, key)
	}
	return base64.RawStdEncoding.EncodeToString(c.Salt), key
}

// DecodeCredential parses the text forms produced by Encode. A bare base64
// hash without parameters is accepted and leaves Params zero.
func DecodeCredential(salt, hash string) (Credential, error) {
	s, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return Credential{}, fmt.Errorf("decode salt: %w", err)
	}

	var params Params
	key := hash
	if strings.HasPrefix(hash, "$") {
		params, key, err = parseEncodedHash(hash)
		if err != nil {
			return Credential{}, err
		}
	}
	h, err := base64.RawStdEncoding.DecodeString(key)
	if err != nil {
		return Credential{}, fmt.Errorf("decode hash: %w", err)
	}
	return Credential{Salt: s, Hash: h, Params: params}, nil
}

func parseEncodedHash(encoded string) (Params, string, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, "", errors.New("decode hash: unsupported format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, "", fmt.Errorf("decode hash version: %w", err)
	}
	if version != argon2.Version {
		return Params{}, "", fmt.Errorf("decode hash: unsupported argon2 version %d", version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Params{}, "", fmt.Errorf("decode hash parameters: %w", err)
	}
	if !p.valid() {
		return Params{}, "", errors.New("decode hash: invalid parameters")
	}
	return p, parts[4], nil
}

// Hasher derives credentials from plaintext secrets and verifies them.
type Hasher interface {
	Hash(plaintext string) (Credential, error)
	Verify(plaintext string, c Credential) bool
}

// Argon2Hasher implements Hasher with argon2id.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int

	// Rand is the entropy source; crypto/rand when nil.
	Rand io.Reader
}

// NewArgon2Hasher builds a hasher with the given work factor and default
// memory and parallelism. A non-positive work factor selects DefaultWorkFactor.
func NewArgon2Hasher(workFactor int) *Argon2Hasher {
	if workFactor <= 0 {
		workFactor = DefaultWorkFactor
	}
	return &Argon2Hasher{
		Time:    uint32(workFactor),
		Memory:  DefaultMemoryKiB,
		Threads: DefaultThreads,
		KeyLen:  KeyLen,
		SaltLen: SaltLen,
	}
}

// Hash generates a fresh salt and derives the key for plaintext.
func (h *Argon2Hasher) Hash(plaintext string) (Credential, error) {
	if plaintext == "" {
		return Credential{}, fmt.Errorf("%w: empty secret", ErrHashingFailure)
	}
	if !h.params().valid() || h.KeyLen == 0 || h.SaltLen <= 0 {
		return Credential{}, fmt.Errorf("%w: invalid parameters", ErrHashingFailure)
	}

	src := h.Rand
	if src == nil {
		src = rand.Reader
	}
	salt := make([]byte, h.SaltLen)
	if _, err := io.ReadFull(src, salt); err != nil {
		return Credential{}, fmt.Errorf("%w: read salt: %v", ErrHashingFailure, err)
	}

	p := h.params()
	return Credential{Salt: salt, Hash: derive(plaintext, salt, p, h.KeyLen), Params: p}, nil
}

// Verify reports whether plaintext derives to c.Hash under c.Salt. The
// credential's own parameters win over the hasher's, so changing the work
// factor does not invalidate stored credentials.
func (h *Argon2Hasher) Verify(plaintext string, c Credential) bool {
	if len(c.Salt) == 0 || len(c.Hash) == 0 {
		return false
	}
	p := c.Params
	if !p.valid() {
		p = h.params()
	}
	if !p.valid() {
		return false
	}
	derived := derive(plaintext, c.Salt, p, uint32(len(c.Hash)))
	return subtle.ConstantTimeCompare(derived, c.Hash) == 1
}

// NeedsRehash reports whether c was derived with parameters other than the
// hasher's current ones.
func (h *Argon2Hasher) NeedsRehash(c Credential) bool {
	return c.Params != h.params() || uint32(len(c.Hash)) != h.KeyLen
}

func (h *Argon2Hasher) params() Params {
	return Params{Time: h.Time, Memory: h.Memory, Threads: h.Threads}
}

func derive(plaintext string, salt []byte, p Params, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, keyLen)
}
