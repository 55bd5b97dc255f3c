package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash is returned for a stored hash that is not in PHC argon2id form.
	ErrInvalidHash = errors.New("the encoded hash is not in the correct format")
	// ErrIncompatibleVersion is returned for hashes made by another argon2 version.
	ErrIncompatibleVersion = errors.New("incompatible version of argon2")
)

// HashParams are the Argon2id cost settings. They are encoded into every hash,
// so changing them never invalidates stored passwords.
type HashParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams is 64 MiB, five passes and half the CPUs.
func DefaultHashParams() HashParams {
	return HashParams{
		MemoryKiB:   64 * 1024,
		Iterations:  5,
		Parallelism: uint8(max(1, min(runtime.NumCPU()/2, 255))),
		SaltLength:  16,
		KeyLength:   32,
	}
}

var (
	paramsMu     sync.RWMutex
	activeParams = DefaultHashParams()
)

// ConfigureHashing sets the cost used for new hashes. Zero keeps the current value.
func ConfigureHashing(memoryKiB, iterations int) error {
	if memoryKiB < 0 || iterations < 0 {
		return fmt.Errorf("argon2 cost must not be negative (memory=%d, iterations=%d)", memoryKiB, iterations)
	}
	if memoryKiB > 0 && memoryKiB < 8*1024 {
		return fmt.Errorf("argon2 memory of %d KiB is below the 8 MiB floor", memoryKiB)
	}

	paramsMu.Lock()
	defer paramsMu.Unlock()
	if memoryKiB > 0 {
		activeParams.MemoryKiB = uint32(memoryKiB)
	}
	if iterations > 0 {
		activeParams.Iterations = uint32(iterations)
	}
	return nil
}

// CurrentHashParams returns the cost applied to new hashes.
func CurrentHashParams() HashParams {
	paramsMu.RLock()
	defer paramsMu.RUnlock()
	return activeParams
}

// HashPassword hashes password with the configured cost.
func HashPassword(password string) (string, error) {
	return CreateHash(password, CurrentHashParams())
}

// CreateHash derives an Argon2id key for password under p with a fresh salt and
// returns it in PHC string form.
func CreateHash(password string, p HashParams) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// ComparePasswordAndHash reports whether password matches encodedHash.
// A malformed hash is an error, a wrong password is not.
func ComparePasswordAndHash(password, encodedHash string) (bool, error) {
	p, salt, key, err := DecodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// NeedsRehash reports whether encodedHash was made with a cost other than the
// configured one, so a successful login can upgrade it.
func NeedsRehash(encodedHash string) bool {
	p, _, _, err := DecodeHash(encodedHash)
	if err != nil {
		return true
	}
	cur := CurrentHashParams()
	return p.MemoryKiB != cur.MemoryKiB || p.Iterations != cur.Iterations || p.KeyLength != cur.KeyLength
}

// DecodeHash splits a PHC argon2id string into its parameters, salt and key.
func DecodeHash(encodedHash string) (HashParams, []byte, []byte, error) {
	var p HashParams
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
