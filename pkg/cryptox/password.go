package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrPasswordMismatch is returned when a well formed hash does not match.
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrInvalidHash is wrapped by every PHC parsing failure.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Argon2Params are the tunables recorded in a PHC string.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params is what new hashes are created with.
var DefaultArgon2Params = Argon2Params{
	Memory:      memory,
	Iterations:  iterations,
	Parallelism: parallelism,
}

// PasswordHash is a decoded $argon2id$ PHC string.
type PasswordHash struct {
	Params Argon2Params
	Salt   []byte
	Key    []byte
}

// ParsePasswordHash decodes "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func ParsePasswordHash(encoded string) (PasswordHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return PasswordHash{}, fmt.Errorf("%w: expected 6 parts", ErrInvalidHash)
	}
	if parts[1] != "argon2id" {
		return PasswordHash{}, fmt.Errorf("%w: not argon2id", ErrInvalidHash)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return PasswordHash{}, fmt.Errorf("%w: unsupported version %s", ErrInvalidHash, parts[2])
	}

	var h PasswordHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Params.Memory, &h.Params.Iterations, &h.Params.Parallelism); err != nil {
		return PasswordHash{}, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}
	if h.Params.Memory == 0 || h.Params.Iterations == 0 || h.Params.Parallelism == 0 {
		return PasswordHash{}, fmt.Errorf("%w: zero parameter", ErrInvalidHash)
	}

	var err error
	if h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return PasswordHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if h.Key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return PasswordHash{}, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	if len(h.Key) == 0 {
		return PasswordHash{}, fmt.Errorf("%w: empty key", ErrInvalidHash)
	}
	return h, nil
}

// String encodes h back into PHC form.
func (h PasswordHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.Params.Memory,
		h.Params.Iterations,
		h.Params.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Key),
	)
}

// Matches reports whether password (peppered) derives to h's key.
func (h PasswordHash) Matches(password string) bool {
	computed := derive(password, h.Salt, h.Params, uint32(len(h.Key))) // #nosec G115 - key lengths are tiny
	return subtle.ConstantTimeCompare(computed, h.Key) == 1
}

// HashPassword peppers and hashes password with DefaultArgon2Params and a
// fresh salt, returning the PHC string.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	h := PasswordHash{
		Params: DefaultArgon2Params,
		Salt:   salt,
		Key:    derive(password, salt, DefaultArgon2Params, keyLength),
	}
	return h.String(), nil
}

// VerifyPassword checks password against a PHC string. The parameters come
// from the hash, so fixtures hashed with other settings keep working.
func VerifyPassword(password, encodedHash string) error {
	h, err := ParsePasswordHash(encodedHash)
	if err != nil {
		return err
	}
	if !h.Matches(password) {
		return ErrPasswordMismatch
	}
	return nil
}

func derive(password string, salt []byte, p Argon2Params, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password+GetPepper()), salt, p.Iterations, p.Memory, p.Parallelism, keyLen)
}
