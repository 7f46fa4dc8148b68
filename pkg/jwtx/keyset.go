package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoKey = errors.New("jwtx: key not found")

// verificationKey is a parsed JWK plus the one algorithm it may verify.
type verificationKey struct {
	pub crypto.PublicKey
	alg string
}

// KeySet holds the authorisation server's public keys by kid. It's safe for
// concurrent use so the key file can be swapped while requests verify.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]verificationKey
	jwks JWKS
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]verificationKey)}
}

// AddSigner registers a Signer's public JWK into the KeySet.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK parses j and adds it, replacing any key with the same kid.
func (k *KeySet) AddJWK(j JWK) error {
	vk, err := newVerificationKey(j)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, replaced := k.keys[j.Kid]; replaced {
		k.jwks.Keys = without(k.jwks.Keys, j.Kid)
	}
	k.keys[j.Kid] = vk
	k.jwks.Keys = append(k.jwks.Keys, j)
	return nil
}

// ResetFromJWKS replaces all keys. Nothing changes when any key fails to
// parse.
func (k *KeySet) ResetFromJWKS(set JWKS) error {
	keys := make(map[string]verificationKey, len(set.Keys))
	for _, j := range set.Keys {
		vk, err := newVerificationKey(j)
		if err != nil {
			return fmt.Errorf("jwtx: key %q: %w", j.Kid, err)
		}
		keys[j.Kid] = vk
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = keys
	k.jwks = JWKS{Keys: append([]JWK(nil), set.Keys...)}
	return nil
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (crypto.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	vk, ok := k.keys[kid]
	if !ok {
		return nil, ErrNoKey
	}
	return vk.pub, nil
}

// keyFor returns the key for kid if it may verify alg.
func (k *KeySet) keyFor(kid, alg string) (crypto.PublicKey, error) {
	k.mu.RLock()
	vk, ok := k.keys[kid]
	k.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}
	if vk.alg != alg {
		return nil, fmt.Errorf("%w: kid %q is %s, token says %s", ErrAlgMismatch, kid, vk.alg, alg)
	}
	return vk.pub, nil
}

// PublicJWKS returns a snapshot of the keys as a JWKS.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jwks.Keys...)}
}

// IsReady reports whether at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}

// newVerificationKey decodes j and works out its algorithm from the key
// type. A JWK that declares a different alg is rejected.
func newVerificationKey(j JWK) (verificationKey, error) {
	pub, err := j.PublicKey()
	if err != nil {
		return verificationKey{}, err
	}

	var alg string
	switch pub.(type) {
	case *rsa.PublicKey:
		alg = jwt.SigningMethodRS256.Alg()
	case *ecdsa.PublicKey:
		alg = jwt.SigningMethodES256.Alg()
	case ed25519.PublicKey:
		alg = jwt.SigningMethodEdDSA.Alg()
	}
	if j.Alg != "" && j.Alg != alg {
		return verificationKey{}, fmt.Errorf("%w: %s key declares alg %s", ErrAlgMismatch, j.Kty, j.Alg)
	}
	return verificationKey{pub: pub, alg: alg}, nil
}

func without(keys []JWK, kid string) []JWK {
	out := keys[:0:0]
	for _, j := range keys {
		if j.Kid != kid {
			out = append(out, j)
		}
	}
	return out
}
