package cryptox_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/scagate/pkg/cryptox"
)

func TestEd25519KeyRoundTrip(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	key, err := cryptox.ParseEd25519Key(pemKey)
	require.NoError(t, err)
	require.Len(t, key, ed25519.PrivateKeySize)

	again, err := cryptox.MarshalEd25519Key(key)
	require.NoError(t, err)
	require.Equal(t, pemKey, again)

	// A signature from the parsed key verifies with its public half
	msg := []byte("consent-1")
	require.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), msg, ed25519.Sign(key, msg)))
}

func TestParseEd25519KeyRejects(t *testing.T) {
	_, err := cryptox.ParseEd25519Key([]byte("not pem"))
	require.Error(t, err)

	_, err = cryptox.ParseEd25519Key(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1}}))
	require.ErrorContains(t, err, "PKCS8")

	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(ec)
	require.NoError(t, err)
	_, err = cryptox.ParseEd25519Key(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.ErrorIs(t, err, cryptox.ErrNotEd25519)
}
