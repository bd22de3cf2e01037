package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

// Signer is an Ed25519 signing key published by the fake platform
type Signer struct {
	ID      string
	PEM     string
	private ed25519.PrivateKey
}

// NewSigner generates a fresh signing key
func NewSigner(t testing.TB, id string) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &Signer{ID: id, PEM: string(block), private: priv}
}

// Sign returns the base64 signature over body
func (s *Signer) Sign(body []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.private, body))
}
