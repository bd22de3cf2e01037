package download

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/miniapp/internal/shared/types"
	"github.com/GriffinCanCode/miniapp/internal/testutil"
)

func ecdsaKey(t *testing.T, curve elliptic.Curve) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestVerifySignatureECDSA(t *testing.T) {
	body := []byte(`{"manifest":["index.html"]}`)
	priv, pemKey := ecdsaKey(t, elliptic.P256())
	digest := sha256.Sum256(body)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(pemKey, body, base64.StdEncoding.EncodeToString(sig)))
	assert.NoError(t, VerifySignature(pemKey, body, base64.RawURLEncoding.EncodeToString(sig)))
	assert.ErrorIs(t, VerifySignature(pemKey, []byte(`{"manifest":[]}`), base64.StdEncoding.EncodeToString(sig)), types.ErrInvalidSignature)
}

func TestVerifySignatureEd25519(t *testing.T) {
	body := []byte("payload")
	signer := testutil.NewSigner(t, "k")
	assert.NoError(t, VerifySignature(signer.PEM, body, signer.Sign(body)))
	assert.ErrorIs(t, VerifySignature(signer.PEM, []byte("other"), signer.Sign(body)), types.ErrInvalidSignature)
}

func TestVerifySignatureRejectsBadInput(t *testing.T) {
	_, p384 := ecdsaKey(t, elliptic.P384())
	signer := testutil.NewSigner(t, "k")

	for name, tc := range map[string]struct{ key, sig string }{
		"not pem":        {"garbage", "AAAA"},
		"bad der":        {string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("x")})), "AAAA"},
		"bad base64":     {signer.PEM, "!!!"},
		"unsupported ec": {p384, "AAAA"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, VerifySignature(tc.key, []byte("body"), tc.sig), types.ErrInvalidSignature)
		})
	}
}
