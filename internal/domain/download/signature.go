package download

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

// checkSignature applies the signature mode to a fetched asset manifest.
// In optional mode every failure other than cancellation is logged and
// ignored.
func (p *Pipeline) checkSignature(ctx context.Context, identity types.Identity, manifest *types.AssetManifest) error {
	if p.signatureMode == config.SignatureOff {
		return nil
	}

	err := p.verifySignature(ctx, manifest)
	if err == nil {
		p.logger.Debug("manifest signature verified", logging.Identity(identity))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.signatureMode == config.SignatureRequired {
		return err
	}
	p.logger.Warn("manifest signature not verified", logging.Identity(identity), zap.Error(err))
	return nil
}

func (p *Pipeline) verifySignature(ctx context.Context, manifest *types.AssetManifest) error {
	if manifest.Signature == "" {
		return types.NewError(types.KindInvalidSignature, "manifest is not signed")
	}
	if manifest.PublicKeyID == "" {
		return types.NewError(types.KindInvalidSignature, "manifest names no public key")
	}
	key, err := p.source.PublicKey(ctx, manifest.PublicKeyID)
	if err != nil {
		if types.IsOffline(err) || errors.Is(err, context.Canceled) {
			return err
		}
		return types.Wrap(types.KindInvalidSignature, err, "fetch public key "+manifest.PublicKeyID)
	}
	return VerifySignature(key.PemKey, manifest.Raw, manifest.Signature)
}

// VerifySignature checks a base64 signature over body against a PEM PKIX
// public key. ECDSA keys must be P-256 with ASN.1 signatures over SHA-256;
// Ed25519 keys sign the body directly.
func VerifySignature(pemKey string, body []byte, signature string) error {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return types.NewError(types.KindInvalidSignature, "public key is not PEM encoded")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return types.Wrap(types.KindInvalidSignature, err, "parse public key")
	}
	sig, err := decodeSignature(signature)
	if err != nil {
		return types.Wrap(types.KindInvalidSignature, err, "decode signature")
	}

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if key.Curve.Params().Name != "P-256" {
			return types.NewError(types.KindInvalidSignature, fmt.Sprintf("unsupported curve %s", key.Curve.Params().Name))
		}
		digest := sha256.Sum256(body)
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return types.NewError(types.KindInvalidSignature, "signature does not match manifest")
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(key, body, sig) {
			return types.NewError(types.KindInvalidSignature, "signature does not match manifest")
		}
	default:
		return types.NewError(types.KindInvalidSignature, fmt.Sprintf("unsupported key type %T", pub))
	}
	return nil
}

func decodeSignature(s string) ([]byte, error) {
	if sig, err := base64.StdEncoding.DecodeString(s); err == nil {
		return sig, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
