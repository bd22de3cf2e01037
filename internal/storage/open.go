package storage

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/config"
)

// Open builds the configured backend and sealer. Without an explicit
// secret, key material is generated once and kept in storeDir.
func Open(cfg config.StoreConfig, storeDir string, logger *zap.Logger) (*Store, error) {
	sealer, err := openSealer(cfg, storeDir)
	if err != nil {
		return nil, err
	}

	var backend Backend
	switch cfg.Backend {
	case config.BackendRedis:
		backend, err = NewRedisBackend(cfg.RedisURL, "")
	default:
		backend, err = NewFileBackend(storeDir)
	}
	if err != nil {
		return nil, err
	}

	return New(backend, sealer, Options{Logger: logger}), nil
}

func openSealer(cfg config.StoreConfig, storeDir string) (Sealer, error) {
	switch cfg.Cipher {
	case config.CipherAge:
		if cfg.Secret != "" {
			identity, err := age.ParseX25519Identity(strings.TrimSpace(cfg.Secret))
			if err != nil {
				return nil, fmt.Errorf("parse store age identity: %w", err)
			}
			return NewAgeSealer(identity), nil
		}
		identity, err := LoadOrCreateAgeIdentity(filepath.Join(storeDir, "age.key"))
		if err != nil {
			return nil, err
		}
		return NewAgeSealer(identity), nil
	default:
		secret, err := secretBytes(cfg.Secret, storeDir)
		if err != nil {
			return nil, err
		}
		return NewAEADSealer(secret)
	}
}

// secretBytes accepts base64 key material or a passphrase
func secretBytes(secret, storeDir string) ([]byte, error) {
	if secret == "" {
		return LoadOrCreateSecret(filepath.Join(storeDir, "secret.key"))
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) >= 16 {
		return raw, nil
	}
	return []byte(secret), nil
}
