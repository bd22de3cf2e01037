package storage

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"filippo.io/age"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealer encrypts stored values. aad binds a ciphertext to the key it was
// written under so values cannot be swapped between entries.
type Sealer interface {
	Seal(namespace string, plaintext, aad []byte) ([]byte, error)
	Open(namespace string, ciphertext, aad []byte) ([]byte, error)
}

// ErrSealed is returned when a value cannot be opened
var ErrSealed = errors.New("storage: value cannot be decrypted")

const sealVersion byte = 0x01

// AEADSealer seals with XChaCha20-Poly1305 under a per-namespace key
// derived from one master secret with HKDF-SHA256.
type AEADSealer struct {
	secret []byte

	mu   sync.Mutex
	keys map[string][]byte
}

// NewAEADSealer derives namespace keys from secret
func NewAEADSealer(secret []byte) (*AEADSealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("store secret must be at least 16 bytes, got %d", len(secret))
	}
	return &AEADSealer{
		secret: append([]byte(nil), secret...),
		keys:   make(map[string][]byte),
	}, nil
}

func (s *AEADSealer) key(namespace string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[namespace]; ok {
		return k, nil
	}
	k := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, s.secret, nil, []byte("miniapp.store."+namespace+".v1"))
	if _, err := io.ReadFull(r, k); err != nil {
		return nil, fmt.Errorf("derive key for %s: %w", namespace, err)
	}
	s.keys[namespace] = k
	return k, nil
}

// Seal returns [version][nonce][ciphertext+tag]
func (s *AEADSealer) Seal(namespace string, plaintext, aad []byte) ([]byte, error) {
	k, err := s.key(namespace)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	out[0] = sealVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[1:], plaintext, aadWithVersion(aad)), nil
}

// Open reverses Seal
func (s *AEADSealer) Open(namespace string, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead || ciphertext[0] != sealVersion {
		return nil, ErrSealed
	}
	k, err := s.key(namespace)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, ciphertext[1+chacha20poly1305.NonceSizeX:], aadWithVersion(aad))
	if err != nil {
		return nil, ErrSealed
	}
	return plaintext, nil
}

func aadWithVersion(aad []byte) []byte {
	out := make([]byte, 0, len(aad)+1)
	out = append(out, sealVersion)
	return append(out, aad...)
}

// AgeSealer seals each value as an age file to one X25519 identity.
// age has no associated data, so namespace and aad are framed inside
// the plaintext and checked on open.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeSealer seals to identity's recipient
func NewAgeSealer(identity *age.X25519Identity) *AgeSealer {
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}
}

func (s *AgeSealer) Seal(namespace string, plaintext, aad []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(frame(namespace, aad)); err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *AgeSealer) Open(namespace string, ciphertext, aad []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, ErrSealed
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrSealed
	}

	header := frame(namespace, aad)
	if !bytes.HasPrefix(data, header) {
		return nil, ErrSealed
	}
	return data[len(header):], nil
}

// frame is len(namespace)|namespace|len(aad)|aad
func frame(namespace string, aad []byte) []byte {
	out := make([]byte, 0, 8+len(namespace)+len(aad))
	out = binary.BigEndian.AppendUint32(out, uint32(len(namespace)))
	out = append(out, namespace...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(aad)))
	return append(out, aad...)
}
