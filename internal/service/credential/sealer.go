package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "driverelay credential v1"

var ErrSealedBlobInvalid = errors.New("sealed credential invalid")

// Sealer encrypts credential blobs before they leave the process. A nil
// *Sealer passes blobs through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an XChaCha20-Poly1305 key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo)), key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts blob, binding it to handle so it cannot be replayed under another session.
func (s *Sealer) Seal(handle string, blob []byte) ([]byte, error) {
	if s == nil {
		return cloneBytes(blob), nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(blob)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, blob, []byte(handle)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(handle string, sealed []byte) ([]byte, error) {
	if s == nil {
		return cloneBytes(sealed), nil
	}
	size := s.aead.NonceSize()
	if len(sealed) < size+s.aead.Overhead() {
		return nil, ErrSealedBlobInvalid
	}
	plain, err := s.aead.Open(nil, sealed[:size], sealed[size:], []byte(handle))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedBlobInvalid, err)
	}
	return plain, nil
}
