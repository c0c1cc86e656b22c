// Package report produces verifiable signed benchmark reports.
package report

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Signer signs canonicalized reports with an ed25519 key.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func NewSigner() (*Signer, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Signer{private: private, public: public}, nil
}

// LoadSigner reads a PKCS#8 PEM private key from disk. A missing file
// generates and persists a fresh key so a node keeps a stable identity
// across restarts.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if os.IsNotExist(err) {
		signer, genErr := NewSigner()
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := signer.savePrivateKey(path); saveErr != nil {
			return nil, saveErr
		}
		return signer, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing key %s is not PEM encoded", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	private, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key %s is not ed25519", path)
	}
	return &Signer{private: private, public: private.Public().(ed25519.PublicKey)}, nil
}

func (s *Signer) savePrivateKey(path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(s.private)
	if err != nil {
		return fmt.Errorf("encode signing key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	return nil
}

// Sign signs the canonical JSON form of v. Canonicalization is sorted-key
// JSON so re-serializations of the same report verify identically.
func (s *Signer) Sign(v any) ([]byte, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(s.private, canonical), nil
}

func (s *Signer) Verify(v any, signature []byte) (bool, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(s.public, canonical, signature), nil
}

// PublicKeyPEM returns the PKIX PEM encoding of the verification key.
func (s *Signer) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(s.public)
	if err != nil {
		return "", fmt.Errorf("encode public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// CanonicalJSON renders v with every object's keys sorted. The round trip
// through map[string]any relies on encoding/json emitting map keys in sorted
// order.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize report: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize report: %w", err)
	}
	return canonical, nil
}
