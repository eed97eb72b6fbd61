package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyBits is the RSA modulus size used by GenerateKeyPair callers
// that have no preference.
const DefaultKeyBits = 2048

// KeyPair is the server's signing key and its public half. It is built once
// at startup and never mutated, so it is shared freely between connections.
type KeyPair struct {
	private   *rsa.PrivateKey
	public    *rsa.PublicKey
	publicPEM []byte
}

// NewKeyPair wraps an existing RSA private key.
func NewKeyPair(private *rsa.PrivateKey) (*KeyPair, error) {
	der, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return &KeyPair{
		private:   private,
		public:    &private.PublicKey,
		publicPEM: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}),
	}, nil
}

// GenerateKeyPair creates a fresh RSA key pair.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}
	return NewKeyPair(private)
}

// LoadKeyPair reads PEM-encoded private and public keys. The private key may
// be PKCS1 or PKCS8. The public key file is served verbatim, so it must
// belong to the private key.
func LoadKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	privateBytes, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	private, err := jwt.ParseRSAPrivateKeyFromPEM(privateBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", privatePath, err)
	}

	publicBytes, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(publicBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", publicPath, err)
	}
	if !public.Equal(&private.PublicKey) {
		return nil, errors.New("public key does not match private key")
	}

	return &KeyPair{private: private, public: public, publicPEM: publicBytes}, nil
}

// Save writes the key pair as PEM. The private key file has 0600
// permissions, the public key file 0644.
func (kp *KeyPair) Save(privatePath, publicPath string) error {
	for _, path := range []string{privatePath, publicPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.private),
	})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(publicPath, kp.publicPEM, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// PublicPEM returns the public key exactly as it is published.
func (kp *KeyPair) PublicPEM() []byte {
	return kp.publicPEM
}
