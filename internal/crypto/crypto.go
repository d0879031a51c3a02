package crypto

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// Sealer encrypts and decrypts save archives with an age X25519 identity
type Sealer struct {
	keyPath string
}

// NewSealer creates a sealer backed by the identity file at keyPath
func NewSealer(keyPath string) *Sealer {
	return &Sealer{
		keyPath: keyPath,
	}
}

// KeyPath returns the identity file location
func (s *Sealer) KeyPath() string {
	return s.keyPath
}

// GenerateKey creates a new identity file. It refuses to overwrite an existing key.
func (s *Sealer) GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	keyFile, err := os.OpenFile(s.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create key file: %w", err)
	}
	defer keyFile.Close()

	if _, err := fmt.Fprintf(keyFile, "# public key: %s\n%s\n", identity.Recipient(), identity); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}

	return identity.Recipient().String(), nil
}

// KeyExists checks if the encryption key exists
func (s *Sealer) KeyExists() bool {
	_, err := os.Stat(s.keyPath)
	return err == nil
}

// Seal returns a writer that encrypts everything written to it into dst.
// The caller must Close it to flush the final chunk.
func (s *Sealer) Seal(dst io.Writer) (io.WriteCloser, error) {
	recipient, err := s.loadRecipient()
	if err != nil {
		return nil, err
	}

	w, err := age.Encrypt(dst, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return w, nil
}

// Open returns a reader yielding the plaintext of src.
func (s *Sealer) Open(src io.Reader) (io.Reader, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(src, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return r, nil
}

// DecryptFile decrypts inputPath into outputPath
func (s *Sealer) DecryptFile(inputPath, outputPath string) error {
	inputFile, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer inputFile.Close()

	r, err := s.Open(inputFile)
	if err != nil {
		return err
	}

	outputFile, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outputFile.Close()

	if _, err := io.Copy(outputFile, r); err != nil {
		return fmt.Errorf("failed to write decrypted content: %w", err)
	}

	return outputFile.Sync()
}

func (s *Sealer) loadIdentity() (age.Identity, error) {
	keyFile, err := os.Open(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer keyFile.Close()

	identities, err := age.ParseIdentities(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identities: %w", err)
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in key file")
	}

	return identities[0], nil
}

func (s *Sealer) loadRecipient() (age.Recipient, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return nil, err
	}

	x25519Identity, ok := identity.(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("key is not an X25519 identity")
	}

	return x25519Identity.Recipient(), nil
}
