package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation (2^15).
	scryptN = 32768

	// scryptR is the block size parameter for scrypt key derivation.
	scryptR = 8

	// scryptP is the parallelization parameter for scrypt key derivation.
	scryptP = 1

	// scryptKeyLen is the derived key length in bytes.
	scryptKeyLen = 32
)

// deriveKey derives a 32-byte encryption key from the pepper file contents
// and a fixed context salt using scrypt. Parameters: N=32768, r=8, p=1.
func deriveKey(pepper []byte, salt string) ([]byte, error) {
	key, err := scrypt.Key(pepper, []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return key, nil
}

// sealer encrypts and decrypts secret values with AES-GCM. Values are
// stored as [12-byte nonce][ciphertext+GCM tag].
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &sealer{gcm: gcm}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	ns := s.gcm.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("sealed value too short: %d bytes", len(data))
	}

	plaintext, err := s.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting value: %w", err)
	}

	return plaintext, nil
}
