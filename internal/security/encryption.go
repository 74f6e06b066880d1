package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"golang.org/x/crypto/hkdf"
)

// credentialKeyInfo binds the derived key to its purpose so the same master
// secret can never decrypt data encrypted for another use.
const credentialKeyInfo = "flexbill/provider-credentials/v1"

// EncryptionService defines the interface for encryption and hashing operations
type EncryptionService interface {
	// Encrypt encrypts plaintext using AES-GCM
	Encrypt(plaintext string) (string, error)

	// Decrypt decrypts ciphertext using AES-GCM
	Decrypt(ciphertext string) (string, error)

	// Hash creates a one-way hash of the input value using SHA-256
	Hash(value string) string
}

// MasterKey is the server side secret all stored credentials are encrypted under.
// It is handed to NewEncryptionService by whoever owns the secret store.
type MasterKey []byte

type aesEncryptionService struct {
	key []byte
}

// NewEncryptionService derives an AES-256 key from masterKey with HKDF-SHA256
func NewEncryptionService(masterKey MasterKey) (EncryptionService, error) {
	if len(masterKey) == 0 {
		return nil, ierr.NewError("master encryption key not configured").
			WithHint("A master key must be provided to store provider credentials").
			Mark(ierr.ErrSystem)
	}

	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(credentialKeyInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to derive encryption key").
			Mark(ierr.ErrSystem)
	}

	return &aesEncryptionService{key: key}, nil
}

// Encrypt encrypts plaintext using AES-GCM and returns base64-encoded ciphertext
func (s *aesEncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to generate nonce").
			Mark(ierr.ErrSystem)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext using AES-GCM
func (s *aesEncryptionService) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to decode ciphertext").
			Mark(ierr.ErrSystem)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(decoded) < nonceSize {
		return "", ierr.NewError("ciphertext too short").
			WithHint("Stored credential is corrupted").
			Mark(ierr.ErrSystem)
	}

	nonce, ciphertextBytes := decoded[:nonceSize], decoded[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to decrypt stored credential").
			Mark(ierr.ErrSystem)
	}

	return string(plaintext), nil
}

// Hash creates a one-way hash of the input value using SHA-256
func (s *aesEncryptionService) Hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (s *aesEncryptionService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create cipher block").
			Mark(ierr.ErrSystem)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create GCM").
			Mark(ierr.ErrSystem)
	}
	return gcm, nil
}

// GenerateRandomKey generates a random 32-byte hex key, used for master keys and webhook secrets
func GenerateRandomKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to generate random key").
			Mark(ierr.ErrSystem)
	}
	return hex.EncodeToString(key), nil
}

// SignHMACSHA256 returns the hex encoded HMAC-SHA256 of body under secret
func SignHMACSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 compares a hex signature against the expected one in constant time
func VerifyHMACSHA256(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(SignHMACSHA256(secret, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
