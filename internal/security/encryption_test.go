package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionService(t *testing.T) {
	svc, err := NewEncryptionService(MasterKey("test-master-key"))
	require.NoError(t, err)

	t.Run("encrypt then decrypt returns plaintext", func(t *testing.T) {
		ciphertext, err := svc.Encrypt("sk_test_123")
		require.NoError(t, err)
		assert.NotEqual(t, "sk_test_123", ciphertext)

		plaintext, err := svc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "sk_test_123", plaintext)
	})

	t.Run("empty values pass through", func(t *testing.T) {
		ciphertext, err := svc.Encrypt("")
		require.NoError(t, err)
		assert.Empty(t, ciphertext)
	})

	t.Run("different master key cannot decrypt", func(t *testing.T) {
		ciphertext, err := svc.Encrypt("sk_test_123")
		require.NoError(t, err)

		other, err := NewEncryptionService(MasterKey("another-key"))
		require.NoError(t, err)
		_, err = other.Decrypt(ciphertext)
		assert.Error(t, err)
	})

	t.Run("missing master key is rejected", func(t *testing.T) {
		_, err := NewEncryptionService(nil)
		assert.Error(t, err)
	})
}

func TestHMACSignature(t *testing.T) {
	body := []byte(`{"event":"invoice.paid"}`)
	sig := SignHMACSHA256("whsec_abc", body)

	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMACSHA256("whsec_abc", body, sig))
	assert.False(t, VerifyHMACSHA256("whsec_other", body, sig))
	assert.False(t, VerifyHMACSHA256("whsec_abc", body, "not-hex"))
}
