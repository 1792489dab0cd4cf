package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New("master-secret")
	require.NoError(t, err)

	fields := map[string]any{
		"api_token": "tok_1234567890",
		"base_url":  "https://example.atlassian.net",
		"port":      float64(443),
	}

	blob, err := v.Encrypt(fields)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "tok_1234567890")

	decrypted, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, fields, decrypted)
}

func TestDecryptWrongSecret(t *testing.T) {
	v1, err := New("secret-one")
	require.NoError(t, err)

	v2, err := New("secret-two")
	require.NoError(t, err)

	blob, err := v1.Encrypt(map[string]any{"password": "hunter2"})
	require.NoError(t, err)

	_, err = v2.Decrypt(blob)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	v, err := New("master-secret")
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]any{"token": "abcdef"})
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xff

	_, err = v.Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptTruncatedBlob(t *testing.T) {
	v, err := New("master-secret")
	require.NoError(t, err)

	_, err = v.Decrypt([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDeterministicKeyDerivation(t *testing.T) {
	// Two vaults built from the same master secret must decrypt each
	// other's output (multi-instance deployments).
	v1, err := New("shared-secret")
	require.NoError(t, err)

	v2, err := New("shared-secret")
	require.NoError(t, err)

	blob, err := v1.Encrypt(map[string]any{"key": "value"})
	require.NoError(t, err)

	decrypted, err := v2.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "value", decrypted["key"])
}

func TestRotateKey(t *testing.T) {
	oldVault, err := New("old-secret")
	require.NoError(t, err)

	fields := map[string]any{"api_key": "sk-original"}

	blob, err := oldVault.Encrypt(fields)
	require.NoError(t, err)

	rotated, err := RotateKey("old-secret", "new-secret", blob)
	require.NoError(t, err)

	newVault, err := New("new-secret")
	require.NoError(t, err)

	decrypted, err := newVault.Decrypt(rotated)
	require.NoError(t, err)
	assert.Equal(t, fields, decrypted)

	// The old secret must no longer open the rotated blob.
	_, err = oldVault.Decrypt(rotated)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestRotateKeyWrongOldSecret(t *testing.T) {
	v, err := New("actual-secret")
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]any{"token": "x"})
	require.NoError(t, err)

	_, err = RotateKey("wrong-secret", "new-secret", blob)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestMaskForDisplay(t *testing.T) {
	masked := MaskForDisplay(map[string]any{
		"password":  "correcthorse",
		"api_token": "tok_42",
		"username":  "ada",
		"host":      "db.internal",
		"pin":       "123",
	}, []string{"pin"})

	assert.Equal(t, "co********se", masked["password"])
	assert.Equal(t, "to**42", masked["api_token"])
	assert.Equal(t, "ada", masked["username"])
	assert.Equal(t, "db.internal", masked["host"])
	assert.Equal(t, "***", masked["pin"])
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
