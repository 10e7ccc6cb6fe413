package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealAndOpenRoundTrip(t *testing.T) {
	t.Setenv("SETTINGS_ENCRYPTION_KEY", "test-master-password")

	sealed, err := SealValueForStorage("sk-very-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-very-secret", sealed)

	opened, err := OpenValueFromStorage(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret", opened)
}

func TestSealProducesUniqueCiphertexts(t *testing.T) {
	t.Setenv("SETTINGS_ENCRYPTION_KEY", "test-master-password")

	first, err := SealValueForStorage("same value")
	require.NoError(t, err)
	second, err := SealValueForStorage("same value")
	require.NoError(t, err)

	// Fresh salt and nonce per seal
	assert.NotEqual(t, first, second)
}

func TestOpenFailsWithWrongMasterKey(t *testing.T) {
	t.Setenv("SETTINGS_ENCRYPTION_KEY", "original-password")
	sealed, err := SealValueForStorage("sk-very-secret")
	require.NoError(t, err)

	t.Setenv("SETTINGS_ENCRYPTION_KEY", "rotated-password")
	_, err = OpenValueFromStorage(sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealRequiresMasterKey(t *testing.T) {
	t.Setenv("SETTINGS_ENCRYPTION_KEY", "")

	_, err := SealValueForStorage("anything")
	require.ErrorIs(t, err, ErrNoEncryptionKey)

	_, err = OpenValueFromStorage("doesnotmatter")
	require.ErrorIs(t, err, ErrNoEncryptionKey)
}

func TestOpenRejectsMalformedValues(t *testing.T) {
	t.Setenv("SETTINGS_ENCRYPTION_KEY", "test-master-password")

	_, err := OpenValueFromStorage("not base64 at all!!!")
	require.ErrorIs(t, err, ErrMalformedSealedVal)

	_, err = OpenValueFromStorage("c2hvcnQ=") // valid base64, too short to hold salt+nonce
	require.ErrorIs(t, err, ErrMalformedSealedVal)
}

func TestEncryptDataRejectsBadKeyLength(t *testing.T) {
	_, _, err := EncryptData([]byte("data"), []byte("short-key"))
	require.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = DecryptData([]byte("data"), []byte("nonce"), []byte("short-key"))
	require.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltLength)

	first := DeriveKey("password", salt)
	second := DeriveKey("password", salt)
	assert.Equal(t, first, second)
	assert.Len(t, first, int(Argon2KeyLength))

	other, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, first, DeriveKey("password", other))
}
