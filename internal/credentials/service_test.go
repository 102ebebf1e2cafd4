package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKeyBase64(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestSealAndOpenRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, randomKeyBase64(t))

	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)
	assert.True(t, svc.Enabled())
	assert.Equal(t, "env:"+EncryptionKeyEnv, svc.KeySource())

	sealed, err := svc.SealString("ptr_supersecret")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ptr_supersecret")

	opened, err := svc.OpenString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ptr_supersecret", opened)
}

func TestSealProducesUniqueBlobs(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, randomKeyBase64(t))
	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)

	first, err := svc.SealString("same")
	require.NoError(t, err)
	second, err := svc.SealString("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "every seal uses a fresh nonce")
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, randomKeyBase64(t))
	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)

	sealed, err := svc.SealString("secret")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = svc.OpenString(sealed)
	assert.Error(t, err)
}

func TestOpenRejectsShortBlob(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, randomKeyBase64(t))
	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)

	_, err = svc.OpenString([]byte{0x01})
	assert.Error(t, err)
}

func TestInvalidKeyRejected(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "too-short")
	_, err := NewServiceFromEnv("")
	assert.Error(t, err)
}

func TestRawKeyAccepted(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, strings.Repeat("k", 32))
	svc, err := NewServiceFromEnv("")
	require.NoError(t, err)
	assert.True(t, svc.Enabled())
}

func TestKeyFileGeneratedOnFirstRun(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "")
	t.Setenv(EncryptionKeyFileEnv, "")
	keyPath := filepath.Join(t.TempDir(), "keys", "encryption.key")

	svc, err := NewServiceFromEnv(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "file:"+keyPath, svc.KeySource())

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	sealed, err := svc.SealString("secret")
	require.NoError(t, err)

	// A second service loading the same file can open values sealed by
	// the first.
	again, err := NewServiceFromEnv(keyPath)
	require.NoError(t, err)
	opened, err := again.OpenString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", opened)
}

func TestKeyFileEnvOverride(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "")
	keyPath := filepath.Join(t.TempDir(), "override.key")
	t.Setenv(EncryptionKeyFileEnv, keyPath)

	svc, err := NewServiceFromEnv(filepath.Join(t.TempDir(), "ignored.key"))
	require.NoError(t, err)
	assert.Equal(t, "file:"+keyPath, svc.KeySource())
}
