package trust

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeySetFileMissingIsEmpty(t *testing.T) {
	ks, raw, err := LoadKeySetFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.False(t, ks.Contains("anything"))
}

func TestSaveAndLoadKeySetFileRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)
	path := filepath.Join(t.TempDir(), "keys", "trusted.txt")

	require.NoError(t, SaveKeySetFile(path, []string{pubHex}))

	ks, raw, err := LoadKeySetFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{pubHex}, raw)
	assert.True(t, ks.Contains(pubHex))
}

func TestLoadKeySetFileParsesJSONArray(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)

	path := filepath.Join(t.TempDir(), "trusted.json")
	content := `["` + pubHex + `"]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, raw, err := LoadKeySetFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{pubHex}, raw)
}

func TestLoadKeySetFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, _, err := LoadKeySetFile(path)
	assert.Error(t, err)
}
