package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadKeySetFile reads a trusted-keys file: a JSON array of hex-or-base64
// Ed25519 public key strings. A missing file yields an empty KeySet,
// matching a fresh install that has not yet trusted anyone.
func LoadKeySetFile(path string) (*KeySet, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewKeySet(), nil, nil
		}
		return nil, nil, err
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing trusted keys %s: %w", path, err)
	}

	ks := NewKeySet()
	if err := ks.SetTrustedKeys(raw); err != nil {
		return nil, nil, err
	}
	return ks, raw, nil
}

// SaveKeySetFile writes keys to path as a JSON array, creating parent
// directories as needed.
func SaveKeySetFile(path string, keys []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if keys == nil {
		keys = []string{}
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
