package trust

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Signature is a plugin's detached Ed25519 signature, as declared in its
// manifest.
type Signature struct {
	PublicKey string
	Bytes     []byte // exactly 64 bytes
	Timestamp time.Time
}

// canonicalPayload is the deterministic, field-ordered structure a
// plugin's signature is computed over. It binds the signature to both the
// manifest and the actual entry-point bytes, defeating swap attacks
// between signing time and load time.
type canonicalPayload struct {
	Version          int    `json:"version"`
	PluginID         string `json:"plugin_id"`
	Name             string `json:"name"`
	PluginVersion    string `json:"plugin_version"`
	EntryPoint       string `json:"entry_point"`
	Source           string `json:"source"`
	Trust            string `json:"trust"`
	TimestampSecs    int64  `json:"timestamp_secs"`
	ManifestSHA256   string `json:"manifest_sha256"`
	EntryPointSHA256 string `json:"entry_point_sha256"`
}

// BuildSignaturePayload produces the deterministic byte string a plugin's
// signature is computed over, by hashing the manifest and entry-point
// files on disk. It fails if either file cannot be read.
func BuildSignaturePayload(manifestPath, entryPointPath string, pluginID, name, version, source string, trust Level, timestamp time.Time) ([]byte, error) {
	manifestSum, err := sha256File(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("hashing manifest: %w", err)
	}
	entrySum, err := sha256File(entryPointPath)
	if err != nil {
		return nil, fmt.Errorf("hashing entry point: %w", err)
	}

	p := canonicalPayload{
		Version:          1,
		PluginID:         pluginID,
		Name:             name,
		PluginVersion:    version,
		EntryPoint:       entryPointPath,
		Source:           source,
		Trust:            trust.String(),
		TimestampSecs:    timestamp.Unix(),
		ManifestSHA256:   manifestSum,
		EntryPointSHA256: entrySum,
	}

	return json.Marshal(p)
}

func sha256File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// decodePublicKey accepts a base64 or hex-encoded (optionally 0x-prefixed)
// Ed25519 public key.
func decodePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")

	if len(s) == hex.EncodedLen(ed25519.PublicKeySize) {
		if raw, err := hex.DecodeString(s); err == nil {
			return ed25519.PublicKey(raw), nil
		}
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("public key is neither valid hex nor base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decoded public key has length %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// KeySet is the persistent set of trusted Ed25519 public keys, replaced
// atomically as a whole (see SetTrustedKeys).
type KeySet struct {
	keys map[string]ed25519.PublicKey
}

// NewKeySet builds an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]ed25519.PublicKey)}
}

// Contains reports whether the raw, as-declared public key string is a
// trusted member — comparing by decoded key bytes so hex and base64
// encodings of the same key are equivalent.
func (ks *KeySet) Contains(publicKey string) bool {
	decoded, err := decodePublicKey(publicKey)
	if err != nil {
		return false
	}
	for _, k := range ks.keys {
		if k.Equal(decoded) {
			return true
		}
	}
	return false
}

// SetTrustedKeys installs an entirely new key set, built from raw
// (hex-or-base64) key strings. It installs the full new set or leaves the
// previous set untouched: any invalid entry rejects the whole batch
// (fail-closed), matching the on-disk trusted-keys store's
// any-invalid-entry-rejects-the-file contract.
func (ks *KeySet) SetTrustedKeys(rawKeys []string) error {
	next := make(map[string]ed25519.PublicKey, len(rawKeys))
	for _, raw := range rawKeys {
		key, err := decodePublicKey(raw)
		if err != nil {
			return fmt.Errorf("invalid trusted key %q: %w", raw, err)
		}
		next[raw] = key
	}
	ks.keys = next
	return nil
}

// Verifier checks plugin signatures against a trusted key set.
type Verifier struct {
	keys *KeySet
	now  func() time.Time
}

// NewVerifier builds a Verifier backed by keys. A nil keys trusts nothing.
func NewVerifier(keys *KeySet) *Verifier {
	return &Verifier{keys: keys, now: time.Now}
}

// Verify returns true only if all of: the public key is in the trusted
// set; the signature is structurally valid (non-empty key, exactly 64
// signature bytes, timestamp not in the future); the key decodes as
// Ed25519; and the Ed25519 verification of sig.Bytes over payload
// succeeds.
func (v *Verifier) Verify(sig Signature, payload []byte) bool {
	if sig.PublicKey == "" || len(sig.Bytes) != ed25519.SignatureSize {
		return false
	}
	if sig.Timestamp.After(v.now()) {
		return false
	}
	if v.keys == nil || !v.keys.Contains(sig.PublicKey) {
		return false
	}

	pub, err := decodePublicKey(sig.PublicKey)
	if err != nil {
		return false
	}

	return ed25519.Verify(pub, payload, sig.Bytes)
}

// ValidateStructure checks the structural requirements of a signature
// without consulting the trusted key set or checking the cryptographic
// proof — used by the manifest Loader at parse time, per spec.md §4.3
// ("validates any present signature structurally").
func ValidateStructure(sig Signature) error {
	if strings.TrimSpace(sig.PublicKey) == "" {
		return fmt.Errorf("signature public key is empty")
	}
	if len(sig.Bytes) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be exactly %d bytes, got %d", ed25519.SignatureSize, len(sig.Bytes))
	}
	return nil
}
