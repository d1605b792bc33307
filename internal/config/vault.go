package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Vault is the secondary store of sensitive values referenced from the
// configuration tree via "??key" syntax. The vault file is read as plain
// YAML; no decryption is performed. Resolution happens at
// the point of field access (Node.String/Int/...), and resolved values are
// memoized per key so repeated field access doesn't redo work. The parsed
// tree itself only ever holds the opaque reference, never the plaintext.
type Vault struct {
	mu       sync.Mutex
	raw      map[string]string
	resolved map[string]string
}

// LoadVault reads a YAML vault file of the form `key: value` pairs. An
// empty path returns an empty, always-failing vault (any "??key" reference
// then fails to resolve with ErrUnresolvedVaultKey).
func LoadVault(path string) (*Vault, error) {
	v := &Vault{
		raw:      make(map[string]string),
		resolved: make(map[string]string),
	}

	if path == "" {
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &v.raw); err != nil {
		return nil, fmt.Errorf("failed to parse vault file %s: %w", path, err)
	}

	return v, nil
}

// resolve returns the plaintext value for a vault key, memoizing the
// lookup.
func (v *Vault) resolve(key string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: %s (no vault loaded)", ErrUnresolvedVaultKey, key)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if val, ok := v.resolved[key]; ok {
		return val, nil
	}

	val, ok := v.raw[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedVaultKey, key)
	}

	v.resolved[key] = val

	return val, nil
}
