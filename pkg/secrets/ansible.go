package secrets

import (
	"context"
	"fmt"
	"log"
	"strings"

	vault "github.com/sosedoff/ansible-vault-go"
	"gopkg.in/yaml.v3"
)

// AnsibleVaultProvider reads secrets from ansible-vault encrypted yaml file.
// Nested values are addressed by dotted keys, e.g. refdb.password
type AnsibleVaultProvider struct {
	data map[string]any
}

// NewAnsibleVaultProvider decrypts the vault file with the password and parses it
func NewAnsibleVaultProvider(fname, password string) (*AnsibleVaultProvider, error) {
	plain, err := vault.DecryptFile(fname, password)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt ansible vault %s: %w", fname, err)
	}
	data := map[string]any{}
	if err = yaml.Unmarshal([]byte(plain), &data); err != nil {
		return nil, fmt.Errorf("can't parse ansible vault %s: %w", fname, err)
	}
	log.Printf("[DEBUG] ansible vault %s decrypted, %d keys", fname, len(data))
	return &AnsibleVaultProvider{data: data}, nil
}

// Get returns the value of key, scalars are formatted with %v
func (p *AnsibleVaultProvider) Get(_ context.Context, key string) (string, error) {
	var v any = p.data
	for _, elem := range strings.Split(key, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		if v, ok = m[elem]; !ok {
			return "", fmt.Errorf("%q: %w", key, ErrNotFound)
		}
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("ansible vault value of %q is not a scalar", key)
	}
	return fmt.Sprintf("%v", v), nil
}
