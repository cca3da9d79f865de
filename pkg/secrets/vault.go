package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// VaultProvider reads secrets from a single HashiCorp Vault path.
// Both kv v2 (secret/data/...) and kv v1 layouts are supported.
type VaultProvider struct {
	client *api.Client
	path   string
}

// NewVaultProvider creates a vault client for the given address and token
func NewVaultProvider(addr, path, token string) (*VaultProvider, error) {
	if path == "" {
		return nil, errors.New("empty vault path")
	}
	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("can't make vault client: %w", err)
	}
	client.SetToken(token)
	return &VaultProvider{client: client, path: path}, nil
}

// Get reads the path and returns the value of key
func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	secret, err := p.client.Logical().ReadWithContext(ctx, p.path)
	if err != nil {
		return "", fmt.Errorf("can't read vault path %s: %w", p.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault path %s: %w", p.path, ErrNotFound)
	}

	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]any); ok {
		data = nested // kv v2 keeps values under data
	}
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	res, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected vault value type %T for %q", v, key)
	}
	return res, nil
}
