// Package secrets resolves credentials of the reference database from secret providers.
// The connection string may refer secrets as {secret:name}, e.g.
// postgres://verifier:{secret:pg-pass}@localhost:5432/ref, Expand replaces them with values
// from the provider.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by providers if the key is not set
var ErrNotFound = errors.New("secret not found")

// Provider returns a secret value by key
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

var placeholderRe = regexp.MustCompile(`\{secret:([^{}]+)\}`)

// Keys returns names of all secrets referred in s, in order of appearance, without duplicates.
func Keys(s string) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		res = append(res, m[1])
	}
	return res
}

// Expand replaces {secret:name} placeholders in s with values from the provider.
// Returns the expanded string and the list of resolved values, to be masked in logs.
func Expand(ctx context.Context, s string, p Provider) (res string, values []string, err error) {
	keys := Keys(s)
	if len(keys) == 0 {
		return s, nil, nil
	}
	if p == nil {
		return "", nil, fmt.Errorf("no secrets provider for %d secrets", len(keys))
	}

	vals := map[string]string{}
	for _, k := range keys {
		v, err := p.Get(ctx, k)
		if err != nil {
			return "", nil, fmt.Errorf("can't get secret %q: %w", k, err)
		}
		vals[k] = v
		values = append(values, v)
	}

	res = placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		return vals[placeholderRe.FindStringSubmatch(m)[1]]
	})
	return res, values, nil
}

// MemoryProvider keeps secrets in a map. Used for tests and for values passed in environment.
type MemoryProvider struct {
	secrets map[string]string
}

// NewMemoryProvider creates a new MemoryProvider with the given secrets.
func NewMemoryProvider(secrets map[string]string) *MemoryProvider {
	return &MemoryProvider{secrets: secrets}
}

// Get returns the secret for the given key.
func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	if val, ok := m.secrets[key]; ok {
		return val, nil
	}
	return "", fmt.Errorf("%q: %w", key, ErrNotFound)
}

// NoOpProvider fails on every key
type NoOpProvider struct{}

// Get returns an error on every key.
func (p *NoOpProvider) Get(context.Context, string) (string, error) {
	return "", errors.New("secrets provider not set")
}
