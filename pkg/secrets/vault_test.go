package secrets

import (
	"context"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestVaultProvider_Get(t *testing.T) {
	if testing.Short() {
		t.Skip("skip container tests in short mode")
	}
	ctx := context.Background()
	vaultC, vaultAddr := createVaultTestContainer(t)
	defer vaultC.Terminate(ctx) // nolint

	client, err := api.NewClient(&api.Config{Address: vaultAddr})
	require.NoError(t, err)
	client.SetToken("myroot-token")
	_, err = client.Logical().Write("secret/data/sqltext", map[string]any{
		"data": map[string]string{"pg-pass": "s3cr3t"},
	})
	require.NoError(t, err)

	p, err := NewVaultProvider(vaultAddr, "secret/data/sqltext", "myroot-token")
	require.NoError(t, err)

	t.Run("existing key", func(t *testing.T) {
		val, err := p.Get(ctx, "pg-pass")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", val)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := p.Get(ctx, "mysql-pass")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing path", func(t *testing.T) {
		other, err := NewVaultProvider(vaultAddr, "secret/data/other", "myroot-token")
		require.NoError(t, err)
		_, err = other.Get(ctx, "pg-pass")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid token", func(t *testing.T) {
		bad, err := NewVaultProvider(vaultAddr, "secret/data/sqltext", "invalid-token")
		require.NoError(t, err)
		_, err = bad.Get(ctx, "pg-pass")
		require.ErrorContains(t, err, "permission denied")
	})
}

func TestNewVaultProvider_EmptyPath(t *testing.T) {
	_, err := NewVaultProvider("http://localhost:8200", "", "token")
	assert.EqualError(t, err, "empty vault path")
}

func createVaultTestContainer(t *testing.T) (vaultC testcontainers.Container, vaultAddr string) {
	t.Helper()
	ctx := context.Background()
	vaultC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "hashicorp/vault:1.15",
			ExposedPorts: []string{"8200/tcp"},
			Env: map[string]string{
				"VAULT_DEV_ROOT_TOKEN_ID":  "myroot-token",
				"VAULT_DEV_LISTEN_ADDRESS": "0.0.0.0:8200",
			},
			WaitingFor: wait.ForHTTP("/v1/sys/health").WithPort("8200/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := vaultC.Host(ctx)
	require.NoError(t, err)
	port, err := vaultC.MappedPort(ctx, "8200")
	require.NoError(t, err)
	return vaultC, "http://" + host + ":" + port.Port()
}
