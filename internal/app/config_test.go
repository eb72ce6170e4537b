package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := LoadConfig(LoadOptions{SkipFlags: true, Files: []string{}})
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Dir)
	assert.Equal(t, 50, cfg.Storage.ReceiptLimit)
	assert.Equal(t, "127.0.0.1:8080", cfg.Gateway.Addr)
	assert.Equal(t, 100, cfg.Gateway.RateLimit.Max)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Gateway.CORS.Origins)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shop.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
api:
  base_url: http://shop.test
storage:
  backend: memory
  namespace: alice
checkout:
  revalidate_prices: true
`), 0o600))

	t.Setenv("SHOP_STORAGE_NAMESPACE", "bob")
	cfg, err := LoadConfig(LoadOptions{SkipFlags: true, Files: []string{file}})
	require.NoError(t, err)

	assert.Equal(t, "http://shop.test", cfg.API.BaseURL)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "bob", cfg.Storage.Namespace)
	assert.True(t, cfg.Checkout.RevalidatePrices)
}

func TestLoadConfig_DatabaseURLFallback(t *testing.T) {
	t.Setenv("SHOP_STORAGE_BACKEND", BackendPostgres)
	t.Setenv("DATABASE_URL", "postgres://localhost/shop")
	cfg, err := LoadConfig(LoadOptions{SkipFlags: true, Files: []string{}})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/shop", cfg.Storage.DatabaseURL)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{
		API:     APIConfig{BaseURL: "http://127.0.0.1:8000"},
		Storage: StorageConfig{Backend: BackendFile},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"UnknownBackend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"PostgresWithoutURL", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"EmptyBaseURL", func(c *Config) { c.API.BaseURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}
