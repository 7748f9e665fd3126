package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper()
	v.Set(URIKey, "./toggles.json")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, int32(8080), cfg.Port)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, "togglecache", cfg.ProductName)
	assert.False(t, cfg.IsRemote())
}

func TestLoad_DefaultURIIsRemote(t *testing.T) {
	v := newViper()
	v.Set(ClientIdentifierKey, "Installations-1:Projects-1:Environments-1")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultURI, cfg.URI)
	assert.True(t, cfg.IsRemote())

	_, err = Load(newViper())
	assert.ErrorContains(t, err, "client-identifier is required")
}

func TestLoad_URIFromEnvironment(t *testing.T) {
	t.Setenv(LegacyURIEnv, "https://legacy.example.com")
	assert.Equal(t, "https://legacy.example.com", newViper().GetString(URIKey))

	t.Setenv("TOGGLECACHE_URI", "https://features.example.com")
	assert.Equal(t, "https://features.example.com", newViper().GetString(URIKey))
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
uri: https://features.example.com
client-identifier: Installations-1:Projects-1:Environments-1
refresh-interval: 30s
`), 0o600))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.True(t, cfg.IsRemote())
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, "Installations-1:Projects-1:Environments-1", cfg.ClientIdentifier)
}

func TestValidate_Errors(t *testing.T) {
	err := Config{URI: "https://features.example.com", Port: 70000}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client-identifier is required")
	assert.Contains(t, err.Error(), "port 70000 is out of range")
	assert.Contains(t, err.Error(), "refresh-interval must be positive")

	assert.ErrorContains(t, Config{}.Validate(), "uri is required")
}
