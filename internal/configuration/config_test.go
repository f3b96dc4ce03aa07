package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 8083, config.Server.AppPort)
	assert.Equal(t, "messages", config.ChatDatabase.MessagesCollection)
	assert.Equal(t, "conversations", config.ChatDatabase.ConversationsCollection)
	assert.Equal(t, 5, config.Identity.TimeoutSeconds)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mongo": {"uri": "mongodb://localhost:27017", "database": "chat"},
		"server": {"app_port": 9000, "jwt_secret": "s3cret"}
	}`), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", config.ChatDatabase.Uri)
	assert.Equal(t, "chat", config.ChatDatabase.Database)
	assert.Equal(t, 9000, config.Server.AppPort)
	assert.Equal(t, "s3cret", config.Server.JWTSecret)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://env:27017")
	t.Setenv("APP_PORT", "7777")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://env:27017", config.ChatDatabase.Uri)
	assert.Equal(t, 7777, config.Server.AppPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.Server.AllowedOrigins)
}
