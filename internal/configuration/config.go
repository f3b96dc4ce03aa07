package configuration

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	JWTSecret      string   `json:"jwt_secret"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type IdentityConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint"`
}

type Config struct {
	ChatDatabase MongoConfig     `json:"mongo"`
	Server       ServerConfig    `json:"server"`
	Identity     IdentityConfig  `json:"identity"`
	Telemetry    TelemetryConfig `json:"telemetry"`
}

// LoadConfig reads the JSON config file, then lets environment variables
// override the sensitive or deployment-specific fields. A missing file is
// fine when every needed value comes from the environment.
func LoadConfig(configPath string) (*Config, error) {
	config := Config{
		ChatDatabase: MongoConfig{
			MessagesCollection:      "messages",
			ConversationsCollection: "conversations",
		},
		Server: ServerConfig{AppPort: 8083},
		Identity: IdentityConfig{
			TimeoutSeconds: 5,
		},
	}

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := json.Unmarshal(file, &config); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&config)
	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MONGO_URI"); v != "" {
		config.ChatDatabase.Uri = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		config.ChatDatabase.Database = v
	}
	if v := os.Getenv("APP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.AppPort = port
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.Server.JWTSecret = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		config.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("IDENTITY_BASE_URL"); v != "" {
		config.Identity.BaseURL = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		config.Telemetry.OTLPEndpoint = v
	}
}
