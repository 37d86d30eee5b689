package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	defaultConfigPath = "~/.config/pixelmap/config.json"
	defaultListenAddr = ":8093"
)

// Config holds user-editable settings for the service and clients.
type Config struct {
	Server   Server   `json:"server"`
	Logging  Logging  `json:"logging"`
	Paths    Paths    `json:"paths"`
	Auth     Auth     `json:"auth"`
	Geocode  Geocode  `json:"geocode"`
	Generate Generate `json:"generate"`
	Watch    Watch    `json:"watch"`
}

// Server configures the HTTP API.
type Server struct {
	Addr            string `json:"addr"`
	ShutdownSeconds int    `json:"shutdown_seconds"`
}

// Logging controls verbosity and output format.
type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Paths configures storage locations.
type Paths struct {
	DatabasePath string `json:"database_path"`
	ExportDir    string `json:"export_dir"`
}

// Auth points at the external passkey identity service.
type Auth struct {
	PasskeyURL string `json:"passkey_url"`
}

// Geocode configures the map-data lookup service.
type Geocode struct {
	BaseURL  string `json:"base_url"`
	Language string `json:"language"`
}

// Generate configures the generative-image service.
type Generate struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	Workers  int    `json:"workers"`
}

// Watch configures the auto-import daemon.
type Watch struct {
	Dirs      []string `json:"dirs"`
	ServerURL string   `json:"server_url"`
	Token     string   `json:"token"`
}

// Load reads configuration from disk, falling back to sensible defaults.
// A .env file in the working directory is loaded first so secrets can be
// kept out of the config file; environment values win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	configPath := os.Getenv("PIXELMAP_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PASSKEY_API_URL"); v != "" {
		c.Auth.PasskeyURL = v
	}
	if v := os.Getenv("GENERATE_API_KEY"); v != "" {
		c.Generate.APIKey = v
	}
	if v := os.Getenv("GENERATE_ENDPOINT"); v != "" {
		c.Generate.Endpoint = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Paths.DatabasePath = v
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Addr:            defaultListenAddr,
			ShutdownSeconds: 5,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Paths: Paths{
			DatabasePath: filepath.Join(os.TempDir(), "pixelmap.db"),
			ExportDir:    ".",
		},
		Geocode: Geocode{
			BaseURL:  "https://nominatim.openstreetmap.org",
			Language: "en",
		},
		Generate: Generate{
			Endpoint: "https://generativelanguage.googleapis.com",
			Model:    "gemini-2.5-flash-image-preview",
			Workers:  2,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
