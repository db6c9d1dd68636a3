package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// MinSecretLength is the shortest accepted session signing secret, in bytes.
const MinSecretLength = 32

// Config represents the application configuration loaded from a TOML file and overlaid with environment variables.
type Config struct {
	Environment string            `toml:"environment" env:"ENVIRONMENT"`
	LogLevel    string            `toml:"log_level" env:"LOG_LEVEL"`
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Search      SearchConfig      `toml:"search"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify application credentials and endpoints.
//
// The endpoint URLs exist so tests and staging deployments can point at a fake provider.
type SpotifyConfig struct {
	ClientID        string        `toml:"client_id" env:"CLIENT_ID"`
	ClientSecret    string        `toml:"client_secret" env:"CLIENT_SECRET"`
	RedirectPath    string        `toml:"redirect_path"`
	Scopes          []string      `toml:"scopes"`
	AuthURL         string        `toml:"auth_url"`
	TokenURL        string        `toml:"token_url"`
	APIBaseURL      string        `toml:"api_base_url"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"SPOTIFY_REQUEST_TIMEOUT"`
	RefreshInterval time.Duration `toml:"refresh_interval" env:"CLIENT_CREDENTIALS_REFRESH_INTERVAL"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `toml:"host" env:"HOST"`
	Port            int           `toml:"port" env:"PORT"`
	Protocol        string        `toml:"protocol" env:"PROTOCOL"`
	SuccessPath     string        `toml:"success_path"`
	ErrorPath       string        `toml:"error_path"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// SessionConfig contains signed-cookie settings for sessions and OAuth state.
type SessionConfig struct {
	Secret          string        `toml:"secret" env:"JWT_SECRET"`
	Issuer          string        `toml:"issuer"`
	CookieName      string        `toml:"cookie_name"`
	StateCookieName string        `toml:"state_cookie_name"`
	TTL             time.Duration `toml:"ttl"`
	StateTTL        time.Duration `toml:"state_ttl"`
}

// SearchConfig contains frontend search tuning values.
type SearchConfig struct {
	TypeaheadCount int `toml:"typeahead_count" json:"typeAheadReturnCount"`
	MinimumChars   int `toml:"minimum_chars" json:"minimumCharsForTypeahead"`
}

// IsProduction reports whether the environment is set to production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings required to run the web server.
//
// Missing Spotify credentials also match [ErrMissingCredentials].
func (c *Config) Validate() error {
	var errs []error
	if len(c.Session.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d bytes (set JWT_SECRET)", MinSecretLength))
	}
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("%w: spotify client id and secret are required (set CLIENT_ID and CLIENT_SECRET)", ErrMissingCredentials))
	}
	if c.Session.TTL <= 0 || c.Session.StateTTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl and state_ttl must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Server.Protocol != "http://" && c.Server.Protocol != "https://" {
		errs = append(errs, fmt.Errorf("server protocol must be http:// or https://, got %q", c.Server.Protocol))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// Load builds the runtime configuration: defaults, then the TOML file at path (if it exists), then environment variables.
//
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	config := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overlays environment variables onto config. Unset variables leave fields untouched.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: parsing environment: %w", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns the config as TOML with secrets masked.
func (c *Config) Redacted() ([]byte, error) {
	clone := *c
	clone.Credentials.Spotify.Scopes = append([]string(nil), c.Credentials.Spotify.Scopes...)
	clone.Credentials.Spotify.ClientSecret = mask(c.Credentials.Spotify.ClientSecret)
	clone.Session.Secret = mask(c.Session.Secret)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(clone); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
