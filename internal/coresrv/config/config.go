// Package config loads and validates the portal configuration from a TOML
// file. Besides the typed sections it exposes a flat dotted-key property view
// used by the authentication-domain registry to discover authenticator
// definitions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// SessionConfig holds login-session and editing-context pool configuration.
type SessionConfig struct {
	Timeout       string `toml:"timeout" validate:"required"`              // login-session idle timeout
	PageCacheSize int    `toml:"page_cache_size" validate:"required,gt=0"` // bound on recyclable peer managers per session
}

// GetTimeout returns the session timeout as a time.Duration.
func (s *SessionConfig) GetTimeout() (time.Duration, error) {
	return ParseDuration(s.Timeout)
}

// GetTimeoutOrDefault returns the session timeout, panicking on an invalid
// value. Config validation guarantees the value parses.
func (s *SessionConfig) GetTimeoutOrDefault() time.Duration {
	d, err := s.GetTimeout()
	if err != nil {
		panic(fmt.Sprintf("invalid session timeout: %v", err))
	}
	return d
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	TokenSigningKey string `toml:"token_signing_key"` // HMAC key for session tokens; generated if empty
	TokenValidity   string `toml:"token_validity" validate:"required"`
}

// GetTokenValidity returns the session-token validity as a time.Duration.
func (a *AuthConfig) GetTokenValidity() (time.Duration, error) {
	return ParseDuration(a.TokenValidity)
}

// GetTokenValidityOrDefault returns the token validity, panicking on an
// invalid value.
func (a *AuthConfig) GetTokenValidityOrDefault() time.Duration {
	d, err := a.GetTokenValidity()
	if err != nil {
		panic(fmt.Sprintf("invalid token validity: %v", err))
	}
	return d
}

// StoreConfig selects and bounds the object-store adapter.
type StoreConfig struct {
	Type        string `toml:"type" validate:"required,oneof=postgresql memory"`
	MaxChannels int    `toml:"max_channels"` // concurrent editing contexts per store connection; defaults to 5
}

// FilesystemConfig holds the on-disk roots that track entity renames.
type FilesystemConfig struct {
	SubmissionRoot string `toml:"submission_root" validate:"required"`
	WorkAreaRoot   string `toml:"work_area_root" validate:"required"`
	ScriptDataRoot string `toml:"script_data_root" validate:"required"`
}

// Roots returns the three managed directory roots.
func (f *FilesystemConfig) Roots() []string {
	return []string{f.SubmissionRoot, f.WorkAreaRoot, f.ScriptDataRoot}
}

// DBConfig holds the relational store connection parameters.
type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DBName   string `toml:"dbname"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
}

// ConfigParam holds all configuration for the portal core server.
type ConfigParam struct {
	FormatVersion string `toml:"format_version" validate:"required"`

	ServerHostName string `toml:"server_hostname"`
	ServerPort     string `toml:"server_port" validate:"required"`
	HandleCORS     bool   `toml:"handle_cors"`

	Session    SessionConfig    `toml:"session"`
	Auth       AuthConfig       `toml:"auth"`
	Store      StoreConfig      `toml:"store"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	DB         DBConfig         `toml:"db"`

	// Properties is the flat dotted-key property table. Authenticator
	// definitions live here as "authenticator.<name>" entries with their
	// sub-properties as "authenticator.<name>.<option>".
	Properties map[string]string `toml:"properties"`
}

// Version is the supported configuration file format version.
const Version = "0.1.0"

// DefaultMaxChannels bounds concurrent editing contexts per store connection.
const DefaultMaxChannels = 5

var cfg *ConfigParam

// Config returns the loaded configuration.
func Config() *ConfigParam {
	return cfg
}

// DSN returns the relational store connection string.
func (c *ConfigParam) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// Property returns the named flat property and whether it is present.
func (c *ConfigParam) Property(key string) (string, bool) {
	v, ok := c.Properties[key]
	return v, ok
}

// PropertyOrDefault returns the named flat property or def when absent.
func (c *ConfigParam) PropertyOrDefault(key, def string) string {
	if v, ok := c.Properties[key]; ok {
		return v
	}
	return def
}

// ParseDuration parses a duration string in the form "<number><unit>" where
// unit is one of m (minutes), h (hours), d (days), y (years).
func ParseDuration(input string) (time.Duration, error) {
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid duration format: %q", input)
	}
	unit := input[len(input)-1:]
	value, err := strconv.Atoi(input[:len(input)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", err)
	}
	switch unit {
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "y":
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}
}

// ValidateConfig checks structural validity plus the cross-field rules the
// struct tags cannot express.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}

	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if _, err := c.Session.GetTimeout(); err != nil {
		return fmt.Errorf("invalid session.timeout: %v", err)
	}
	if _, err := c.Auth.GetTokenValidity(); err != nil {
		return fmt.Errorf("invalid auth.token_validity: %v", err)
	}
	if c.Store.MaxChannels == 0 {
		c.Store.MaxChannels = DefaultMaxChannels
	}
	if c.Store.MaxChannels < 0 {
		return fmt.Errorf("store.max_channels must be positive")
	}
	if c.Store.Type == "postgresql" {
		if err := validateDBConfig(c); err != nil {
			return err
		}
	}
	if c.Properties == nil {
		c.Properties = map[string]string{}
	}
	return nil
}

func validateDBConfig(c *ConfigParam) error {
	if c.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if c.DB.Port <= 0 {
		return fmt.Errorf("db.port must be positive")
	}
	if c.DB.DBName == "" {
		return fmt.Errorf("db.dbname is required")
	}
	if c.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	if c.DB.Password == "" {
		return fmt.Errorf("db.password is required")
	}
	if c.DB.SSLMode == "" {
		return fmt.Errorf("db.sslmode is required")
	}
	return nil
}

// LoadConfig loads configuration from the given TOML file. A .env file in the
// working directory, if present, may supply the database password through
// WEBCAT_DB_PASSWORD so credentials can stay out of the config file.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	c := &ConfigParam{}
	if _, err := toml.Decode(string(content), c); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	// Best-effort .env overlay; absence is not an error.
	_ = godotenv.Load()
	if pw := os.Getenv("WEBCAT_DB_PASSWORD"); pw != "" {
		c.DB.Password = pw
	}

	if err := ValidateConfig(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	cfg = c
	return nil
}

var isTest = false

// IsTest reports whether the process runs under the test harness.
func IsTest() bool {
	return isTest
}

// TestInit installs an in-memory test configuration. Tests call this instead
// of LoadConfig.
func TestInit() {
	isTest = true
	tmp, err := os.MkdirTemp("", "webcat-test-*")
	if err != nil {
		panic(err)
	}
	cfg = &ConfigParam{
		FormatVersion:  Version,
		ServerHostName: "localhost",
		ServerPort:     "8780",
		Session: SessionConfig{
			Timeout:       "30m",
			PageCacheSize: 20,
		},
		Auth: AuthConfig{
			TokenSigningKey: "test-signing-key",
			TokenValidity:   "1h",
		},
		Store: StoreConfig{
			Type:        "memory",
			MaxChannels: DefaultMaxChannels,
		},
		Filesystem: FilesystemConfig{
			SubmissionRoot: tmp + "/submissions",
			WorkAreaRoot:   tmp + "/work",
			ScriptDataRoot: tmp + "/scriptdata",
		},
		Properties: map[string]string{},
	}
	for _, root := range cfg.Filesystem.Roots() {
		if err := os.MkdirAll(root, 0o755); err != nil {
			panic(err)
		}
	}
}
