package config

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gridwire-go/gridwire/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "gridwire.json"

	// DefaultAddr is the default UDP listen address.
	DefaultAddr = ":23347"

	// DefaultTickRate is the default number of simulation ticks per second.
	DefaultTickRate = 20

	// DefaultDayTicks is the default number of ticks in one in-game day.
	DefaultDayTicks = 9600

	// DefaultSaveName is the save slot used when none is configured.
	DefaultSaveName = "game"

	// DefaultSavesDir is the default directory for disk saves.
	DefaultSavesDir = "saves"
)

// Config represents the complete gridwire.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Version is the project version.
	Version string `json:"version,omitempty"`

	// Addr is the UDP listen address (convenience field, also in Server).
	Addr string `json:"addr,omitempty"`

	// Server contains simulation server configuration.
	Server ServerConfig `json:"server,omitempty"`

	// Session contains lobby and session configuration.
	Session SessionConfig `json:"session,omitempty"`

	// Saves contains save store configuration.
	Saves SavesConfig `json:"saves,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains simulation server settings.
type ServerConfig struct {
	// Addr is the UDP address the server listens on.
	Addr string `json:"addr,omitempty"`

	// TickRate is the number of simulation ticks per second.
	TickRate int `json:"tickRate,omitempty"`

	// DayTicks is the number of ticks in one in-game day.
	DayTicks int `json:"dayTicks,omitempty"`

	// Timeout is how long a silent remote connection lives (e.g., "15s").
	Timeout string `json:"timeout,omitempty"`

	// DebugAddr serves pprof and metrics over HTTP when set.
	DebugAddr string `json:"debugAddr,omitempty"`
}

// SessionConfig contains lobby and session settings.
type SessionConfig struct {
	// MinPlayers is the number of players required to start a session.
	MinPlayers int `json:"minPlayers,omitempty"`

	// MaxPlayers is the lobby capacity. Zero means no limit.
	MaxPlayers int `json:"maxPlayers,omitempty"`

	// Autostart begins the session as soon as the lobby can start.
	Autostart bool `json:"autostart,omitempty"`

	// Locked rejects players whose names are not already in the roster.
	Locked bool `json:"locked,omitempty"`
}

// SavesConfig contains save store settings.
type SavesConfig struct {
	// Backend selects the save store: "disk" or "s3".
	Backend string `json:"backend,omitempty"`

	// Dir is the directory for disk saves.
	Dir string `json:"dir,omitempty"`

	// Bucket is the S3 bucket for s3 saves.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the object key prefix for s3 saves.
	Prefix string `json:"prefix,omitempty"`

	// Name is the save slot the server loads and autosaves to.
	Name string `json:"name,omitempty"`

	// Autosave is the interval between autosaves (e.g., "2m").
	Autosave string `json:"autosave,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level,omitempty"`

	// Format selects the log encoder: "text" or "json".
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values. The listen address and
// save name are left empty so loading can resolve them from the
// convenience fields; ListenAddr and SaveName apply the same fallbacks.
func New() *Config {
	return &Config{
		Version: "0.1.0",
		Server: ServerConfig{
			TickRate: DefaultTickRate,
			DayTicks: DefaultDayTicks,
			Timeout:  "15s",
		},
		Session: SessionConfig{
			MinPlayers: 1,
		},
		Saves: SavesConfig{
			Backend:  "disk",
			Dir:      DefaultSavesDir,
			Autosave: "2m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for gridwire.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithDetail("No gridwire.json found in " + filepath.Dir(path)).
				WithSuggestion("Run 'gridwire init' to create one or write gridwire.json by hand")
		}
		return nil, errors.New("E080").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		ge := errors.New("E080").
			WithDetail("Failed to parse gridwire.json: " + err.Error()).
			WithSuggestion("Check that gridwire.json is valid JSON")
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntaxErr):
			ge = ge.WithLocationFromJSON(path, data, syntaxErr.Offset)
		case stderrors.As(err, &typeErr):
			ge = ge.WithLocationFromJSON(path, data, typeErr.Offset)
		}
		return nil, ge
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E080").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E080").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	// Addr - prefer Server.Addr, fall back to the convenience field
	if c.Server.Addr == "" {
		if c.Addr != "" {
			c.Server.Addr = c.Addr
		} else {
			c.Server.Addr = DefaultAddr
		}
	}
	if c.Server.TickRate == 0 {
		c.Server.TickRate = DefaultTickRate
	}
	if c.Server.DayTicks == 0 {
		c.Server.DayTicks = DefaultDayTicks
	}
	if c.Server.Timeout == "" {
		c.Server.Timeout = "15s"
	}

	// Session
	if c.Session.MinPlayers == 0 {
		c.Session.MinPlayers = 1
	}

	// Saves
	if c.Saves.Backend == "" {
		c.Saves.Backend = "disk"
	}
	if c.Saves.Dir == "" {
		c.Saves.Dir = DefaultSavesDir
	}
	if c.Saves.Name == "" {
		if c.Name != "" {
			c.Saves.Name = c.Name
		} else {
			c.Saves.Name = DefaultSaveName
		}
	}
	if c.Saves.Autosave == "" {
		c.Saves.Autosave = "2m"
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// Keep the convenience field in sync
	if c.Addr == "" {
		c.Addr = c.Server.Addr
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	addr := c.ListenAddr()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.New("E002").
			WithDetail("Cannot parse listen address " + strconv.Quote(addr))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return errors.New("E082").
			WithDetail("Listen port must be between 0 and 65535, got " + strconv.Quote(portStr))
	}

	if c.Server.TickRate < 0 || c.Server.TickRate > 1000 {
		return errors.New("E083").
			WithDetail("Tick rate must be between 1 and 1000, got " + strconv.Itoa(c.Server.TickRate))
	}

	if c.Session.MinPlayers < 0 {
		return errors.New("E084").
			WithDetail("minPlayers must not be negative")
	}
	if c.Session.MaxPlayers > 0 && c.Session.MaxPlayers < c.Session.MinPlayers {
		return errors.New("E084")
	}

	switch c.Saves.Backend {
	case "", "disk":
	case "s3":
		if c.Saves.Bucket == "" {
			return errors.New("E086")
		}
	default:
		return errors.New("E085").
			WithDetail("Unknown backend " + strconv.Quote(c.Saves.Backend))
	}

	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.AutosaveInterval(); err != nil {
		return err
	}

	return nil
}

// ListenAddr returns the UDP address the server should bind.
func (c *Config) ListenAddr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	if c.Addr != "" {
		return c.Addr
	}
	return DefaultAddr
}

// SaveName returns the save slot name, falling back to the project name.
func (c *Config) SaveName() string {
	if c.Saves.Name != "" {
		return c.Saves.Name
	}
	if c.Name != "" {
		return c.Name
	}
	return DefaultSaveName
}

// SavesPath returns the absolute path to the disk saves directory.
func (c *Config) SavesPath() string {
	dir := c.Saves.Dir
	if dir == "" {
		dir = DefaultSavesDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Dir(), dir)
}

// HasS3 returns true if saves are stored in S3.
func (c *Config) HasS3() bool {
	return c.Saves.Backend == "s3"
}

// TimeoutDuration returns the parsed connection timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", c.Server.Timeout, 15*time.Second)
}

// AutosaveInterval returns the parsed autosave interval.
func (c *Config) AutosaveInterval() (time.Duration, error) {
	return parseDuration("autosave", c.Saves.Autosave, 2*time.Minute)
}

// parseDuration parses a duration field, applying fallback when unset.
func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("E080").
			WithDetail(field + " is not a valid duration: " + strconv.Quote(value)).
			WithSuggestion(`Use a Go duration such as "15s" or "2m"`)
	}
	return d, nil
}

// LogLevel returns the slog level for the configured level name.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing gridwire.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E100").
				WithDetail("No gridwire.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'gridwire init' to create a new project")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
