package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/existflow/hearth/internal/logger"
	"gopkg.in/yaml.v3"
)

const (
	configFile  = "config.yaml"
	boardFile   = "board"
	sessionFile = "session.json"
)

// ErrNoBoard is returned when no board has been selected
var ErrNoBoard = errors.New("no board selected, run 'hearth board set <id>' or set board_id in the config")

// Config holds user preferences
type Config struct {
	ServerURL     string `yaml:"server_url" json:"server_url"`         // hearth-server base URL
	BoardID       string `yaml:"board_id" json:"board_id"`             // Board used when none is selected
	GroupID       string `yaml:"group_id" json:"group_id"`             // Household scope of chains, defaults to the board
	ConfirmDelete bool   `yaml:"confirm_delete" json:"confirm_delete"` // Require confirmation for delete

	// Logging configuration
	LogLevel   string `yaml:"log_level" json:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" json:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" json:"log_console"` // Enable console logging

	dir string
}

// Dir returns the hearth home directory, ~/.hearth unless HEARTH_HOME is set
func Dir() (string, error) {
	if dir := os.Getenv("HEARTH_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hearth"), nil
}

// DefaultConfig returns default settings rooted at dir
func DefaultConfig(dir string) *Config {
	return &Config{
		ConfirmDelete: true,
		LogLevel:      "INFO",
		LogFile:       filepath.Join(dir, "logs", "hearth.log"),
		dir:           dir,
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// applyEnv lets HEARTH_* variables override the file
func (c *Config) applyEnv() {
	c.ServerURL = getEnv("HEARTH_SERVER_URL", c.ServerURL)
	c.GroupID = getEnv("HEARTH_GROUP_ID", c.GroupID)
	c.LogLevel = getEnv("HEARTH_LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("HEARTH_LOG_FILE", c.LogFile)
	if v := os.Getenv("HEARTH_LOG_CONSOLE"); v != "" {
		c.LogConsole = v == "true" || v == "1"
	}
}

// Load loads config from the hearth home directory
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom loads dir/config.yaml, falling back to defaults when it is missing
func LoadFrom(dir string) (*Config, error) {
	cfg := DefaultConfig(dir)

	data, err := os.ReadFile(filepath.Join(dir, configFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save saves config to config.yaml in its directory
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.Path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file location
func (c *Config) Path() string {
	return filepath.Join(c.dir, configFile)
}

// SessionPath returns where the client keeps its login
func (c *Config) SessionPath() string {
	return filepath.Join(c.dir, sessionFile)
}

// Board returns the active board: HEARTH_BOARD_ID, then the board selected
// with SetBoard, then board_id from the file.
func (c *Config) Board() (string, error) {
	if id := os.Getenv("HEARTH_BOARD_ID"); id != "" {
		return id, nil
	}
	data, err := os.ReadFile(filepath.Join(c.dir, boardFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read board selection: %w", err)
	}
	if id := strings.TrimSpace(string(data)); id != "" {
		return id, nil
	}
	if c.BoardID != "" {
		return c.BoardID, nil
	}
	return "", ErrNoBoard
}

// Group returns the chain scope for board
func (c *Config) Group(board string) string {
	if c.GroupID != "" {
		return c.GroupID
	}
	return board
}

// SetBoard selects the active board
func (c *Config) SetBoard(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("board id required")
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(filepath.Join(c.dir, boardFile), []byte(id+"\n"), 0644)
}

// ClearBoard forgets the selected board
func (c *Config) ClearBoard() error {
	err := os.Remove(filepath.Join(c.dir, boardFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Logger returns the logger configuration described by the file
func (c *Config) Logger() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(c.LogLevel)
	lc.FilePath = c.LogFile
	lc.Console = c.LogConsole
	return lc
}
