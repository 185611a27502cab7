package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/m4xw311/mallard/errors"
	"gopkg.in/yaml.v3"
)

const (
	dirName  = ".mallard"
	fileName = "config.yaml"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	APIBase              string           `yaml:"api_base"`
	APIKey               string           `yaml:"api_key"`
	DataDir              string           `yaml:"data_dir"`
	HistoryLimit         int              `yaml:"history_limit"`
	MaxIterations        int              `yaml:"max_iterations"`
	Temperature          float64          `yaml:"temperature"`
	CommandTimeout       time.Duration    `yaml:"command_timeout"`
	SystemPromptFile     string           `yaml:"system_prompt_file"`
	IgnoreDirs           []string         `yaml:"ignore_dirs"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
}

// Default returns the configuration used before any file is read.
func Default() *Config {
	return &Config{
		LLMClient:      "openai",
		Model:          "gpt-4o-mini",
		DataDir:        dirName,
		HistoryLimit:   15,
		MaxIterations:  5,
		Temperature:    0.6,
		CommandTimeout: 60 * time.Second,
		IgnoreDirs:     []string{"vendor/**", "node_modules/**", ".git/**", dirName + "/**"},
		FilesystemAccess: FilesystemAccess{
			// The data directory holds history and logs; tools never see it.
			Hidden: []string{dirName, dirName + "/**"},
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	// Load user-level config first
	if userConfigPath, err := UserConfigPath(); err == nil {
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, dirName, fileName)
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, cfg.validate()
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal only overwrites fields present in the YAML, so a project file
	// replaces the user-level values it mentions and keeps the rest.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) validate() error {
	if c.HistoryLimit < 0 {
		return &errors.ConfigError{Key: "history_limit", Reason: "must not be negative"}
	}
	if c.MaxIterations <= 0 {
		return &errors.ConfigError{Key: "max_iterations", Reason: "must be positive"}
	}
	if c.CommandTimeout <= 0 {
		return &errors.ConfigError{Key: "command_timeout", Reason: "must be positive"}
	}
	if c.DataDir == "" {
		return &errors.ConfigError{Key: "data_dir", Reason: "must not be empty"}
	}
	return nil
}

// DataPath resolves the data directory against the project root.
func (c *Config) DataPath(projectRoot string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(projectRoot, c.DataDir)
}

// GetToolset finds a toolset by name. An empty name or an unknown name falls
// back to "default"; ok is false when no toolset applies and every registered
// tool should be exposed.
func (c *Config) GetToolset(name string) (ts *Toolset, ok bool) {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], true
		}
	}
	if name == "default" {
		return nil, false
	}
	return c.GetToolset("default")
}

// UserConfigPath returns ~/.mallard/config.yaml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName, fileName), nil
}

// GlobalKeys lists the keys SetGlobal accepts.
var GlobalKeys = []string{"llm", "model", "api_base", "api_key", "data_dir", "history_limit"}

// SetGlobal writes a single key into the user-level config file, keeping the
// other keys in that file as they are.
func SetGlobal(key, value string) (string, error) {
	path, err := UserConfigPath()
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve user config path")
	}
	return path, setInFile(path, key, value)
}

func setInFile(path, key, value string) error {
	idx := sort.SearchStrings(sortedGlobalKeys, key)
	if idx == len(sortedGlobalKeys) || sortedGlobalKeys[idx] != key {
		return &errors.ConfigError{Key: key, Reason: "not a global configuration key"}
	}

	var typed any = value
	if key == "history_limit" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return &errors.ConfigError{Key: key, Reason: "must be a non-negative integer"}
		}
		typed = n
	}

	current := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &current); err != nil {
			return errors.Wrapf(err, "could not parse %s", path)
		}
		if current == nil {
			current = map[string]any{}
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not read %s", path)
	}
	current[key] = typed

	out, err := yaml.Marshal(current)
	if err != nil {
		return errors.Wrapf(err, "could not encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "could not create config directory")
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}
	return nil
}

var sortedGlobalKeys = func() []string {
	keys := append([]string(nil), GlobalKeys...)
	sort.Strings(keys)
	return keys
}()
