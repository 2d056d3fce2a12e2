package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models boardline.yml. It seeds new boards with their option sets and
// configures the serve-time background jobs.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Boards struct {
		StatusOptions  []OptionConfig `yaml:"status_options"`
		SectionOptions []OptionConfig `yaml:"section_options"`
	} `yaml:"boards"`
	Reminders struct {
		Enabled     *bool `yaml:"enabled"`
		DueSoonDays int   `yaml:"due_soon_days"`
	} `yaml:"reminders"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// OptionConfig seeds one status or section option on a new board.
type OptionConfig struct {
	Label    string `yaml:"label"`
	Color    string `yaml:"color"`
	Terminal bool   `yaml:"terminal"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Enabled        *bool    `yaml:"enabled"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if len(c.Boards.StatusOptions) == 0 {
		return fmt.Errorf("config.boards.status_options is required")
	}
	terminal := false
	for i, opt := range c.Boards.StatusOptions {
		if opt.Label == "" {
			return fmt.Errorf("status option %d has empty label", i)
		}
		if opt.Terminal {
			terminal = true
		}
	}
	if !terminal {
		return fmt.Errorf("config.boards.status_options must include a terminal option")
	}
	if c.Boards.StatusOptions[0].Terminal {
		return fmt.Errorf("the first status option is the board default and cannot be terminal")
	}
	for i, opt := range c.Boards.SectionOptions {
		if opt.Label == "" {
			return fmt.Errorf("section option %d has empty label", i)
		}
	}
	if c.Reminders.DueSoonDays < 0 {
		return fmt.Errorf("config.reminders.due_soon_days must not be negative")
	}
	return nil
}

// DueSoonDays returns the reminder horizon with its default applied.
func (c *Config) DueSoonDays() int {
	if c.Reminders.DueSoonDays == 0 {
		return 2
	}
	return c.Reminders.DueSoonDays
}

// RemindersEnabled reports whether the due-date scanner should run.
func (c *Config) RemindersEnabled() bool {
	return c.Reminders.Enabled == nil || *c.Reminders.Enabled
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "boardline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with bl org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	return &cfg
}

const defaultTemplate = `org:
  id: %s
  name: Default Org

boards:
  status_options:
    - label: To Do
      color: "#6b7280"
    - label: In Progress
      color: "#3b82f6"
    - label: Done
      color: "#22c55e"
      terminal: true

  section_options:
    - label: Planning
      color: "#a855f7"
    - label: Execution
      color: "#f59e0b"

reminders:
  due_soon_days: 2
`
