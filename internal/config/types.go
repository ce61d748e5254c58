// Package config defines the daemon configuration, its strict decoding, and
// a file watcher that publishes validated updates to subscribers.
package config

import (
	"fmt"
	"strings"
	"time"

	"autotap/internal/engine"
	"autotap/internal/sender"
	"autotap/internal/storage"
	logx "autotap/pkg/logx"
)

// Config is the on-disk configuration. Durations are strings ("1.5s", "250ms")
// so operators never have to count nanoseconds.
//
// YAML and JSON are both accepted; YAML is coerced to JSON before strict
// decoding, so unknown fields are rejected in either format.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Sender     SenderConfig     `json:"sender"`
	Automation AutomationConfig `json:"automation"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Report     *ReportConfig    `json:"report,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SenderConfig struct {
	Driver  string   `json:"driver"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Timeout string   `json:"timeout"`
}

type AutomationConfig struct {
	// Autostart starts the engine as soon as the daemon is up.
	Autostart bool `json:"autostart"`

	Stagger        string `json:"stagger"`
	GlobalCooldown string `json:"global_cooldown"`
	OrderObeyed    bool   `json:"order_obeyed"`

	Actions []ActionConfig `json:"actions"`
}

type ActionConfig struct {
	ID       string `json:"id"`
	Interval string `json:"interval"`

	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`

	Priority               int `json:"priority"`
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`

	// Retention bounds how far back execution history is kept.
	Retention string `json:"retention"`
}

type ReportConfig struct {
	Enabled bool `json:"enabled"`

	// Every is a cron spec or @every descriptor for the stats summary.
	Every string `json:"every"`

	// PruneSchedule is a cron spec for history pruning.
	PruneSchedule string `json:"prune_schedule"`
}

// Defaults mirror the historical desktop app: 1.7s stagger, 1.5s cooldown.
const (
	defaultStagger  = 1700 * time.Millisecond
	defaultCooldown = 1500 * time.Millisecond
)

// LogxConfig maps the logging section.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// SenderOptions maps the sender section.
func (c *Config) SenderOptions() (sender.Config, error) {
	timeout, err := parseDuration("sender.timeout", c.Sender.Timeout)
	if err != nil {
		return sender.Config{}, err
	}
	return sender.Config{
		Driver:  c.Sender.Driver,
		Command: c.Sender.Command,
		Args:    c.Sender.Args,
		Timeout: timeout,
	}, nil
}

// StorageOptions maps the storage section. A nil section disables storage.
func (c *Config) StorageOptions() (storage.Config, time.Duration, error) {
	if c.Storage == nil {
		return storage.Config{}, 0, nil
	}
	busy, err := parseDuration("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, 0, err
	}
	retention, err := parseDurationOr("storage.retention", c.Storage.Retention, 7*24*time.Hour)
	if err != nil {
		return storage.Config{}, 0, err
	}
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: busy,
	}, retention, nil
}

// EngineConfig validates and maps the automation section into engine types.
func (c *Config) EngineConfig() ([]engine.Action, engine.Settings, error) {
	stagger, err := parseDurationOr("automation.stagger", c.Automation.Stagger, defaultStagger)
	if err != nil {
		return nil, engine.Settings{}, err
	}
	cooldown, err := parseDurationOr("automation.global_cooldown", c.Automation.GlobalCooldown, defaultCooldown)
	if err != nil {
		return nil, engine.Settings{}, err
	}
	set := engine.Settings{
		Stagger:        stagger,
		GlobalCooldown: cooldown,
		OrderObeyed:    c.Automation.OrderObeyed,
	}
	if err := set.Validate(); err != nil {
		return nil, engine.Settings{}, err
	}

	seen := make(map[string]struct{}, len(c.Automation.Actions))
	actions := make([]engine.Action, 0, len(c.Automation.Actions))
	for i, ac := range c.Automation.Actions {
		id := strings.TrimSpace(ac.ID)
		if _, dup := seen[id]; dup {
			return nil, engine.Settings{}, fmt.Errorf("automation.actions[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		interval, err := parseDuration(fmt.Sprintf("automation.actions[%d].interval", i), ac.Interval)
		if err != nil {
			return nil, engine.Settings{}, err
		}
		enabled := true
		if ac.Enabled != nil {
			enabled = *ac.Enabled
		}
		a := engine.Action{
			ID:                     id,
			Interval:               interval,
			Enabled:                enabled,
			Priority:               ac.Priority,
			MaxConsecutiveFailures: ac.MaxConsecutiveFailures,
		}
		if err := a.Validate(); err != nil {
			return nil, engine.Settings{}, fmt.Errorf("automation.actions[%d]: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, set, nil
}

// Validate runs every section mapping and reports the first problem.
func (c *Config) Validate() error {
	if _, err := c.SenderOptions(); err != nil {
		return err
	}
	if _, _, err := c.StorageOptions(); err != nil {
		return err
	}
	if _, _, err := c.EngineConfig(); err != nil {
		return err
	}
	return nil
}
