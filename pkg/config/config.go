// Package config loads cascade's TOML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"cascade/pkg/scheduler"
)

// Duration is a time.Duration that decodes from TOML strings like "15m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the full engine configuration.
type Config struct {
	DBPath         string `toml:"db_path"`
	RulesDir       string `toml:"rules_dir"`
	ChatWebhookURL string `toml:"chat_webhook_url"`

	Scheduler Scheduler `toml:"scheduler"`
}

// Scheduler holds the event pump and periodic scan settings.
type Scheduler struct {
	Workers              int      `toml:"workers"`
	QueueSize            int      `toml:"queue_size"`
	OverdueScanInterval  Duration `toml:"overdue_scan_interval"`
	BlockedScanInterval  Duration `toml:"blocked_scan_interval"`
	DeadlineScanInterval Duration `toml:"deadline_scan_interval"`
	ScheduleScanInterval Duration `toml:"schedule_scan_interval"`
	BlockedAfter         Duration `toml:"blocked_after"`
	DeadlineWindow       Duration `toml:"deadline_window"`
	ResignalAfter        Duration `toml:"resignal_after"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DBPath == "" {
		out.DBPath = "cascade.db"
	}
	if out.RulesDir == "" {
		out.RulesDir = "rules"
	}
	return out
}

// Default returns the configuration used when no file is present.
func Default() Config {
	c := Config{}
	return c.withDefaults()
}

// Load reads and parses the TOML file at path. Missing keys fall back to
// defaults; scheduler zero values defer to the scheduler's own defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.withDefaults(), nil
}

// LoadOrDefault loads path if it exists, otherwise returns Default.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// SchedulerConfig converts the file representation to the scheduler's
// config type.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Workers:              c.Scheduler.Workers,
		QueueSize:            c.Scheduler.QueueSize,
		OverdueScanInterval:  time.Duration(c.Scheduler.OverdueScanInterval),
		BlockedScanInterval:  time.Duration(c.Scheduler.BlockedScanInterval),
		DeadlineScanInterval: time.Duration(c.Scheduler.DeadlineScanInterval),
		ScheduleScanInterval: time.Duration(c.Scheduler.ScheduleScanInterval),
		BlockedAfter:         time.Duration(c.Scheduler.BlockedAfter),
		DeadlineWindow:       time.Duration(c.Scheduler.DeadlineWindow),
		ResignalAfter:        time.Duration(c.Scheduler.ResignalAfter),
	}
}
