package config

import (
	"fmt"
)

// LoggingConfig defines settings for decision log storage.
type LoggingConfig struct {
	// Backend selects the log store type: "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
}

// FleetConfig defines how the in-memory asset index is populated.
type FleetConfig struct {
	// SeedFile is a JSON array of fleet assets loaded into the index at
	// startup. Empty starts with an empty index fed at runtime.
	SeedFile string `json:"seed_file"`
}

// APIConfig defines the HTTP API settings.
type APIConfig struct {
	// Addr is the listen address of the HTTP API. Empty disables it.
	Addr string `json:"addr"`
	// Token protects the decision endpoints; empty allows anonymous access.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "decisions.log"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if c.Backend != "jsonl" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
