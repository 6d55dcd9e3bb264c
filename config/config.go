// Package config loads the engine configuration from YAML or JSON files with
// optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mobiis/cargodispatch/core/auditor"
	"github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/core/pipeline"
	"github.com/mobiis/cargodispatch/core/quota"
	"github.com/mobiis/cargodispatch/core/tracker"
	"github.com/mobiis/cargodispatch/infra/mqtt"
)

type Config struct {
	MQTT       mqtt.Config              `json:"mqtt"`
	Dispatch   pipeline.Config          `json:"dispatch"`
	Tracker    tracker.Config           `json:"tracker"`
	Supervisor tracker.SupervisorConfig `json:"supervisor"`
	Auditor    auditor.Config           `json:"auditor"`
	Quota      quota.Config             `json:"quota"`
	Metrics    metrics.Config           `json:"metrics"`
	Logging    LoggingConfig            `json:"logging"`
	Fleet      FleetConfig              `json:"fleet"`
	API        APIConfig                `json:"api"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("CD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.Tracker.SetDefaults()
	cfg.Supervisor.SetDefaults()
	cfg.Auditor.SetDefaults()
	cfg.Quota.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
