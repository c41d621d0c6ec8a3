package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/vearutop/swcache"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BUDGETSW_"

// config is loaded from BUDGETSW_* environment variables, command flags take precedence.
type config struct {
	Listen   string `env:"LISTEN" envDefault:"localhost:8080"`
	Upstream string `env:"UPSTREAM"`

	// Store is "memory" or a path to SQLite database file.
	Store string `env:"STORE" envDefault:"memory"`

	// Snapshot is a gob file to restore memory store from and dump it to on shutdown.
	Snapshot string `env:"SNAPSHOT"`

	VersionFile      string `env:"VERSION_FILE"`
	ManualActivation bool   `env:"MANUAL_ACTIVATION"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func loadConfig() (config, error) {
	var cfg config

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// loadVersion reads YAML version file over the default budget calculator version.
func loadVersion(path string) (swcache.Version, error) {
	v := swcache.DefaultVersion()

	if path == "" {
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("read version file: %w", err)
	}

	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode version file %s: %w", path, err)
	}

	return v.Prepare()
}
