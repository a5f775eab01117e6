package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taranp/isolab/internal/api"
	"github.com/taranp/isolab/internal/orders"
	"github.com/taranp/isolab/pkg/environment"
	"github.com/taranp/isolab/pkg/errors"
)

// defaultUnit is the base interleaving delay; both roles of an
// anomaly pace their pauses by it so a human can trigger the second
// role inside the first one's window.
const defaultUnit = 3 * time.Second

type Config struct {
	Environment environment.Env `yaml:"Environment"`
	API         api.Config      `yaml:"API"`
	Postgres    orders.Config   `yaml:"Postgres"`
	Scenario    ScenarioConfig  `yaml:"Scenario"`
}

type ScenarioConfig struct {
	Unit time.Duration `yaml:"unit"`
}

func loadConfig() (*Config, error) {
	path, err := filepath.Abs("config.yaml")
	if err != nil {
		return nil, errors.WrapFail(err, "build path to config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFail(err, "read \"config.yaml\"")
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.WrapFail(err, "parse yaml")
	}

	if cfg.Scenario.Unit <= 0 {
		cfg.Scenario.Unit = defaultUnit
	}

	if envFromFlags := getEnvFromFlags(); envFromFlags != nil {
		cfg.Environment = *envFromFlags
	}

	return &cfg, nil
}

func getEnvFromFlags() *environment.Env {
	raw := flag.String("env", "", "environment (dev, prod)")
	flag.Parse()
	if raw == nil {
		return nil
	}

	env := environment.FromString(*raw)
	return &env
}
