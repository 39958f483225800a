package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"execbox/internal/sandbox/compiler"
	"execbox/internal/sandbox/engine"
	"execbox/internal/sandbox/profile"
	"execbox/internal/sandbox/submission"
	"execbox/internal/server"
	"execbox/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr      = ":8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 60 * time.Second
	defaultIdleTimeout   = 60 * time.Second
	defaultMaxInFlight   = 4
	defaultAdmissionWait = 5 * time.Second
	defaultLogLevel      = "warn"
)

// PipelineConfig holds request-level settings.
type PipelineConfig struct {
	ScratchDir         string        `yaml:"scratchDir"`
	MaxSubmissionBytes int           `yaml:"maxSubmissionBytes"`
	MaxInFlight        int           `yaml:"maxInFlight"`
	AdmissionWait      time.Duration `yaml:"admissionWait"`
}

// SandboxConfig holds compiler and engine settings.
type SandboxConfig struct {
	Engine   engine.Config   `yaml:"engine"`
	Compiler compiler.Config `yaml:"compiler"`
}

// AppConfig holds the execbox configuration.
type AppConfig struct {
	Logger   logger.Config    `yaml:"logger"`
	Pipeline PipelineConfig   `yaml:"pipeline"`
	Sandbox  SandboxConfig    `yaml:"sandbox"`
	Server   server.Config    `yaml:"server"`
	Profiles []profile.Config `yaml:"profiles"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path, or uses the built-in defaults when path is empty.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = defaultLogLevel
	}
	if cfg.Pipeline.ScratchDir == "" {
		cfg.Pipeline.ScratchDir = filepath.Join(os.TempDir(), "execbox")
	}
	if cfg.Pipeline.MaxSubmissionBytes == 0 {
		cfg.Pipeline.MaxSubmissionBytes = submission.DefaultLimit
	}
	if cfg.Pipeline.MaxInFlight == 0 {
		cfg.Pipeline.MaxInFlight = defaultMaxInFlight
	}
	if cfg.Pipeline.AdmissionWait == 0 {
		cfg.Pipeline.AdmissionWait = defaultAdmissionWait
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = profile.DefaultConfigs()
	}
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Pipeline.MaxSubmissionBytes < 0 {
		return fmt.Errorf("pipeline.maxSubmissionBytes must not be negative")
	}
	if cfg.Pipeline.MaxInFlight < 0 {
		return fmt.Errorf("pipeline.maxInFlight must not be negative")
	}
	if cfg.Sandbox.Engine.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.engine.maxOutputBytes must not be negative")
	}
	if cfg.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("server.rateLimit.requestsPerSecond must not be negative")
	}
	for i, p := range cfg.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profiles[%d].name is required", i)
		}
	}
	return nil
}
