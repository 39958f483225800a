package main

import (
	"context"
	"os"
	"path/filepath"

	"execbox/internal/sandbox"
	"execbox/internal/sandbox/admission"
	"execbox/internal/sandbox/compiler"
	"execbox/internal/sandbox/engine"
	"execbox/internal/sandbox/observer"
	"execbox/internal/sandbox/profile"
	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/workspace"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const helperName = "sandbox-init"

// app is the wired pipeline shared by every command.
type app struct {
	cfg       *AppConfig
	profiles  *profile.LocalRepository
	pipeline  *sandbox.Pipeline
	workspace *workspace.Workspace
	registry  *prometheus.Registry
}

// newApp loads config, initializes logging, probes isolation and builds the
// pipeline. It fails before any input is accepted.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.InvalidParams)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return nil, appErr.Wrap(err, appErr.InvalidParams)
	}

	repo, err := profile.NewLocalRepository(cfg.Profiles)
	if err != nil {
		return nil, err
	}
	if err := probe(ctx, repo); err != nil {
		return nil, err
	}

	engineCfg := cfg.Sandbox.Engine
	if engineCfg.HelperPath == "" {
		engineCfg.HelperPath = siblingHelper()
	}
	eng, err := engine.NewEngine(engineCfg)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.New(cfg.Pipeline.ScratchDir)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.ArtifactWriteFailed)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipeline, err := sandbox.NewPipeline(sandbox.Config{
		Workspace:          ws,
		Profiles:           repo,
		Compiler:           compiler.New(cfg.Sandbox.Compiler),
		Engine:             eng,
		Limiter:            admission.NewTokenLimiter(cfg.Pipeline.MaxInFlight, cfg.Pipeline.AdmissionWait),
		Metrics:            observer.NewPromRecorder(registry),
		MaxSubmissionBytes: cfg.Pipeline.MaxSubmissionBytes,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "execbox ready",
		zap.Strings("profiles", repo.Names()),
		zap.String("scratch_dir", ws.Dir()),
	)
	return &app{cfg: cfg, profiles: repo, pipeline: pipeline, workspace: ws, registry: registry}, nil
}

// probe checks every profile's policy against the kernel and its compiler
// against PATH.
func probe(ctx context.Context, repo *profile.LocalRepository) error {
	for _, name := range repo.Names() {
		prof, err := repo.Get(ctx, name)
		if err != nil {
			return err
		}
		if err := security.Probe(prof.Policy); err != nil {
			logger.Error(ctx, "isolation probe failed", zap.String("profile", name), zap.Error(err))
			return err
		}
		if err := compiler.Probe(prof.CompileCommand); err != nil {
			logger.Error(ctx, "compiler probe failed", zap.String("profile", name), zap.Error(err))
			return err
		}
	}
	return nil
}

// siblingHelper prefers a helper installed next to this executable.
func siblingHelper() string {
	exe, err := os.Executable()
	if err != nil {
		return helperName
	}
	candidate := filepath.Join(filepath.Dir(exe), helperName)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return helperName
}
