package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aretw0/statestack"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/script"
)

// loadScenario reads a scenario and registers its catalog in a fresh registry.
func loadScenario(path string) (*script.Scenario, *registry.Registry, error) {
	s, err := script.LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.NewRegistry()
	if err := s.Register(reg); err != nil {
		return nil, nil, err
	}
	return s, reg, nil
}

// startWorld builds a world for the scenario and attaches its agents.
func startWorld(ctx context.Context, path string, logger *slog.Logger, opts ...statestack.Option) (*script.Scenario, *statestack.World, error) {
	s, reg, err := loadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]statestack.Option{statestack.WithLogger(logger)}, opts...)
	world := statestack.New(reg, opts...)
	if err := s.Attach(ctx, world); err != nil {
		return nil, nil, fmt.Errorf("failed to attach agents: %w", err)
	}
	return s, world, nil
}

func scenarioName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
