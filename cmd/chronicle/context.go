package main

import (
	"log/slog"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/pipeline"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// commandContext lazily loads configuration and shares it across commands.
type commandContext struct {
	configFlag *string
	cfg        *config.Config
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

// withCoordinator opens the store, builds a coordinator over the default
// stage graph, runs fn, and closes the store.
func (c *commandContext) withCoordinator(fn func(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	coord := pipeline.NewCoordinator(st, stages.Default(), logger)
	return fn(cfg, st, coord)
}
