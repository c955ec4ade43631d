package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval > c.Workflow.MaxWait {
		return fmt.Errorf("workflow.poll_interval (%d) must not exceed workflow.max_wait (%d)", c.Workflow.PollInterval, c.Workflow.MaxWait)
	}
	if c.Workflow.MaxRetries < 0 {
		return errors.New("workflow.max_retries must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
