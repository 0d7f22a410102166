package main

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/config"
	"github.com/scenarr/scenarr/internal/logging"
	"github.com/scenarr/scenarr/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (zerolog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return zerolog.Nop(), err
	}
	return logging.New(cfg.Logging)
}

// withApp builds the full component graph for a one-shot command.
func (c *commandContext) withApp(notifier queue.Notifier, fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.logger()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, logger, notifier)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
