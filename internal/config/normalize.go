package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.applyEnvOverrides()
	c.normalizeLogging()
	c.normalizeClient()
	c.normalizeIndexers()
	c.normalizeQuality()
	c.StashDB.URL = strings.TrimSpace(c.StashDB.URL)
	c.Learned.URL = strings.TrimRight(strings.TrimSpace(c.Learned.URL), "/")
	c.Server.ListenAddr = strings.TrimSpace(c.Server.ListenAddr)
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	if c.Library.Path, err = expandPath(c.Library.Path); err != nil {
		return fmt.Errorf("library.path: %w", err)
	}
	if c.Client.SavePath != "" {
		if c.Client.SavePath, err = expandPath(c.Client.SavePath); err != nil {
			return fmt.Errorf("client.save_path: %w", err)
		}
	}
	return nil
}

// applyEnvOverrides lets secrets stay out of the TOML file.
func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"SCENARR_API_KEY", &c.Server.APIKey},
		{"SCENARR_STASHDB_API_KEY", &c.StashDB.APIKey},
		{"SCENARR_CLIENT_URL", &c.Client.URL},
		{"SCENARR_CLIENT_USERNAME", &c.Client.Username},
		{"SCENARR_CLIENT_PASSWORD", &c.Client.Password},
		{"SCENARR_LEARNED_URL", &c.Learned.URL},
	}
	for _, o := range overrides {
		if value, ok := os.LookupEnv(o.key); ok && strings.TrimSpace(value) != "" {
			*o.target = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeClient() {
	c.Client.Type = strings.ToLower(strings.TrimSpace(c.Client.Type))
	c.Client.URL = strings.TrimRight(strings.TrimSpace(c.Client.URL), "/")
	c.Client.Category = strings.TrimSpace(c.Client.Category)
	c.Library.Operation = strings.ToLower(strings.TrimSpace(c.Library.Operation))
	if c.Library.Operation == "" {
		c.Library.Operation = defaultLibraryOperation
	}
}

func (c *Config) normalizeIndexers() {
	for i := range c.Indexers {
		idx := &c.Indexers[i]
		idx.Name = strings.TrimSpace(idx.Name)
		idx.URL = strings.TrimSpace(idx.URL)
		if idx.RequestsPerSecond <= 0 {
			idx.RequestsPerSecond = defaultIndexerRequestsPerSec
		}
		if idx.Burst <= 0 {
			idx.Burst = defaultIndexerBurst
		}
	}
}

func (c *Config) normalizeQuality() {
	for i := range c.Quality.Rules {
		rule := &c.Quality.Rules[i]
		rule.Quality = strings.ToLower(strings.TrimSpace(rule.Quality))
		rule.Source = strings.ToLower(strings.TrimSpace(rule.Source))
		if rule.Quality == "" {
			rule.Quality = "any"
		}
		if rule.Source == "" {
			rule.Source = "any"
		}
	}
}
