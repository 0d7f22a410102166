package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateIndexers(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateLearned(); err != nil {
		return err
	}
	if err := c.validateLifecycle(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) validateClient() error {
	switch c.Client.Type {
	case "qbittorrent", "deluge":
	default:
		return fmt.Errorf("client.type must be qbittorrent or deluge, got %q", c.Client.Type)
	}
	if c.Client.URL == "" {
		return errors.New("client.url must be set")
	}
	if c.Client.MaxDownloadKiB < 0 || c.Client.MaxUploadKiB < 0 {
		return errors.New("client throughput limits must not be negative")
	}
	return nil
}

func (c *Config) validateIndexers() error {
	seen := make(map[string]bool, len(c.Indexers))
	for i, idx := range c.Indexers {
		if idx.Name == "" {
			return fmt.Errorf("indexers[%d].name must be set", i)
		}
		if idx.URL == "" {
			return fmt.Errorf("indexers[%d].url must be set", i)
		}
		key := strings.ToLower(idx.Name)
		if seen[key] {
			return fmt.Errorf("indexer name %q is used more than once", idx.Name)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	if m.TruncatedRatio <= 0 || m.TruncatedRatio > 1 {
		return errors.New("matching.truncated_ratio must be in (0, 1]")
	}
	if m.EditDistanceThreshold <= 0 || m.EditDistanceThreshold > 1 {
		return errors.New("matching.edit_distance_threshold must be in (0, 1]")
	}
	if m.PartialMinLength < 1 {
		return errors.New("matching.partial_min_length must be positive")
	}
	if m.DateBonus < 0 {
		return errors.New("matching.date_bonus must not be negative")
	}
	if m.TokenMinTokens < 1 {
		return errors.New("matching.token_min_tokens must be positive")
	}
	if m.TokenThreshold <= 0 || m.TokenThreshold > 1 {
		return errors.New("matching.token_threshold must be in (0, 1]")
	}
	if m.TokenGapRatio < 1 {
		return errors.New("matching.token_gap_ratio must be at least 1")
	}
	if m.TokenAmbiguityFloor < 0 || m.TokenAmbiguityFloor >= 1 {
		return errors.New("matching.token_ambiguity_floor must be in [0, 1)")
	}
	if m.TokenMinOverlap < 0 || m.TokenMinOverlap > 1 {
		return errors.New("matching.token_min_overlap must be in [0, 1]")
	}
	return nil
}

func (c *Config) validateLearned() error {
	if !c.Learned.Enabled {
		return nil
	}
	if c.Learned.URL == "" {
		return errors.New("learned.url must be set when learned.enabled is true")
	}
	if c.Learned.Threshold <= 0 || c.Learned.Threshold > 1 {
		return errors.New("learned.threshold must be in (0, 1]")
	}
	if c.Learned.MaxPairs < 1 {
		return errors.New("learned.max_pairs must be positive")
	}
	return nil
}

func (c *Config) validateLifecycle() error {
	if c.Monitor.PollIntervalSeconds < 1 {
		return errors.New("monitor.poll_interval_seconds must be positive")
	}
	if c.Monitor.PollTimeoutSeconds < 1 {
		return errors.New("monitor.poll_timeout_seconds must be positive")
	}
	if c.Monitor.RegisterTimeoutSeconds < 1 {
		return errors.New("monitor.register_timeout_seconds must be positive")
	}
	if c.Monitor.RegisterPollIntervalMS < 50 {
		return errors.New("monitor.register_poll_interval_ms must be at least 50")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.ShortBatch < 0 {
		return errors.New("retry.short_batch must not be negative")
	}
	if c.Discovery.IntervalMinutes < 1 {
		return errors.New("discovery.interval_minutes must be positive")
	}
	if c.Search.PlaceholderMinIndexers < 1 {
		return errors.New("search.placeholder_min_indexers must be positive")
	}
	if c.Search.MaxConcurrentIndexers < 1 {
		return errors.New("search.max_concurrent_indexers must be positive")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	switch c.Library.Operation {
	case "hardlink", "copy", "move":
	default:
		return fmt.Errorf("library.operation must be hardlink, copy or move, got %q", c.Library.Operation)
	}
	return nil
}

func (c *Config) validateQuality() error {
	if len(c.Quality.Rules) == 0 {
		return errors.New("quality.rules must contain at least one rule")
	}
	for i, rule := range c.Quality.Rules {
		if rule.MinSeeders < 0 {
			return fmt.Errorf("quality.rules[%d].min_seeders must not be negative", i)
		}
		if rule.MaxSizeMiB < 0 {
			return fmt.Errorf("quality.rules[%d].max_size_mib must not be negative", i)
		}
	}
	return nil
}
