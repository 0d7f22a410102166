package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Server holds the HTTP API settings.
type Server struct {
	ListenAddr string `toml:"listen_addr"`
	APIKey     string `toml:"api_key"`
}

// Database holds the sqlite location.
type Database struct {
	Path string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// StashDB contains configuration for the scene metadata provider.
type StashDB struct {
	URL               string  `toml:"url"`
	APIKey            string  `toml:"api_key"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxPages          int     `toml:"max_pages"`
	PerPage           int     `toml:"per_page"`
}

// Indexer describes a single Torznab endpoint (Prowlarr/Jackett proxy or native).
type Indexer struct {
	Name              string  `toml:"name"`
	URL               string  `toml:"url"`
	APIKey            string  `toml:"api_key"`
	Categories        []int   `toml:"categories"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	Enabled           bool    `toml:"enabled"`
}

// Client contains configuration for the torrent client.
type Client struct {
	Type           string `toml:"type"`
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Category       string `toml:"category"`
	SavePath       string `toml:"save_path"`
	MaxDownloadKiB int64  `toml:"max_download_kib"`
	MaxUploadKiB   int64  `toml:"max_upload_kib"`
}

// Matching contains thresholds for the deterministic matchers.
type Matching struct {
	TruncatedRatio        float64 `toml:"truncated_ratio"`
	PartialMinLength      int     `toml:"partial_min_length"`
	EditDistanceThreshold float64 `toml:"edit_distance_threshold"`
	DateBonus             float64 `toml:"date_bonus"`

	UseTokenSet bool `toml:"use_token_set"`
	// Token-set decision rule.
	TokenMinTokens      int     `toml:"token_min_tokens"`
	TokenThreshold      float64 `toml:"token_threshold"`
	TokenGapRatio       float64 `toml:"token_gap_ratio"`
	TokenAmbiguityFloor float64 `toml:"token_ambiguity_floor"`
	TokenMinOverlap     float64 `toml:"token_min_overlap"`
}

// Learned contains configuration for the pairwise relevance model.
type Learned struct {
	Enabled        bool    `toml:"enabled"`
	URL            string  `toml:"url"`
	Model          string  `toml:"model"`
	Threshold      float64 `toml:"threshold"`
	MaxPairs       int     `toml:"max_pairs"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Search contains orchestrator behaviour switches.
type Search struct {
	IncludeAliases         bool `toml:"include_aliases"`
	AcceptPlaceholders     bool `toml:"accept_placeholders"`
	PlaceholderMinIndexers int  `toml:"placeholder_min_indexers"`
	EntityDelaySeconds     int  `toml:"entity_delay_seconds"`
	MaxConcurrentIndexers  int  `toml:"max_concurrent_indexers"`
}

// Monitor contains the polling and stall settings.
type Monitor struct {
	PollIntervalSeconds    int   `toml:"poll_interval_seconds"`
	PollTimeoutSeconds     int   `toml:"poll_timeout_seconds"`
	RegisterTimeoutSeconds int   `toml:"register_timeout_seconds"`
	RegisterPollIntervalMS int   `toml:"register_poll_interval_ms"`
	StallMinSeeders        int   `toml:"stall_min_seeders"`
	StallMinThroughputKiB  int64 `toml:"stall_min_throughput_kib"`
}

// Retry contains the submission retry policy.
type Retry struct {
	MaxAttempts int `toml:"max_attempts"`
	ShortBatch  int `toml:"short_batch"`
}

// Discovery contains the subscription discovery cadence.
type Discovery struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

// Library contains the completion handoff destination.
type Library struct {
	Path      string `toml:"path"`
	Operation string `toml:"operation"`
}

// QualityRule is one ordered acceptance rule of the default profile.
type QualityRule struct {
	Quality    string `toml:"quality"`
	Source     string `toml:"source"`
	MinSeeders int    `toml:"min_seeders"`
	MaxSizeMiB int64  `toml:"max_size_mib"`
}

// Quality holds the default quality profile.
type Quality struct {
	Rules []QualityRule `toml:"rules"`
}

// Config encapsulates all configuration values for scenarr.
//
// Configuration sections by subsystem:
//   - Server/Database/Logging: process plumbing
//   - StashDB: scene metadata provider
//   - Indexers: Torznab search endpoints
//   - Client: torrent client connection and global limits
//   - Matching/Learned: title matching thresholds and the optional relevance model
//   - Search: orchestrator switches and indexer politeness
//   - Monitor/Retry/Discovery: queue lifecycle cadences
//   - Library: completion handoff target
//   - Quality: default quality profile
type Config struct {
	Server    Server    `toml:"server"`
	Database  Database  `toml:"database"`
	Logging   Logging   `toml:"logging"`
	StashDB   StashDB   `toml:"stashdb"`
	Indexers  []Indexer `toml:"indexers"`
	Client    Client    `toml:"client"`
	Matching  Matching  `toml:"matching"`
	Learned   Learned   `toml:"learned"`
	Search    Search    `toml:"search"`
	Monitor   Monitor   `toml:"monitor"`
	Retry     Retry     `toml:"retry"`
	Discovery Discovery `toml:"discovery"`
	Library   Library   `toml:"library"`
	Quality   Quality   `toml:"quality"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scenarr/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory is read first so SCENARR_* overrides can live next to it.
func Load(path string) (*Config, string, bool, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := decodeInto(&cfg, toml.NewDecoder(file)); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Parse decodes raw TOML on top of the defaults and normalizes the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decodeInto(&cfg, toml.NewDecoder(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeInto overlays TOML on cfg. Quality rules in the file replace the
// default profile instead of extending it.
func decodeInto(cfg *Config, decoder *toml.Decoder) error {
	defaults := cfg.Quality.Rules
	cfg.Quality.Rules = nil
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Quality.Rules) == 0 {
		cfg.Quality.Rules = defaults
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scenarr.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the database and library directories.
func (c *Config) EnsureDirectories() error {
	if dir := filepath.Dir(c.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Library.Path) != "" {
		// Library storage may be offline; the handoff reports that per item.
		_ = os.MkdirAll(c.Library.Path, 0o755)
	}
	return nil
}

// LockPath is the daemon lock file that sits next to the database.
func (c *Config) LockPath() string {
	return c.Database.Path + ".lock"
}

// PollInterval returns the monitor cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalSeconds) * time.Second
}

// PollTimeout bounds a single monitor iteration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Monitor.PollTimeoutSeconds) * time.Second
}

// RegisterTimeout bounds the wait for a just-submitted release to show up in the client.
func (c *Config) RegisterTimeout() time.Duration {
	return time.Duration(c.Monitor.RegisterTimeoutSeconds) * time.Second
}

// RegisterPollInterval is the poll step used while waiting for registration.
func (c *Config) RegisterPollInterval() time.Duration {
	return time.Duration(c.Monitor.RegisterPollIntervalMS) * time.Millisecond
}

// DiscoveryInterval returns the discovery job cadence.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.Discovery.IntervalMinutes) * time.Minute
}

// EntityDelay is the minimum spacing between per-entity external queries.
func (c *Config) EntityDelay() time.Duration {
	return time.Duration(c.Search.EntityDelaySeconds) * time.Second
}

// LearnedTimeout bounds a single inference request.
func (c *Config) LearnedTimeout() time.Duration {
	return time.Duration(c.Learned.TimeoutSeconds) * time.Second
}

// EnabledIndexers returns the indexers with enabled = true.
func (c *Config) EnabledIndexers() []Indexer {
	out := make([]Indexer, 0, len(c.Indexers))
	for _, idx := range c.Indexers {
		if idx.Enabled {
			out = append(out, idx)
		}
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
