package config

const (
	defaultListenAddr             = "127.0.0.1:8787"
	defaultDatabasePath           = "~/.local/share/scenarr/scenarr.db"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultStashDBURL             = "https://stashdb.org/graphql"
	defaultStashDBRequestsPerSec  = 1.0
	defaultStashDBMaxPages        = 5
	defaultStashDBPerPage         = 40
	defaultIndexerRequestsPerSec  = 0.5
	defaultIndexerBurst           = 1
	defaultClientType             = "qbittorrent"
	defaultClientURL              = "http://127.0.0.1:8080"
	defaultClientCategory         = "scenarr"
	defaultTruncatedRatio         = 0.7
	defaultPartialMinLength       = 20
	defaultEditDistanceThreshold  = 0.85
	defaultDateBonus              = 5
	defaultTokenMinTokens         = 2
	defaultTokenThreshold         = 0.7
	defaultTokenGapRatio          = 1.5
	defaultTokenAmbiguityFloor    = 0.3
	defaultTokenMinOverlap        = 0.10
	defaultLearnedThreshold       = 0.75
	defaultLearnedMaxPairs        = 5000
	defaultLearnedTimeoutSeconds  = 60
	defaultPlaceholderMinIndexers = 2
	defaultEntityDelaySeconds     = 5
	defaultMaxConcurrentIndexers  = 4
	defaultPollIntervalSeconds    = 30
	defaultPollTimeoutSeconds     = 20
	defaultRegisterTimeoutSeconds = 10
	defaultRegisterPollMS         = 500
	defaultStallMinSeeders        = 2
	defaultStallMinThroughputKiB  = 10
	defaultRetryMaxAttempts       = 5
	defaultRetryShortBatch        = 5
	defaultDiscoveryMinutes       = 360
	defaultLibraryPath            = "~/library/scenes"
	defaultLibraryOperation       = "hardlink"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddr: defaultListenAddr,
		},
		Database: Database{
			Path: defaultDatabasePath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		StashDB: StashDB{
			URL:               defaultStashDBURL,
			RequestsPerSecond: defaultStashDBRequestsPerSec,
			MaxPages:          defaultStashDBMaxPages,
			PerPage:           defaultStashDBPerPage,
		},
		Client: Client{
			Type:     defaultClientType,
			URL:      defaultClientURL,
			Category: defaultClientCategory,
		},
		Matching: Matching{
			TruncatedRatio:        defaultTruncatedRatio,
			PartialMinLength:      defaultPartialMinLength,
			EditDistanceThreshold: defaultEditDistanceThreshold,
			DateBonus:             defaultDateBonus,
			TokenMinTokens:        defaultTokenMinTokens,
			TokenThreshold:        defaultTokenThreshold,
			TokenGapRatio:         defaultTokenGapRatio,
			TokenAmbiguityFloor:   defaultTokenAmbiguityFloor,
			TokenMinOverlap:       defaultTokenMinOverlap,
		},
		Learned: Learned{
			Threshold:      defaultLearnedThreshold,
			MaxPairs:       defaultLearnedMaxPairs,
			TimeoutSeconds: defaultLearnedTimeoutSeconds,
		},
		Search: Search{
			PlaceholderMinIndexers: defaultPlaceholderMinIndexers,
			EntityDelaySeconds:     defaultEntityDelaySeconds,
			MaxConcurrentIndexers:  defaultMaxConcurrentIndexers,
		},
		Monitor: Monitor{
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			PollTimeoutSeconds:     defaultPollTimeoutSeconds,
			RegisterTimeoutSeconds: defaultRegisterTimeoutSeconds,
			RegisterPollIntervalMS: defaultRegisterPollMS,
			StallMinSeeders:        defaultStallMinSeeders,
			StallMinThroughputKiB:  defaultStallMinThroughputKiB,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			ShortBatch:  defaultRetryShortBatch,
		},
		Discovery: Discovery{
			IntervalMinutes: defaultDiscoveryMinutes,
		},
		Library: Library{
			Path:      defaultLibraryPath,
			Operation: defaultLibraryOperation,
		},
		Quality: Quality{
			Rules: []QualityRule{
				{Quality: "2160p", Source: "any", MinSeeders: 3},
				{Quality: "1080p", Source: "any", MinSeeders: 1},
				{Quality: "720p", Source: "any", MinSeeders: 1},
				{Quality: "any", Source: "any", MinSeeders: 0},
			},
		},
	}
}
