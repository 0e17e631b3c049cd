package config

// DefaultConfig returns the stock configuration. Every field is valid on its
// own; a missing config file means running with exactly these values.
func DefaultConfig() Config {
	return Config{
		Bridge: BridgeConfig{
			GRPCPort:    4317,
			HTTPPort:    4318,
			ControlPort: 4319,
			Bind:        "127.0.0.1",
		},
		Scanner: ScannerConfig{
			IntervalSeconds: 5,
			ProcessNames:    []string{"sqlstudio", "sqlstudio-bin"},
		},
		Discovery: DiscoveryConfig{
			BackoffBaseMS:  250,
			BackoffCapMS:   3000,
			MaxAttempts:    10,
			TitleSignature: "SQL Studio",
		},
		Debounce: DebounceConfig{
			FocusMS:   150,
			SaveMS:    300,
			ContentMS: 1000,
		},
		Analysis: AnalysisConfig{
			Kinds:          []string{"sql"},
			ParseTimeoutMS: 2000,
		},
		Cache: CacheConfig{
			DBPath:               "~/.config/sqlsidecar/cache.db",
			RetentionDays:        30,
			SummaryRetentionDays: 365,
			RecencySize:          256,
		},
		Display: DisplayConfig{
			RefreshRateMS:      250,
			ActivityBufferSize: 500,
			DateFormat:         "2006-01-02 15:04",
		},
	}
}
