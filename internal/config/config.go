package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Bridge    BridgeConfig
	Scanner   ScannerConfig
	Discovery DiscoveryConfig
	Debounce  DebounceConfig
	Analysis  AnalysisConfig
	Cache     CacheConfig
	Display   DisplayConfig
}

type BridgeConfig struct {
	GRPCPort    int    `toml:"grpc_port"`
	HTTPPort    int    `toml:"http_port"`
	ControlPort int    `toml:"control_port"`
	Bind        string `toml:"bind_address"`
}

type ScannerConfig struct {
	IntervalSeconds int      `toml:"interval_seconds"`
	ProcessNames    []string `toml:"process_names"`
}

type DiscoveryConfig struct {
	BackoffBaseMS  int    `toml:"backoff_base_ms"`
	BackoffCapMS   int    `toml:"backoff_cap_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	TitleSignature string `toml:"title_signature"`
}

type DebounceConfig struct {
	FocusMS   int `toml:"focus_ms"`
	SaveMS    int `toml:"save_ms"`
	ContentMS int `toml:"content_ms"`
}

type AnalysisConfig struct {
	Kinds          []string `toml:"kinds"`
	ParseTimeoutMS int      `toml:"parse_timeout_ms"`
	Analyzers      map[string]bool
}

type CacheConfig struct {
	DBPath               string `toml:"db_path"`
	RetentionDays        int    `toml:"retention_days"`
	SummaryRetentionDays int    `toml:"summary_retention_days"`
	RecencySize          int    `toml:"recency_size"`
}

type DisplayConfig struct {
	RefreshRateMS      int    `toml:"refresh_rate_ms"`
	ActivityBufferSize int    `toml:"activity_buffer_size"`
	DateFormat         string `toml:"date_format"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sqlsidecar", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromString(string(data))
}

type tomlFile struct {
	Bridge    *BridgeConfig    `toml:"bridge"`
	Scanner   *ScannerConfig   `toml:"scanner"`
	Discovery *DiscoveryConfig `toml:"discovery"`
	Debounce  *DebounceConfig  `toml:"debounce"`
	Analysis  *AnalysisConfig  `toml:"analysis"`
	Cache     *CacheConfig     `toml:"cache"`
	Display   *DisplayConfig   `toml:"display"`
}

func LoadFromString(data string) (*LoadResult, error) {
	cfg := DefaultConfig()
	result := &LoadResult{Config: cfg}

	if data == "" {
		return result, nil
	}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	knownTopLevel := map[string]bool{
		"bridge":    true,
		"scanner":   true,
		"discovery": true,
		"debounce":  true,
		"analysis":  true,
		"cache":     true,
		"display":   true,
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &tf, raw)
	mergeAnalyzersFromRaw(&result.Config, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Bridge != nil {
		if section, ok := rawSection(raw, "bridge"); ok {
			if _, exists := section["grpc_port"]; exists {
				cfg.Bridge.GRPCPort = tf.Bridge.GRPCPort
			}
			if _, exists := section["http_port"]; exists {
				cfg.Bridge.HTTPPort = tf.Bridge.HTTPPort
			}
			if _, exists := section["control_port"]; exists {
				cfg.Bridge.ControlPort = tf.Bridge.ControlPort
			}
			if _, exists := section["bind_address"]; exists {
				cfg.Bridge.Bind = tf.Bridge.Bind
			}
		}
	}
	if tf.Scanner != nil {
		if section, ok := rawSection(raw, "scanner"); ok {
			if _, exists := section["interval_seconds"]; exists {
				cfg.Scanner.IntervalSeconds = tf.Scanner.IntervalSeconds
			}
			if _, exists := section["process_names"]; exists {
				cfg.Scanner.ProcessNames = tf.Scanner.ProcessNames
			}
		}
	}
	if tf.Discovery != nil {
		if section, ok := rawSection(raw, "discovery"); ok {
			if _, exists := section["backoff_base_ms"]; exists {
				cfg.Discovery.BackoffBaseMS = tf.Discovery.BackoffBaseMS
			}
			if _, exists := section["backoff_cap_ms"]; exists {
				cfg.Discovery.BackoffCapMS = tf.Discovery.BackoffCapMS
			}
			if _, exists := section["max_attempts"]; exists {
				cfg.Discovery.MaxAttempts = tf.Discovery.MaxAttempts
			}
			if _, exists := section["title_signature"]; exists {
				cfg.Discovery.TitleSignature = tf.Discovery.TitleSignature
			}
		}
	}
	if tf.Debounce != nil {
		if section, ok := rawSection(raw, "debounce"); ok {
			if _, exists := section["focus_ms"]; exists {
				cfg.Debounce.FocusMS = tf.Debounce.FocusMS
			}
			if _, exists := section["save_ms"]; exists {
				cfg.Debounce.SaveMS = tf.Debounce.SaveMS
			}
			if _, exists := section["content_ms"]; exists {
				cfg.Debounce.ContentMS = tf.Debounce.ContentMS
			}
		}
	}
	if tf.Analysis != nil {
		if section, ok := rawSection(raw, "analysis"); ok {
			if _, exists := section["kinds"]; exists {
				cfg.Analysis.Kinds = tf.Analysis.Kinds
			}
			if _, exists := section["parse_timeout_ms"]; exists {
				cfg.Analysis.ParseTimeoutMS = tf.Analysis.ParseTimeoutMS
			}
		}
	}
	if tf.Cache != nil {
		if section, ok := rawSection(raw, "cache"); ok {
			if _, exists := section["db_path"]; exists {
				cfg.Cache.DBPath = tf.Cache.DBPath
			}
			if _, exists := section["retention_days"]; exists {
				cfg.Cache.RetentionDays = tf.Cache.RetentionDays
			}
			if _, exists := section["summary_retention_days"]; exists {
				cfg.Cache.SummaryRetentionDays = tf.Cache.SummaryRetentionDays
			}
			if _, exists := section["recency_size"]; exists {
				cfg.Cache.RecencySize = tf.Cache.RecencySize
			}
		}
	}
	if tf.Display != nil {
		if section, ok := rawSection(raw, "display"); ok {
			if _, exists := section["refresh_rate_ms"]; exists {
				cfg.Display.RefreshRateMS = tf.Display.RefreshRateMS
			}
			if _, exists := section["activity_buffer_size"]; exists {
				cfg.Display.ActivityBufferSize = tf.Display.ActivityBufferSize
			}
			if _, exists := section["date_format"]; exists {
				cfg.Display.DateFormat = tf.Display.DateFormat
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// mergeAnalyzersFromRaw reads [analysis.analyzers], a free-form name -> bool
// table. Names the build does not ship are kept anyway; the dispatcher
// ignores them, so a config written for a newer build still loads.
func mergeAnalyzersFromRaw(cfg *Config, raw map[string]any) {
	section, ok := rawSection(raw, "analysis")
	if !ok {
		return
	}
	analyzersRaw, ok := section["analyzers"]
	if !ok {
		return
	}
	analyzersMap, ok := analyzersRaw.(map[string]any)
	if !ok {
		return
	}

	for name, val := range analyzersMap {
		enabled, ok := val.(bool)
		if !ok {
			continue
		}
		if cfg.Analysis.Analyzers == nil {
			cfg.Analysis.Analyzers = make(map[string]bool)
		}
		cfg.Analysis.Analyzers[name] = enabled
	}
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Bridge.GRPCPort < 1 || cfg.Bridge.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("grpc_port must be 1-65535, got %d", cfg.Bridge.GRPCPort))
	}
	if cfg.Bridge.HTTPPort < 1 || cfg.Bridge.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port must be 1-65535, got %d", cfg.Bridge.HTTPPort))
	}
	if cfg.Bridge.ControlPort < 1 || cfg.Bridge.ControlPort > 65535 {
		errs = append(errs, fmt.Sprintf("control_port must be 1-65535, got %d", cfg.Bridge.ControlPort))
	}

	if cfg.Scanner.IntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("scanner interval_seconds must be positive, got %d", cfg.Scanner.IntervalSeconds))
	}

	if cfg.Discovery.BackoffBaseMS < 1 {
		errs = append(errs, fmt.Sprintf("discovery backoff_base_ms must be positive, got %d", cfg.Discovery.BackoffBaseMS))
	}
	if cfg.Discovery.BackoffCapMS < cfg.Discovery.BackoffBaseMS {
		errs = append(errs, fmt.Sprintf("discovery backoff_cap_ms must be at least backoff_base_ms, got %d", cfg.Discovery.BackoffCapMS))
	}
	if cfg.Discovery.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("discovery max_attempts must be positive, got %d", cfg.Discovery.MaxAttempts))
	}

	if cfg.Debounce.FocusMS < 1 {
		errs = append(errs, fmt.Sprintf("debounce focus_ms must be positive, got %d", cfg.Debounce.FocusMS))
	}
	if cfg.Debounce.SaveMS < 1 {
		errs = append(errs, fmt.Sprintf("debounce save_ms must be positive, got %d", cfg.Debounce.SaveMS))
	}
	if cfg.Debounce.ContentMS < 1 {
		errs = append(errs, fmt.Sprintf("debounce content_ms must be positive, got %d", cfg.Debounce.ContentMS))
	}

	if cfg.Analysis.ParseTimeoutMS < 1 {
		errs = append(errs, fmt.Sprintf("analysis parse_timeout_ms must be positive, got %d", cfg.Analysis.ParseTimeoutMS))
	}
	for _, kind := range cfg.Analysis.Kinds {
		if strings.TrimSpace(kind) == "" {
			errs = append(errs, "analysis kinds must not contain empty entries")
			break
		}
	}

	if cfg.Cache.RetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("cache retention_days must be positive, got %d", cfg.Cache.RetentionDays))
	}
	if cfg.Cache.SummaryRetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("cache summary_retention_days must be positive, got %d", cfg.Cache.SummaryRetentionDays))
	}
	if cfg.Cache.RecencySize < 1 {
		errs = append(errs, fmt.Sprintf("cache recency_size must be positive, got %d", cfg.Cache.RecencySize))
	}

	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}
	if cfg.Display.ActivityBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("activity_buffer_size must be positive, got %d", cfg.Display.ActivityBufferSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
