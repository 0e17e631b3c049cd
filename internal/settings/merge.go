package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// defaultConfigPath returns the default location of the shim's config file
// inside the SQL editor's profile directory.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sqlstudio", "shim.json")
}

// Merge reads the shim's config file (or the path specified in opts),
// merges the required sidecar keys into the "sidecar" block, and writes
// the file back atomically (temp file + rename). Keys outside the
// "sidecar" block and unknown keys inside it are preserved, as is the
// file's indentation.
//
// Behaviour:
//   - File not found: creates a new file with the required keys.
//   - Malformed JSON: creates a .bak backup and returns an error.
//   - Permission denied: returns a clear error.
//   - All keys already correct: returns MergeAlreadyConfigured.
//   - Interactive=false with differing values: warns but does not overwrite.
//   - FixPortsOnly=true: only updates the endpoint keys.
func Merge(opts MergeOptions) MergeOutput {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	required := RequiredShimKeys(opts.Bind, opts.GRPCPort, opts.HTTPPort, opts.ControlPort)

	if opts.FixPortsOnly {
		limited := make(map[string]string, len(endpointKeys))
		for _, k := range endpointKeys {
			limited[k] = required[k]
		}
		required = limited
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return createNewConfigFile(configPath, required)
		}
		if errors.Is(err, fs.ErrPermission) {
			return MergeOutput{
				Result: MergeError,
				Err:    fmt.Errorf("permission denied reading %s", configPath),
			}
		}
		return MergeOutput{
			Result: MergeError,
			Err:    fmt.Errorf("reading shim config: %w", err),
		}
	}

	// Detect indentation before parsing.
	indent := detectIndent(data)

	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		// Malformed JSON: create backup rather than destroying whatever
		// the editor wrote there.
		bakPath := configPath + ".bak"
		if bakErr := os.WriteFile(bakPath, data, 0644); bakErr != nil {
			return MergeOutput{
				Result:   MergeError,
				Err:      fmt.Errorf("shim config contains invalid JSON and backup failed: %w", bakErr),
				Messages: []string{fmt.Sprintf("Failed to create backup at %s", bakPath)},
			}
		}
		return MergeOutput{
			Result:   MergeError,
			Err:      fmt.Errorf("shim config contains invalid JSON (backup saved to %s)", bakPath),
			Messages: []string{fmt.Sprintf("Backup saved to %s", bakPath)},
		}
	}

	// Ensure the "sidecar" block exists.
	blockRaw, ok := cfg["sidecar"]
	var block map[string]any
	if ok {
		block, ok = blockRaw.(map[string]any)
		if !ok {
			block = make(map[string]any)
			cfg["sidecar"] = block
		}
	} else {
		block = make(map[string]any)
		cfg["sidecar"] = block
	}

	var (
		messages     []string
		warnings     []string
		anyDifferent bool
		allCorrect   = true
	)

	// Sort keys for deterministic output.
	keys := sortedKeys(required)

	for _, key := range keys {
		wantVal := required[key]
		existing, exists := block[key]

		if !exists {
			block[key] = shimValue(key, wantVal)
			allCorrect = false
			messages = append(messages, fmt.Sprintf("Added %s=%s", key, wantVal))
			continue
		}

		if shimValueEqual(existing, wantVal) {
			continue
		}

		allCorrect = false
		anyDifferent = true
		switch {
		case opts.FixPortsOnly:
			// FixPortsOnly forcefully rewrites the endpoints.
			block[key] = shimValue(key, wantVal)
			messages = append(messages, fmt.Sprintf("Updated %s from %v to %q", key, existing, wantVal))
		case opts.Interactive:
			warnings = append(warnings, fmt.Sprintf(
				"%s is set to %v, expected %q",
				key, existing, wantVal,
			))
		default:
			warnings = append(warnings, fmt.Sprintf(
				"Warning: %s is set to %v (expected %q), not overwriting",
				key, existing, wantVal,
			))
		}
	}

	if opts.Interactive && anyDifferent {
		return MergeOutput{
			Result:   MergeNeedsConfirmation,
			Messages: messages,
			Warnings: warnings,
		}
	}

	if allCorrect {
		return MergeOutput{
			Result:   MergeAlreadyConfigured,
			Messages: []string{"Shim config already points at this sidecar"},
		}
	}

	if err := writeConfigAtomic(configPath, cfg, indent); err != nil {
		return MergeOutput{
			Result: MergeError,
			Err:    fmt.Errorf("writing shim config: %w", err),
		}
	}

	return MergeOutput{
		Result:   MergeSuccess,
		Messages: messages,
		Warnings: warnings,
	}
}

// shimValue converts a required string value to the JSON type the shim
// expects: "enabled" is a boolean, everything else stays a string.
func shimValue(key, val string) any {
	if key == "enabled" {
		return val == "true"
	}
	return val
}

// shimValueEqual compares an existing JSON value against the required
// string form, tolerating the boolean "enabled" key.
func shimValueEqual(existing any, want string) bool {
	switch v := existing.(type) {
	case string:
		return v == want
	case bool:
		return fmt.Sprintf("%t", v) == want
	default:
		return false
	}
}

// createNewConfigFile creates a new shim config with the required keys.
func createNewConfigFile(path string, required map[string]string) MergeOutput {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return MergeOutput{
				Result: MergeError,
				Err:    fmt.Errorf("permission denied creating directory %s", dir),
			}
		}
		return MergeOutput{
			Result: MergeError,
			Err:    fmt.Errorf("creating directory %s: %w", dir, err),
		}
	}

	block := make(map[string]any, len(required))
	for k, v := range required {
		block[k] = shimValue(k, v)
	}
	cfg := map[string]any{
		"sidecar": block,
	}

	indent := "  " // Default 2 spaces for new files.
	if err := writeConfigAtomic(path, cfg, indent); err != nil {
		return MergeOutput{
			Result: MergeError,
			Err:    fmt.Errorf("creating shim config: %w", err),
		}
	}

	return MergeOutput{
		Result:   MergeSuccess,
		Messages: []string{fmt.Sprintf("Created %s", path)},
	}
}

// writeConfigAtomic writes the config map to a file atomically using a
// temp file + rename so the editor never reads a half-written config.
func writeConfigAtomic(path string, cfg map[string]any, indent string) error {
	data, err := json.MarshalIndent(cfg, "", indent)
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	data = append(data, '\n')

	// Temp file must live in the same directory for the rename to be atomic.
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".shim-*.json.tmp")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("permission denied writing to %s", dir)
		}
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Preserve original file permissions if the target exists.
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpPath, info.Mode())
	} else {
		_ = os.Chmod(tmpPath, 0644)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	tmpPath = ""

	return nil
}

// sortedKeys returns the keys of a map sorted alphabetically.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
