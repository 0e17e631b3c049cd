package settings

import "fmt"

// MergeResult classifies the outcome of a config merge.
type MergeResult int

const (
	// MergeSuccess means the shim config file was written.
	MergeSuccess MergeResult = iota
	// MergeAlreadyConfigured means every required key already had the
	// right value and the file was left untouched.
	MergeAlreadyConfigured
	// MergeNeedsConfirmation means differing values were found in
	// interactive mode and nothing was written.
	MergeNeedsConfirmation
	// MergeError means the merge failed; Err carries the cause.
	MergeError
)

// MergeOptions controls how the shim config merge behaves.
type MergeOptions struct {
	// ConfigPath overrides the default shim config location.
	ConfigPath string

	// Bind is the address the sidecar listens on. Defaults to 127.0.0.1.
	Bind string

	// GRPCPort, HTTPPort and ControlPort are the sidecar's listen ports.
	// Zero values fall back to the stock defaults.
	GRPCPort    int
	HTTPPort    int
	ControlPort int

	// Interactive makes the merge stop and ask before overwriting keys
	// that exist with different values.
	Interactive bool

	// FixPortsOnly rewrites only the endpoint keys, leaving enablement
	// and any other sidecar keys alone.
	FixPortsOnly bool
}

// MergeOutput is the result of a merge attempt.
type MergeOutput struct {
	Result   MergeResult
	Messages []string
	Warnings []string
	Err      error
}

// RequiredShimKeys returns the sidecar keys the shim reads, with the
// values the given listen configuration requires.
func RequiredShimKeys(bind string, grpcPort, httpPort, controlPort int) map[string]string {
	if bind == "" {
		bind = "127.0.0.1"
	}
	if grpcPort == 0 {
		grpcPort = 4317
	}
	if httpPort == 0 {
		httpPort = 4318
	}
	if controlPort == 0 {
		controlPort = 4319
	}
	return map[string]string{
		"enabled":            "true",
		"otlp_grpc_endpoint": fmt.Sprintf("http://%s:%d", bind, grpcPort),
		"otlp_http_endpoint": fmt.Sprintf("http://%s:%d/v1/logs", bind, httpPort),
		"control_url":        fmt.Sprintf("ws://%s:%d/control", bind, controlPort),
	}
}

// endpointKeys are the subset of shim keys FixPortsOnly is allowed to touch.
var endpointKeys = []string{"otlp_grpc_endpoint", "otlp_http_endpoint", "control_url"}
