package main

import (
	"fmt"
	"os"

	"github.com/nixlim/sqlsidecar/internal/settings"
)

// RunSetup performs a non-interactive shim config merge and prints the
// result. It loads the sidecar config to determine the listen ports, then
// merges the required sidecar keys into the editor's shim.json.
//
// Exit codes:
//   - 0: success or already configured
//   - 1: error
func RunSetup(configPath string) {
	loadResult, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "Config warning: %s\n", w)
	}

	br := loadResult.Config.Bridge

	output := settings.Merge(settings.MergeOptions{
		Interactive: false,
		Bind:        br.Bind,
		GRPCPort:    br.GRPCPort,
		HTTPPort:    br.HTTPPort,
		ControlPort: br.ControlPort,
	})

	for _, msg := range output.Messages {
		fmt.Println(msg)
	}
	for _, w := range output.Warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	switch output.Result {
	case settings.MergeSuccess:
		fmt.Println("Shim config updated. Restart the SQL editor to apply.")
		os.Exit(0)
	case settings.MergeAlreadyConfigured:
		fmt.Println("Already configured. No changes needed.")
		os.Exit(0)
	case settings.MergeError:
		fmt.Fprintf(os.Stderr, "Error: %v\n", output.Err)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Unexpected result: %v\n", output.Result)
		os.Exit(1)
	}
}
