package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/sqlsidecar/internal/analyzers"
	"github.com/nixlim/sqlsidecar/internal/bridge"
	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/engine"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/scanner"
	"github.com/nixlim/sqlsidecar/internal/settings"
	"github.com/nixlim/sqlsidecar/internal/storage"
	"github.com/nixlim/sqlsidecar/internal/tui"
)

const version = "0.2.0"

func main() {
	configFlag := flag.String("config", "", "Path to the config file")
	setupFlag := flag.Bool("setup", false, "Write the shim bridge config and exit")
	headlessFlag := flag.Bool("headless", false, "Run without the dashboard")
	debugFlag := flag.String("debug", "", "Write a notification debug log (JSONL) to the specified file path")
	versionFlag := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("sqlsidecar " + version)
		return
	}

	if *setupFlag {
		RunSetup(*configFlag)
		return
	}

	loadResult, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqlsidecar: config error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadResult.Config

	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "sqlsidecar: config warning: %s\n", w)
	}

	store, isPersistent := storage.NewStore(cfg.Cache)

	var bridgeLogger bridge.Logger
	if *debugFlag != "" {
		debugFile, err := os.OpenFile(*debugFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqlsidecar: failed to open debug log %q: %v\n", *debugFlag, err)
			os.Exit(1)
		}
		defer debugFile.Close()
		bridgeLogger = bridge.NewFileLogger(debugFile)
	}

	br := bridge.New(cfg.Bridge, bridgeLogger)

	eng := engine.New(engine.Options{
		Config:        cfg,
		Decorator:     br.Control(),
		Prober:        br.Control(),
		Parser:        parse.NewSQLParser(),
		Analyzers:     analyzers.Default(),
		Store:         store,
		Notifications: br.Notifications(),
	})

	proc := scanner.NewDefaultScanner(cfg.Scanner)
	proc.OnAppear(eng.HostSeen)
	proc.OnExit(eng.HostGone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := br.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sqlsidecar: failed to start bridge: %v\n", err)
		os.Exit(1)
	}

	eng.Start()

	proc.ScanOnce()
	proc.Start()

	shutdownMgr := &tui.ShutdownManager{
		DrainTimeout: tui.DefaultDrainTimeout,
		StopScanner:  proc.Stop,
		StopBridge: func(ctx context.Context) error {
			br.Stop()
			return nil
		},
		StopEngine: eng.Stop,
		Cleanup: func() {
			if store != nil {
				if err := store.Close(); err != nil {
					log.Printf("WARNING: closing store: %v", err)
				}
			}
		},
	}

	if *headlessFlag {
		runHeadless(eng, shutdownMgr, sigCh)
		return
	}

	// The dashboard owns the terminal; stray log lines would corrupt it.
	log.SetOutput(io.Discard)

	opts := []tui.ModelOption{
		tui.WithRegistryProvider(eng.Registry()),
		tui.WithActivityProvider(eng.Activity()),
		tui.WithStatsProvider(eng.Counters()),
		tui.WithDiscoveryProvider(eng),
		tui.WithNavigator(eng),
		tui.WithBridgeStatus(br.Control()),
		tui.WithScannerProvider(&scannerAdapter{scanner: proc}),
		tui.WithSettingsWriter(&settingsAdapter{cfg: cfg.Bridge}),
		tui.WithStartView(tui.ViewStartup),
		tui.WithPersistenceFlag(isPersistent),
		tui.WithOnShutdown(func() {
			cancel()
			shutdownMgr.Shutdown()
		}),
	}
	if store != nil {
		opts = append(opts, tui.WithStorageProvider(store))
	}

	model := tui.NewModel(cfg, opts...)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
	)

	go func() {
		select {
		case <-sigCh:
			cancel()
			shutdownMgr.Shutdown()
			p.Quit()
		case <-ctx.Done():
			return
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "sqlsidecar: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// runHeadless keeps the pipeline up without a dashboard, printing a
// periodic one-line summary until a signal arrives.
func runHeadless(eng *engine.Engine, shutdownMgr *tui.ShutdownManager, sigCh <-chan os.Signal) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Printf("running headless, ctrl-c to stop")
	for {
		select {
		case <-sigCh:
			shutdownMgr.Shutdown()
			return
		case <-ticker.C:
			snap := eng.Counters().Snapshot()
			log.Printf("hosts=%d sessions=%d notifications=%d applied=%d parse-failed=%d",
				eng.Registry().HostCount(), eng.Registry().SessionCount(),
				snap.Notifications, snap.Applied, snap.ParseFailures)
		}
	}
}

type scannerAdapter struct {
	scanner *scanner.Scanner
}

func (a *scannerAdapter) Known() []scanner.ProcessInfo {
	return a.scanner.Known()
}

func (a *scannerAdapter) Rescan() {
	a.scanner.ScanOnce()
}

type settingsAdapter struct {
	cfg config.BridgeConfig
}

func (a *settingsAdapter) EnableBridge() error {
	out := settings.Merge(settings.MergeOptions{
		Bind:        a.cfg.Bind,
		GRPCPort:    a.cfg.GRPCPort,
		HTTPPort:    a.cfg.HTTPPort,
		ControlPort: a.cfg.ControlPort,
	})
	if out.Result == settings.MergeError {
		return out.Err
	}
	return nil
}
