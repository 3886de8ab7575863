// Command rune-discover runs the device discovery daemon.
//
// The daemon announces the local device over UDP multicast and mDNS,
// listens for peers doing the same, and persists everything it hears
// so devices reappear instantly after a restart. It also manages the
// node's TLS identity and the trusted-server report used for pinned
// connections.
//
// Usage:
//
//	rune-discover [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-config-dir string  Directory for identity, trust, and device files
//	-alias string       Device name announced to peers (default hostname)
//	-port int           UDP discovery port (default 57863)
//	-api-port int       Announced API port (default 7863)
//	-announce           Announce the local device (default true)
//	-mdns               Advertise over mDNS as well (default true)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-event-log string   Append discovery events to this file (CBOR)
//	-trust string       Trust a server: <fingerprint>@<domain>[,<domain>...], then exit
//	-show-fingerprint   Print the local certificate fingerprint and exit
//
// Examples:
//
//	# Run with defaults, announcing as the current hostname
//	rune-discover
//
//	# Listen only, without announcing
//	rune-discover -announce=false
//
//	# Pin a server's certificate for two of its names
//	rune-discover -trust 'Abc123...@player.local,player.lan'
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/balthild/rune/pkg/cert"
	"github.com/balthild/rune/pkg/discovery"
	eventlog "github.com/balthild/rune/pkg/log"
	"github.com/balthild/rune/pkg/scanner"
	"github.com/balthild/rune/pkg/trust"
	"github.com/balthild/rune/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rune-discover:", err)
		os.Exit(1)
	}
}

// cliOptions are the flags that drive one-shot actions rather than
// daemon configuration.
type cliOptions struct {
	eventLogPath    string
	trustSpec       string
	showFingerprint bool
}

// parseFlags parses args into the daemon configuration. The optional
// YAML file is merged underneath: file values override defaults, and
// explicitly set flags override file values.
func parseFlags(fs *flag.FlagSet, args []string) (Config, cliOptions, error) {
	cfg := DefaultConfig()
	var opts cliOptions

	configFile := fs.String("config", "", "Configuration file path (YAML)")
	configDir := fs.String("config-dir", cfg.ConfigDir, "Directory for identity, trust, and device files")
	alias := fs.String("alias", cfg.Alias, "Device name announced to peers")
	port := fs.Int("port", cfg.Port, "UDP discovery port")
	apiPort := fs.Int("api-port", int(cfg.APIPort), "Announced API port")
	announce := fs.Bool("announce", cfg.Announce, "Announce the local device")
	mdns := fs.Bool("mdns", cfg.MDNS, "Advertise over mDNS as well")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&opts.eventLogPath, "event-log", "", "Append discovery events to this file (CBOR)")
	fs.StringVar(&opts.trustSpec, "trust", "", "Trust a server: <fingerprint>@<domain>[,<domain>...], then exit")
	fs.BoolVar(&opts.showFingerprint, "show-fingerprint", false, "Print the local certificate fingerprint and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, cliOptions{}, err
	}

	if *configFile != "" {
		if err := LoadConfigFile(*configFile, &cfg); err != nil {
			return Config{}, cliOptions{}, err
		}
	}

	// Re-apply every flag the user actually set, so flags win over
	// file values without clobbering file keys the user left alone.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config-dir":
			cfg.ConfigDir = *configDir
		case "alias":
			cfg.Alias = *alias
		case "port":
			cfg.Port = *port
		case "api-port":
			cfg.APIPort = uint16(*apiPort)
		case "announce":
			cfg.Announce = *announce
		case "mdns":
			cfg.MDNS = *mdns
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	return cfg, opts, nil
}

func run() error {
	cfg, opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.Alias == "" {
		// No hostname and no configured alias. Fall back to a stable
		// per-installation identifier so announcements stay consistent
		// across restarts.
		id, err := cert.CertificateID(cfg.ConfigDir)
		if err != nil {
			return err
		}
		if len(id) > 8 {
			id = id[:8]
		}
		cfg.Alias = "rune-" + id
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	identity, err := cert.LoadOrGenerateIdentity(cfg.ConfigDir, cfg.Alias)
	if err != nil {
		return fmt.Errorf("failed to initialize identity: %w", err)
	}

	if opts.showFingerprint {
		fmt.Println(identity.Fingerprint)
		return nil
	}

	if opts.trustSpec != "" {
		return trustServer(cfg.ConfigDir, opts.trustSpec)
	}

	info := discovery.DeviceInfo{
		Alias:       cfg.Alias,
		DeviceModel: cfg.DeviceModel,
		Version:     version.Current,
		DeviceType:  discovery.DeviceType(cfg.DeviceType),
		Fingerprint: identity.Fingerprint,
		APIPort:     cfg.APIPort,
		Protocol:    cfg.Protocol,
	}

	svc, err := discovery.NewService(discovery.Config{
		Group:  cfg.Group,
		Port:   cfg.Port,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var events eventlog.Logger
	if opts.eventLogPath != "" {
		fileLog, err := eventlog.NewFileLogger(opts.eventLogPath)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer fileLog.Close()
		events = eventlog.NewMultiLogger(fileLog, eventlog.NewSlogAdapter(logger))
	}

	runtime, err := scanner.NewRuntime(svc, scanner.RuntimeConfig{
		ConfigDir:   cfg.ConfigDir,
		Announce:    cfg.Announce,
		EventLogger: events,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if err := runtime.Start(info); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	var advertiser *discovery.MDNSAdvertiser
	if cfg.MDNS {
		advertiser = discovery.NewMDNSAdvertiser(discovery.DefaultMDNSConfig())
		if err := advertiser.Advertise(info); err != nil {
			logger.Warn("mDNS advertising unavailable", "error", err)
			advertiser = nil
		}
	}

	logger.Info("Discovery daemon running",
		"alias", cfg.Alias,
		"fingerprint", identity.Fingerprint,
		"group", cfg.Group,
		"port", cfg.Port,
	)

	prune := time.NewTicker(cfg.PruneInterval.D())
	defer prune.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-prune.C:
			if removed := runtime.PruneExpired(); removed > 0 {
				logger.Debug("Pruned stale devices", "removed", removed)
			}
		case sig := <-sigCh:
			logger.Info("Shutting down", "signal", sig.String())
			if advertiser != nil {
				advertiser.Stop()
			}
			if err := runtime.Shutdown(); err != nil {
				return err
			}
			return nil
		}
	}
}

// trustServer parses "<fingerprint>@<domain>[,<domain>...]" and records
// the pin in the trust store.
func trustServer(configDir, spec string) error {
	fp, domainList, ok := strings.Cut(spec, "@")
	if !ok || fp == "" || domainList == "" {
		return fmt.Errorf("invalid trust spec %q, want <fingerprint>@<domain>[,<domain>...]", spec)
	}

	var domains []string
	for _, domain := range strings.Split(domainList, ",") {
		domain = strings.TrimSpace(domain)
		if domain != "" {
			domains = append(domains, domain)
		}
	}
	if len(domains) == 0 {
		return fmt.Errorf("trust spec %q names no domains", spec)
	}

	store, err := trust.NewStore(configDir)
	if err != nil {
		return err
	}
	if err := store.Trust(domains, fp); err != nil {
		return err
	}

	fmt.Printf("Trusted %s for %s\n", fp, strings.Join(domains, ", "))
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
