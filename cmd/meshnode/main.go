package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/meshline/meshcore/internal/adminapi"
	"github.com/meshline/meshcore/internal/config"
	"github.com/meshline/meshcore/internal/node"
	"github.com/meshline/meshcore/internal/transport"
)

var version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "", "path to node config file")
		identityPath = flag.String("identity", "", "override identity key path")
		database     = flag.String("database", "", "override database DSN")
		pairingCode  = flag.String("pairing-code", "", "override pairing code")
		listen       = flag.String("ws-listen", "", "address to accept incoming WebSocket peer connections on (BLE radio stand-in)")
		logLevel     = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion  = flag.Bool("version", false, "show version and exit")
		showIdentity = flag.Bool("show-identity", false, "show identity and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("meshnode %s\n", version)
		os.Exit(0)
	}

	var cfg *config.NodeConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadNodeConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultNodeConfig()
	}

	if *identityPath != "" {
		cfg.IdentityPath = *identityPath
	}
	if *database != "" {
		cfg.DatabasePath = *database
	}
	if *pairingCode != "" {
		cfg.PairingCode = *pairingCode
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tr := transport.NewWSTransport(log)

	n, err := node.New(cfg, tr, log)
	if err != nil {
		log.Error("create node failed", "err", err)
		os.Exit(1)
	}

	if *showIdentity {
		fmt.Printf("Address:    %s\n", n.Identity().Address)
		fmt.Printf("Public Key: %s\n", n.Identity().PublicKeyHex())
		os.Exit(0)
	}

	if err := n.Start(); err != nil {
		log.Error("start node failed", "err", err)
		os.Exit(1)
	}

	if *listen != "" {
		go func() {
			if err := tr.ListenAndServe(*listen); err != nil {
				log.Error("ws transport stopped", "err", err)
			}
		}()
	}

	if cfg.AdminAPI.Enabled {
		admin, err := adminapi.New(cfg.AdminAPI, n, log)
		if err != nil {
			log.Error("create admin api failed", "err", err)
			os.Exit(1)
		}
		go func() {
			if err := admin.Run(); err != nil {
				log.Error("admin api stopped", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig)

	tr.Close()
	if err := n.Stop(); err != nil {
		log.Error("stop node failed", "err", err)
		os.Exit(1)
	}
}
