package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harsharshh/storypointz/internal/app"
	"github.com/harsharshh/storypointz/internal/config"
	"github.com/harsharshh/storypointz/internal/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	secret := flag.String("secret", "", "Realtime channel secret (overrides config)")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (overrides config)")
	httpLog := flag.Bool("httplog", false, "Enable HTTP request logging")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `storypointz - planning poker estimation server

Usage:
  storypointz [options]

Options:
  -config string   Path to YAML config file
  -listen string   Listen address (default ":8080")
  -db string       SQLite database path (default "storypointz.db")
  -secret string   Realtime channel secret (required)
  -loglevel string Log level: debug, info, warn, error (default "info")
  -httplog         Enable HTTP request logging
  -version         Show version and exit

Examples:
  storypointz -secret s3cret                    # Run with defaults
  storypointz -config /etc/storypointz.yaml     # Run from config file
  storypointz -config spz.yaml -loglevel debug  # Config plus override

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("storypointz %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load config: ", err)
		}
		cfg = loaded
	}

	// Flag overrides
	if *listenAddr != "" {
		cfg.ListenAddress = *listenAddr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *secret != "" {
		cfg.RealtimeSecret = *secret
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *httpLog {
		cfg.HTTPLogging = true
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: ", err)
	}

	appLog := logger.NewWithOptions(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stdout)
	if cfg.HTTPLogging {
		appLog.EnableHTTPLogging()
	}

	a, err := app.New(appLog, cfg)
	if err != nil {
		log.Fatal("Failed to initialize application: ", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Run()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal(err)
		}
	case sig := <-stop:
		appLog.Info("Shutting down", "signal", sig.String())
		if err := a.Shutdown(context.Background()); err != nil {
			appLog.Error("Shutdown error", "error", err)
		}
	}
}
