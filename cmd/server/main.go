package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/woozymasta/geodraft/internal/config"
	"github.com/woozymasta/geodraft/internal/logger"
	"github.com/woozymasta/geodraft/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"      env:"CONFIG_FILE"    description:"Path to configuration file, built-in defaults when empty"`
	Addr       string `short:"a" long:"addr"        env:"LISTEN_ADDRESS" description:"Address to listen on (overrides config)"`
	Port       int    `short:"p" long:"port"        env:"LISTEN_PORT"    description:"Port to listen on (overrides config)"`
	DefaultCRS string `short:"s" long:"default-crs" env:"DEFAULT_CRS"    description:"Source CRS of DXF drawings (overrides config)"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
	}

	if opts.Addr != "" {
		cfg.Listen.Addr = opts.Addr
	}
	if opts.Port > 0 {
		cfg.Listen.Port = opts.Port
	}
	if opts.DefaultCRS != "" {
		cfg.DefaultCRS = opts.DefaultCRS
	}

	srvCtx, err := server.NewServerContext(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Listen.Addr, cfg.Listen.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("addr", listenAddr).
		Str("default_crs", cfg.DefaultCRS).
		Int64("max_size", cfg.Import.MaxSize).
		Dur("import_timeout", cfg.Import.Timeout).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
