// Package main is the entry point for the calc-engine command.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/enjicalc/calc-engine/pkg/api"
	grpcapi "github.com/enjicalc/calc-engine/pkg/api/grpc"
	"github.com/enjicalc/calc-engine/pkg/config"
	"github.com/enjicalc/calc-engine/pkg/store"
	"github.com/enjicalc/calc-engine/web"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cfg is loaded once before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:               "calc-engine",
	Short:             "Sandboxed formula evaluator and calculation template solver",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, web UI and gRPC service",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("calc-engine version {{.Version}}\n")

	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (default info, env LOG_LEVEL)")

	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	serveCmd.Flags().Int("grpc-port", -1, "gRPC server port, 0 disables (default 8788, env GRPC_PORT)")
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	serveCmd.Flags().String("templates-dir", "", "Directory of template JSON/YAML files to load (env TEMPLATES_DIR)")

	rootCmd.AddCommand(serveCmd, evalCmd, verifyCmd, solveCmd, replCmd, exportCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		loaded.LogLevel = v
	}
	level, err := loaded.Level()
	if err != nil {
		return err
	}
	cfg = loaded

	zerolog.SetGlobalLevel(level)
	if cmd != serveCmd {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetInt("grpc-port"); v >= 0 {
		cfg.GRPCPort = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetString("templates-dir"); v != "" {
		cfg.TemplatesDir = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s := store.New()
	server := api.New(s)

	if cfg.TemplatesDir != "" {
		n, err := server.LoadDir(cfg.TemplatesDir)
		if err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
		log.Info().Str("dir", cfg.TemplatesDir).Int("templates", n).Msg("templates loaded")
	}

	// The UI is optional; a broken page template must not take the API down.
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("web UI disabled due to template error")
			}
		}()
		web.New(s).Register(server.App())
	}()

	var grpcServer *grpcapi.Server
	if addr := cfg.GRPCAddr(); addr != "" {
		grpcServer = grpcapi.New(s)
		go func() {
			log.Info().Str("addr", addr).Msg("gRPC server listening")
			if err := grpcServer.Serve(addr); err != nil {
				log.Fatal().Err(err).Msg("gRPC server error")
			}
		}()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down")
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr()).Str("version", version).Msg("calc-engine listening")
	return server.Listen(cfg.Addr())
}
