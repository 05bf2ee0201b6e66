package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relayd/internal/config"
	"relayd/internal/ollama"
)

// flagValues mirrors config.Config for the CLI. Only flags the user set explicitly
// override file and environment values.
type flagValues struct {
	configPath      string
	envFile         string
	addr            string
	upstreamURL     string
	staticDir       string
	connectTimeout  int
	responseTimeout int
	requestTimeout  int
	chunkSize       int
	maxBodyBytes    int64
	logLevel        string
	logFormat       string
	cors            bool
	corsOrigins     string
}

func newRootCmd() *cobra.Command { return newRootCmdWith(&flagValues{}) }

// newRootCmdWith builds the command tree writing parsed flags into fv.
func newRootCmdWith(fv *flagValues) *cobra.Command {
	root := &cobra.Command{
		Use:           "relayd",
		Short:         "Streaming HTTP relay in front of a local Ollama-compatible model daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(fv.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error { return runServe(cmd, fv) },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&fv.envFile, "env-file", ".env", "Dotenv file with RELAYD_* defaults (ignored when missing)")
	pf.StringVar(&fv.addr, "addr", config.DefaultAddr, "HTTP listen address")
	pf.StringVar(&fv.upstreamURL, "upstream-url", config.DefaultUpstreamURL, "Base URL of the model daemon")
	pf.StringVar(&fv.staticDir, "static-dir", config.DefaultStaticDir, "Front-end directory served at /")
	pf.IntVar(&fv.connectTimeout, "connect-timeout", config.DefaultConnectTimeoutSeconds, "Upstream connect timeout in seconds")
	pf.IntVar(&fv.responseTimeout, "response-timeout", config.DefaultResponseTimeoutSeconds, "Upstream response-header timeout in seconds")
	pf.IntVar(&fv.requestTimeout, "request-timeout", config.DefaultRequestTimeoutSeconds, "Timeout in seconds for model listing and deletion")
	pf.IntVar(&fv.chunkSize, "chunk-size", config.DefaultChunkSizeBytes, "Largest chunk relayed per upstream read, in bytes")
	pf.Int64Var(&fv.maxBodyBytes, "max-body-bytes", config.DefaultMaxBodyBytes, "Request body limit in bytes")
	pf.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "Log level: off|error|info|debug")
	pf.StringVar(&fv.logFormat, "log-format", config.DefaultLogFormat, "Log format: json|console")
	pf.BoolVar(&fv.cors, "cors", false, "Enable CORS")
	pf.StringVar(&fv.corsOrigins, "cors-origins", "", "Comma separated CORS origins (default *)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay (default command)",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runServe(cmd, fv) },
	}
	models := &cobra.Command{
		Use:     "models",
		Short:   "Print the daemon's model listing",
		Example: "  relayd models --upstream-url http://localhost:11434",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, fv, os.Getenv)
			if err != nil {
				return err
			}
			raw, err := newUpstream(cfg).Tags(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(raw)))
			return err
		},
	}
	del := &cobra.Command{
		Use:     "delete <name>",
		Short:   "Delete a model from the daemon",
		Example: "  relayd delete llama3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("model name is required")
			}
			cfg, err := resolveConfig(cmd, fv, os.Getenv)
			if err != nil {
				return err
			}
			if err := newUpstream(cfg).Delete(cmd.Context(), name); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Model %s deleted.\n", name)
			return err
		},
	}
	root.AddCommand(serve, models, del)
	return root
}

// loadEnvFile applies a dotenv file without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// resolveConfig layers defaults < config file < environment < explicit flags.
func resolveConfig(cmd *cobra.Command, fv *flagValues, getenv func(string) string) (config.Config, error) {
	var cfg config.Config
	if fv.configPath != "" {
		loaded, err := config.Load(fv.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg = cfg.ApplyEnv(getenv)

	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Addr = fv.addr
	}
	if changed("upstream-url") {
		cfg.UpstreamURL = fv.upstreamURL
	}
	if changed("static-dir") {
		cfg.StaticDir = fv.staticDir
	}
	if changed("connect-timeout") {
		cfg.ConnectTimeoutSeconds = fv.connectTimeout
	}
	if changed("response-timeout") {
		cfg.ResponseTimeoutSeconds = fv.responseTimeout
	}
	if changed("request-timeout") {
		cfg.RequestTimeoutSeconds = fv.requestTimeout
	}
	if changed("chunk-size") {
		cfg.ChunkSizeBytes = fv.chunkSize
	}
	if changed("max-body-bytes") {
		cfg.MaxBodyBytes = fv.maxBodyBytes
	}
	if changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = fv.logFormat
	}
	if changed("cors") {
		cfg.CORSEnabled = fv.cors
	}
	if changed("cors-origins") {
		cfg.CORSAllowedOrigins = config.SplitCSV(fv.corsOrigins)
	}

	cfg = cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newUpstream(cfg config.Config) *ollama.Client {
	return ollama.NewClient(ollama.Options{
		BaseURL:         cfg.UpstreamURL,
		ConnectTimeout:  cfg.ConnectTimeout(),
		ResponseTimeout: cfg.ResponseTimeout(),
		RequestTimeout:  cfg.RequestTimeout(),
	})
}

// zerologLevel maps the relay's level names onto zerolog's.
func zerologLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return zerolog.Disabled
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "debug", "trace":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// newLogger builds the process logger. The level is left open so per-request
// overrides in the HTTP layer can still reach debug.
func newLogger(format string, w io.Writer) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "relayd").Logger()
}
