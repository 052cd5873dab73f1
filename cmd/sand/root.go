package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"sand/internal/config"
	"sand/internal/metrics"
	"sand/internal/metrics/datadog"
	"sand/internal/metrics/prom"
	"sand/internal/store"

	// register every storage backend; --storage picks one.
	_ "sand/internal/store/all"
)

const (
	Version = "0.1.0"
	appName = "sand"
)

// app carries what every subcommand needs once flags are resolved.
type app struct {
	cfg config.App
	log *slog.Logger
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{}
	var (
		cfgPath   string
		logLevel  string
		logFormat string
		kind      string
		dsn       string
	)

	root := &cobra.Command{
		Use:   appName,
		Short: "Sandboxed cell transformations over tabular data",
		Long: `sand stores CSV tables in a SQL database and runs user-written
JavaScript transformations (map, filter, split, concatenate) over their cells
inside a restricted interpreter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath, getenv)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if fl.Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if fl.Changed("storage") {
				cfg.Storage.Kind = kind
			}
			if fl.Changed("database") {
				cfg.Storage.DSN = dsn
			}
			if fl.Changed("port") {
				port, _ := fl.GetInt("port")
				cfg.Server.Addr = fmt.Sprintf(":%d", port)
			}

			hasError := false
			for _, iss := range config.Validate(cfg) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
				if iss.Severity == config.SeverityError {
					hasError = true
				}
			}
			if hasError {
				return fmt.Errorf("configuration is invalid")
			}

			a.cfg = cfg
			a.log = newLogger(cmd.ErrOrStderr(), cfg.Log)
			slog.SetDefault(a.log)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "config file path (YAML or JSON)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pf.StringVar(&kind, "storage", "sqlite", "storage backend ("+strings.Join(store.Kinds(), ", ")+")")
	pf.StringVarP(&dsn, "database", "d", "sand.db", "database DSN (a file path for sqlite)")

	root.AddCommand(
		newInitCmd(a),
		newCreateCmd(a),
		newLoadCmd(a),
		newStartCmd(a),
		newTransformCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return root
}

// newLogger builds the process logger; the level was validated with the
// config, so a parse failure falls back to info.
func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the configured backend and applies the schema.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	opts := a.cfg.Storage.Options
	st, err := store.Open(ctx, store.Config{
		Kind:            a.cfg.Storage.Kind,
		DSN:             a.cfg.Storage.DSN,
		MaxOpenConns:    opts.Int("max_open_conns", 0),
		MaxIdleConns:    opts.Int("max_idle_conns", 0),
		ConnMaxLifetime: opts.Duration("conn_max_lifetime", 0),
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	a.log.Debug("storage ready", "kind", st.Kind())
	return st, nil
}

// setupMetrics installs the configured metrics backend. It returns the
// scrape handler (Prometheus only) and a func that flushes and releases the
// backend.
func (a *app) setupMetrics() (http.Handler, func(), error) {
	m := a.cfg.Metrics
	switch m.Backend {
	case "prometheus":
		b, err := prom.NewBackend(prom.Config{Job: m.Job, PushURL: m.PushURL})
		if err != nil {
			return nil, nil, err
		}
		metrics.SetBackend(b)
		a.log.Info("metrics enabled", "backend", m.Backend, "push_url", m.PushURL, "job", m.Job)
		return b.Handler(), a.flushMetrics, nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: m.Namespace, Tags: m.Tags})
		if err != nil {
			return nil, nil, err
		}
		metrics.SetBackend(b)
		a.log.Info("metrics enabled", "backend", m.Backend, "addr", m.DatadogAddr)
		return nil, func() {
			a.flushMetrics()
			if err := b.Close(); err != nil {
				a.log.Warn("metrics: close", "err", err)
			}
		}, nil
	}
	return nil, func() {}, nil
}

func (a *app) flushMetrics() {
	if err := metrics.Flush(); err != nil {
		a.log.Warn("metrics: flush", "err", err)
	}
}
