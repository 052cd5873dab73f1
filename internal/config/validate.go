package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// configuration, e.g. "storage.dsn".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Errors returns only the issues with SeverityError.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			out = append(out, iss)
		}
	}
	return out
}

// Validate lints a decoded configuration. It does not mutate cfg.
func Validate(cfg App) []Issue {
	var issues []Issue
	issues = append(issues, validateServer(cfg.Server)...)
	issues = append(issues, validateStorage(cfg.Storage)...)
	issues = append(issues, validateSandbox(cfg.Sandbox)...)
	issues = append(issues, validateTransform(cfg.Transform)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	issues = append(issues, validateLog(cfg.Log)...)
	return issues
}

func validateServer(s Server) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Addr) == "" {
		issues = append(issues, Issue{SeverityError, "server.addr", "server.addr must not be empty"})
	}
	if s.MaxBodyBytes <= 0 {
		issues = append(issues, Issue{SeverityError, "server.max_body_bytes", "max_body_bytes must be positive"})
	}
	if s.ShutdownTimeout <= 0 {
		issues = append(issues, Issue{SeverityWarning, "server.shutdown_timeout",
			"non-positive shutdown_timeout drops in-flight requests on shutdown"})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	}
	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{SeverityWarning, "storage.kind",
			fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind)})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", "storage.dsn must not be empty"})
	}
	if s.Options.Int("max_open_conns", 0) < 0 {
		issues = append(issues, Issue{SeverityError, "storage.options.max_open_conns", "max_open_conns must not be negative"})
	}
	if s.Kind == "sqlite" && s.Options.Int("max_open_conns", 1) > 1 {
		issues = append(issues, Issue{SeverityWarning, "storage.options.max_open_conns",
			"sqlite allows a single writer; max_open_conns is capped at 1"})
	}
	return issues
}

func validateSandbox(s Sandbox) []Issue {
	var issues []Issue
	if s.Timeout <= 0 {
		issues = append(issues, Issue{SeverityError, "sandbox.timeout", "sandbox.timeout must be positive"})
	}
	if s.MaxCallStackSize < 0 {
		issues = append(issues, Issue{SeverityError, "sandbox.max_call_stack_size", "max_call_stack_size must not be negative"})
	}
	return issues
}

func validateTransform(t Transform) []Issue {
	var issues []Issue
	if t.RateLimit < 0 {
		issues = append(issues, Issue{SeverityError, "transform.rate_limit", "rate_limit must not be negative"})
	}
	if t.RateLimit > 0 && t.Burst < 1 {
		issues = append(issues, Issue{SeverityWarning, "transform.burst",
			fmt.Sprintf("burst=%d rejects every request; use at least 1", t.Burst)})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus":
		if m.PushURL != "" && strings.TrimSpace(m.Job) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.job", "metrics.job is required when push_url is set"})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.datadog_addr", "datadog backend requires datadog_addr"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend",
			fmt.Sprintf("unknown metrics backend %q (want none, prometheus or datadog)", m.Backend)})
	}
	return issues
}

func validateLog(l Log) []Issue {
	var issues []Issue
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		issues = append(issues, Issue{SeverityError, "log.level", fmt.Sprintf("unknown log level %q", l.Level)})
	}
	switch l.Format {
	case "text", "json":
	default:
		issues = append(issues, Issue{SeverityError, "log.format", fmt.Sprintf("log.format must be text or json, got %q", l.Format)})
	}
	return issues
}
