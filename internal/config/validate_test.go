package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func TestValidate_DefaultIsClean(t *testing.T) {
	if issues := Validate(Default()); len(issues) != 0 {
		t.Fatalf("expected no issues for defaults; got %+v", issues)
	}
}

func TestValidate_Cases(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*App)
		sev  IssueSeverity
		path string
		msg  string
	}{
		{"empty addr", func(a *App) { a.Server.Addr = "" }, SeverityError, "server.addr", "must not be empty"},
		{"zero body limit", func(a *App) { a.Server.MaxBodyBytes = 0 }, SeverityError, "server.max_body_bytes", "positive"},
		{"no shutdown grace", func(a *App) { a.Server.ShutdownTimeout = 0 }, SeverityWarning, "server.shutdown_timeout", "in-flight"},
		{"empty storage kind", func(a *App) { a.Storage.Kind = " " }, SeverityError, "storage.kind", "must not be empty"},
		{"unknown storage kind", func(a *App) { a.Storage.Kind = "oracle" }, SeverityWarning, "storage.kind", "unknown storage kind"},
		{"empty dsn", func(a *App) { a.Storage.DSN = "" }, SeverityError, "storage.dsn", "must not be empty"},
		{"sqlite pool", func(a *App) { a.Storage.Options = Options{"max_open_conns": 4} }, SeverityWarning, "storage.options.max_open_conns", "single writer"},
		{"negative pool", func(a *App) {
			a.Storage.Kind = "postgres"
			a.Storage.Options = Options{"max_open_conns": -1}
		}, SeverityError, "storage.options.max_open_conns", "negative"},
		{"zero sandbox timeout", func(a *App) { a.Sandbox.Timeout = 0 }, SeverityError, "sandbox.timeout", "positive"},
		{"negative stack", func(a *App) { a.Sandbox.MaxCallStackSize = -1 }, SeverityError, "sandbox.max_call_stack_size", "negative"},
		{"negative rate", func(a *App) { a.Transform.RateLimit = -1 }, SeverityError, "transform.rate_limit", "negative"},
		{"zero burst", func(a *App) { a.Transform.Burst = 0 }, SeverityWarning, "transform.burst", "burst=0"},
		{"unknown metrics", func(a *App) { a.Metrics.Backend = "graphite" }, SeverityError, "metrics.backend", "unknown metrics backend"},
		{"datadog without addr", func(a *App) { a.Metrics.Backend = "datadog" }, SeverityError, "metrics.datadog_addr", "requires"},
		{"push without job", func(a *App) {
			a.Metrics.Backend = "prometheus"
			a.Metrics.PushURL = "http://pushgateway:9091"
			a.Metrics.Job = ""
		}, SeverityError, "metrics.job", "push_url"},
		{"bad level", func(a *App) { a.Log.Level = "loud" }, SeverityError, "log.level", "loud"},
		{"bad format", func(a *App) { a.Log.Format = "xml" }, SeverityError, "log.format", "text or json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Default()
			tc.mut(&a)
			issues := Validate(a)
			if !hasIssue(t, issues, tc.sev, tc.path, tc.msg) {
				t.Fatalf("expected %s at %s containing %q; got %+v", tc.sev, tc.path, tc.msg, issues)
			}
		})
	}
}

func TestErrorsFiltersWarnings(t *testing.T) {
	a := Default()
	a.Storage.Kind = "oracle"
	a.Storage.DSN = ""
	errs := Errors(Validate(a))
	if len(errs) != 1 || errs[0].Path != "storage.dsn" {
		t.Fatalf("Errors() = %+v; want only storage.dsn", errs)
	}
	if got := errs[0].Error(); !strings.HasPrefix(got, "error at storage.dsn:") {
		t.Fatalf("Error() = %q", got)
	}
}
