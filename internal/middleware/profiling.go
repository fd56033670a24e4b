package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingConfig configures the profiling middleware.
type ProfilingConfig struct {
	// Enabled controls whether profiling endpoints are exposed. The pprof
	// surface leaks runtime internals (heap contents can include secrets),
	// so this must stay off in production.
	Enabled bool

	// Environment gates a second check: "production"/"prod" always refuse.
	Environment string
}

// Profiling returns middleware that exposes pprof endpoints at /debug/pprof/*
// in development deployments. When disabled, or when the environment is
// production regardless of the flag, requests pass straight through to the
// next handler.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}

		if config.Environment == "production" || config.Environment == "prod" {
			slog.Error("refusing to enable profiling in production environment",
				"environment", config.Environment,
			)
			return next
		}

		slog.Warn("profiling endpoints enabled",
			"environment", config.Environment,
			"endpoints", "/debug/pprof/*",
		)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/debug/pprof") {
				switch r.URL.Path {
				case "/debug/pprof/cmdline":
					pprof.Cmdline(w, r)
				case "/debug/pprof/profile":
					pprof.Profile(w, r)
				case "/debug/pprof/symbol":
					pprof.Symbol(w, r)
				case "/debug/pprof/trace":
					pprof.Trace(w, r)
				default:
					// Index also serves the named profiles
					// (heap, goroutine, block, mutex, allocs).
					pprof.Index(w, r)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ProfilingStatus returns a handler that reports the profiling configuration,
// useful for verifying a deployment has it off.
func ProfilingStatus(config ProfilingConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status := "disabled"
		if config.Enabled {
			status = "enabled"
		}

		response := fmt.Sprintf(`{
  "profiling_enabled": %t,
  "environment": %q,
  "status": %q,
  "endpoints": [
    "/debug/pprof/",
    "/debug/pprof/profile",
    "/debug/pprof/heap",
    "/debug/pprof/goroutine",
    "/debug/pprof/block",
    "/debug/pprof/mutex",
    "/debug/pprof/threadcreate",
    "/debug/pprof/allocs",
    "/debug/pprof/cmdline",
    "/debug/pprof/symbol",
    "/debug/pprof/trace"
  ]
}`, config.Enabled, config.Environment, status)

		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(response)); err != nil {
			slog.Error("failed to write profiling status response", "error", err)
		}
	}
}
