package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError describes a single validation problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config and returns every problem found.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Pac.HandshakeTimeout.Duration <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pac.handshake_timeout",
			Message: "must be positive",
		})
	}
	if cfg.Pac.StopGrace.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "pac.stop_grace",
			Message: "must not be negative",
		})
	}
	if cfg.Cache.TTL.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl",
			Message: "must not be negative",
		})
	}

	for i, kv := range cfg.Pac.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pac.env[%d]", i),
				Message: fmt.Sprintf("%q is not KEY=VALUE", kv),
			})
		}
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics.addr",
				Message: fmt.Sprintf("invalid listen address %q", addr),
			})
		}
	}

	return errs
}
