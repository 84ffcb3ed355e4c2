package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/botirjon13/oyin-backent/internal/health"
)

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes implements HealthChecker over the dependency health checker.
// Liveness reports success as long as the process is serving; readiness
// requires every registered dependency check to pass.
type Probes struct {
	checker *health.Checker
	log     *slog.Logger
}

// NewProbes creates a new Probes instance.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness reports success while the process is running.
func (p *Probes) Liveness(ctx context.Context) error {
	return nil
}

// Readiness runs all dependency checks and fails if any component is broken.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.checker == nil {
		return nil
	}

	results, ok := p.checker.Healthy(ctx)
	if !ok {
		for name, status := range results {
			if status != "OK" {
				p.log.Warn("readiness check failed", slog.String("check", name), slog.String("status", status))
			}
		}
		return errors.New("one or more dependencies are unavailable")
	}

	return nil
}
