package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samims/tradenotify/internal/storage"
)

const probeTimeout = 2 * time.Second

// Probe checks one optional dependency, e.g. the Kafka client
type Probe func(ctx context.Context) error

type HealthService interface {
	Liveness(ctx context.Context) error
	// Readiness checks the database and every registered probe and reports each one by name.
	Readiness(ctx context.Context) (map[string]string, error)
}

type healthService struct {
	store  storage.HealthCheckStorage
	probes map[string]Probe
	logger *slog.Logger
}

func NewHealthService(store storage.HealthCheckStorage, probes map[string]Probe, logger *slog.Logger) HealthService {
	l := logger.With("layer", "service", "component", "healthService")
	return &healthService{store: store, probes: probes, logger: l}
}

func (s *healthService) Liveness(ctx context.Context) error {
	s.logger.Debug("Liveness check passed")
	return nil
}

func (s *healthService) Readiness(ctx context.Context) (map[string]string, error) {
	s.logger.Debug("Readiness check initiated")
	status := make(map[string]string, len(s.probes)+1)
	var errs []error

	check := func(name string, probe Probe) {
		// each probe gets its own 2 seconds
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := probe(pctx); err != nil {
			status[name] = fmt.Sprintf("error: %s", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		status[name] = "ok"
	}

	check("db", s.store.Ping)
	for name, probe := range s.probes {
		check(name, probe)
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Readiness check failed", slog.Any("error", err))
		return status, err
	}
	s.logger.Debug("Readiness check passed")
	return status, nil
}
