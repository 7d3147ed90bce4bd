package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheck probes one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

// HealthChecker runs named dependency probes for /readyz and the gRPC health service.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
	// optional dependencies are reported but do not fail readiness
	optional map[string]bool
	timeout  time.Duration
	logger   *zerolog.Logger
}

type CheckResult struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewHealthChecker(logger *zerolog.Logger) *HealthChecker {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &HealthChecker{
		checks:   make(map[string]HealthCheck),
		optional: make(map[string]bool),
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// Register adds a required probe.
func (h *HealthChecker) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// RegisterOptional adds a probe whose failure degrades but does not fail readiness.
func (h *HealthChecker) RegisterOptional(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	h.optional[name] = true
}

// Check runs every probe and reports whether all required ones passed.
func (h *HealthChecker) Check(ctx context.Context) ([]CheckResult, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ready := true
	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		h.mu.RLock()
		check, optional := h.checks[name], h.optional[name]
		h.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check(cctx)
		cancel()

		res := CheckResult{Name: name, Healthy: err == nil, Optional: optional}
		if err != nil {
			res.Error = err.Error()
			if !optional {
				ready = false
			}
		}
		results = append(results, res)
	}
	return results, ready
}

// Watch mirrors readiness into the gRPC health server until ctx is done.
func (h *HealthChecker) Watch(ctx context.Context, hs *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.report(ctx, hs)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			h.report(ctx, hs)
		}
	}
}

func (h *HealthChecker) report(ctx context.Context, hs *health.Server) {
	results, ready := h.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if !ready {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		for _, r := range results {
			if !r.Healthy && !r.Optional {
				h.logger.Warn().Str("check", r.Name).Str("error", r.Error).Msg("dependency unhealthy")
			}
		}
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(serviceName, st)
}
