package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/services"
)

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the service producing dependency reports for /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthResponse struct {
	Status      string                         `json:"status"`
	Version     string                         `json:"version,omitempty"`
	CommitSHA   string                         `json:"commitSha,omitempty"`
	Environment string                         `json:"environment,omitempty"`
	Uptime      string                         `json:"uptime"`
	Timestamp   string                         `json:"timestamp"`
	Checks      map[string]healthCheckResponse `json:"checks,omitempty"`
	Details     []string                       `json:"details,omitempty"`
}

type healthCheckResponse struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz runs the dependency checks and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, healthResponse{
			Status:    domain.HealthStatusOK,
			Uptime:    now.Sub(h.build.StartedAt).Round(time.Second).String(),
			Timestamp: now.Format(time.RFC3339),
		})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{
			Status:    domain.HealthStatusError,
			Timestamp: now.Format(time.RFC3339),
			Details:   []string{err.Error()},
		})
		return
	}

	resp := healthResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.Round(time.Second).String(),
		Timestamp:   report.GeneratedAt.UTC().Format(time.RFC3339),
		Checks:      make(map[string]healthCheckResponse, len(report.Checks)),
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		resp.Checks[name] = healthCheckResponse{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
		if check.Status != domain.HealthStatusOK && check.Error != "" {
			resp.Details = append(resp.Details, fmt.Sprintf("%s: %s", name, check.Error))
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
