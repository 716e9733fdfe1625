package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/shopfield/api/internal/domain"
	"github.com/shopfield/api/internal/repositories"
)

// BuildInfo describes the running binary. Health endpoints echo it back.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	checks  repositories.HealthRepository
	clock   func() time.Time
	build   BuildInfo
	started time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter over the dependency checks.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	started := deps.Build.StartedAt
	if started.IsZero() {
		started = clock()
	}
	return &systemService{
		checks:  deps.HealthRepository,
		clock:   clock,
		build:   deps.Build,
		started: started.UTC(),
	}, nil
}

// HealthReport runs every dependency check and fills in build metadata the checks do not know about.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.checks.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock().UTC()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.started)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// overallStatus is error when any check errored, degraded when any check is not ok, ok otherwise.
func overallStatus(checks map[string]domain.SystemHealthCheck) string {
	degraded := false
	for _, check := range checks {
		switch check.Status {
		case "", domain.HealthStatusOK:
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			degraded = true
		}
	}
	if degraded {
		return domain.HealthStatusDegraded
	}
	return domain.HealthStatusOK
}
