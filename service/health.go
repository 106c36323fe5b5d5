package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/cache"
)

// HealthStatus is the outcome of a health check.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthReport is returned by HealthCheck.
type HealthReport struct {
	Status  HealthStatus  `json:"status"`
	Details HealthDetails `json:"details"`
}

// HealthDetails describes the checked service.
type HealthDetails struct {
	Service    string      `json:"service"`
	TableName  string      `json:"tableName"`
	CacheStats cache.Stats `json:"cacheStats"`
	Timestamp  time.Time   `json:"timestamp"`
	Error      string      `json:"error,omitempty"`
}

// Healthy reports whether the check succeeded.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// HealthCheck issues SELECT 1 against the database. It never returns an
// error; failures are reported in the report.
func (s *BaseService) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		Status: StatusHealthy,
		Details: HealthDetails{
			Service:    s.name,
			TableName:  s.table,
			CacheStats: s.cache.Stats(),
			Timestamp:  s.now().UTC(),
		},
	}

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		report.Status = StatusUnhealthy
		report.Details.Error = err.Error()
	}
	return report
}
