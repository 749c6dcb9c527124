package services

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus is the liveness/readiness report
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// HealthService answers liveness and readiness probes
type HealthService struct {
	db        *sql.DB
	startedAt time.Time
}

// NewHealthService creates a health service; db may be nil for the
// in-memory driver.
func NewHealthService(db *sql.DB) *HealthService {
	return &HealthService{db: db, startedAt: time.Now()}
}

// Check reports process liveness
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	database := "memory"
	if s.db != nil {
		database = "postgres"
	}
	return HealthStatus{
		Status:   "ok",
		Database: database,
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
	}
}

// Ready reports whether the service can take traffic. With a database
// configured, that means the database answers a ping.
func (s *HealthService) Ready(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}
