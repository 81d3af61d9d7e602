package health

import "context"

type Status string

const (
	StatusOk       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Component is the probe result for one downstream dependency.
type Component struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// BreakerInfo reports the state of one named circuit breaker.
type BreakerInfo struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Report is the aggregate health response.
type Report struct {
	Status     Status        `json:"status"`
	Version    string        `json:"version"`
	Components []Component   `json:"components"`
	Breakers   []BreakerInfo `json:"breakers,omitempty"`
}

// IHealthUsecase probes the database, the event bus and the provider.
type IHealthUsecase interface {
	Check(ctx context.Context) *Report
}
