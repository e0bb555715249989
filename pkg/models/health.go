package models

import "time"

// HealthResponse is served by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Timestamp   time.Time         `json:"timestamp"`
	Checks      map[string]string `json:"checks"`
	Details     map[string]any    `json:"details,omitempty"`
}
