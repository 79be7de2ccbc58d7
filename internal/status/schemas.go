package status

import "github.com/vid2set/vid2set/internal/distribute"

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State    string              `json:"state"`
	Progress distribute.Snapshot `json:"progress"`
}

type FailureResponse struct {
	ReferenceID string `json:"reference_id"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	Error       string `json:"error"`
}

type FailuresResponse struct {
	Failures []FailureResponse `json:"failures"`
}
