package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// HealthService reports liveness, readiness, and build information.
type HealthService struct {
	version   string
	buildTime string
	dataset   *DatasetService
	clients   func() int
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health endpoint response.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Runtime   map[string]any `json:"runtime,omitempty"`
	Services  map[string]any `json:"services,omitempty"`
}

// VersionInfo is the version endpoint response.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// NewHealthService creates the health service. clients reports the number
// of connected WebSocket clients and may be nil.
func NewHealthService(version, buildTime string, dataset *DatasetService, clients func() int, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		dataset:   dataset,
		clients:   clients,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns liveness plus a snapshot of the dataset state.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]any{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
		},
		Services: map[string]any{},
	}

	loaded := false
	if hs.dataset != nil {
		if summary, err := hs.dataset.Summary(ctx); err == nil {
			loaded = true
			status.Services["dataset"] = map[string]any{
				"loaded":    true,
				"rows":      summary.Rows,
				"columns":   summary.Columns,
				"loaded_at": summary.LoadedAt,
			}
		}
	}
	if !loaded {
		status.Services["dataset"] = map[string]any{"loaded": false}
	}
	if hs.clients != nil {
		status.Services["websocket"] = map[string]any{"clients": hs.clients()}
	}
	return status
}

// ReadinessCheck reports readiness. The server is ready as soon as it can
// serve; a dataset is not required to be loaded.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// Version returns build information.
func (hs *HealthService) Version(ctx context.Context) VersionInfo {
	return VersionInfo{
		Version:   hs.version,
		BuildTime: hs.buildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
