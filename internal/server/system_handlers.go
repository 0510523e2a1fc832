package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/frontieralpha/conviction/internal/database"
)

// MLHealthChecker reports reachability of the ML prediction service
type MLHealthChecker interface {
	HealthCheck() error
}

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	episodesDB  *database.DB
	beliefsDB   *database.DB
	mlClient    MLHealthChecker
}

// NewSystemHandlers creates a new system handlers instance.
// mlClient may be nil when no ML engine is configured.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	episodesDB, beliefsDB *database.DB,
	mlClient MLHealthChecker,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		episodesDB:  episodesDB,
		beliefsDB:   beliefsDB,
		mlClient:    mlClient,
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	databases := map[string]string{
		"episodes": h.databaseStatus(h.episodesDB),
		"beliefs":  h.databaseStatus(h.beliefsDB),
	}

	mlStatus := "not_configured"
	if h.mlClient != nil {
		if err := h.mlClient.HealthCheck(); err != nil {
			mlStatus = "unreachable"
		} else {
			mlStatus = "healthy"
		}
	}

	response := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"cpu_percent":    cpuPercent,
		"memory_percent": memPercent,
		"databases":      databases,
		"ml_engine":      mlStatus,
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("path", h.dataDir).Msg("Failed to get disk usage")
		http.Error(w, "Failed to get disk usage", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"path":         h.dataDir,
		"total_bytes":  usage.Total,
		"used_bytes":   usage.Used,
		"free_bytes":   usage.Free,
		"used_percent": usage.UsedPercent,
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

// databaseStatus runs a connectivity check on one database
func (h *SystemHandlers) databaseStatus(db *database.DB) string {
	if db == nil {
		return "not_configured"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short interval (100ms) so the status call stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
