package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatusResponse reports process and host health
type SystemStatusResponse struct {
	Status     string     `json:"status"`
	Records    int        `json:"records"`
	CPUPercent float64    `json:"cpu_percent"`
	RAMPercent float64    `json:"ram_percent"`
	Goroutines int        `json:"goroutines"`
	AllocMB    uint64     `json:"alloc_mb"`
	Databases  []DBHealth `json:"databases"`
	CheckedAt  time.Time  `json:"checked_at"`
	CheckTime  int64      `json:"check_ms"`
}

// DBHealth reports one database's health-check result
type DBHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// handleSystemStatus returns host load, memory and database health
// GET /api/system/health
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	cpuAvg, ramPercent := s.hostLoad()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	dbs := make([]DBHealth, 0, len(s.dbs))
	status := "healthy"
	for _, db := range s.dbs {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := db.QuickCheck(ctx)
		cancel()

		health := DBHealth{Name: db.Name(), Healthy: err == nil}
		if err != nil {
			health.Error = err.Error()
			status = "degraded"
		}
		dbs = append(dbs, health)
	}

	records := 0
	if kpis, err := s.engine.KPIs(); err == nil {
		records = kpis.TotalOrders
	}

	s.writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:     status,
		Records:    records,
		CPUPercent: cpuAvg,
		RAMPercent: ramPercent,
		Goroutines: runtime.NumGoroutine(),
		AllocMB:    m.Alloc / 1024 / 1024,
		Databases:  dbs,
		CheckedAt:  time.Now().UTC(),
		CheckTime:  time.Since(start).Milliseconds(),
	})
}

// hostLoad samples CPU and RAM utilization
func (s *Server) hostLoad() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
