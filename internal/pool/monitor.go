package pool

import (
	"log"
	"sync"
	"time"

	"tradingsim/internal/metrics"
)

// Registrar is the non-generic interface PoolMonitor scans. Every
// *Pool[T] satisfies it regardless of T.
type Registrar interface {
	Name() string
	Stats() Stats
	HealthCheck() Health
	ReleaseAll()
	Clear()
	Resize(newMax int)
}

// Monitor is the process-wide PoolMonitor singleton from spec §4.J: every
// scanInterval it walks the registered pools, computing utilization and
// applying the warning/critical thresholds.
type Monitor struct {
	mu    sync.Mutex
	pools map[string]Registrar

	scanInterval time.Duration
	stop         chan struct{}
	stopped      bool
}

const (
	WarningThreshold  = 0.8
	CriticalThreshold = 0.95
	DefaultScanInterval = 10 * time.Second
)

// NewMonitor constructs a PoolMonitor with the default 10s scan interval.
func NewMonitor() *Monitor {
	return NewMonitorWithInterval(DefaultScanInterval)
}

// NewMonitorWithInterval constructs a PoolMonitor with a caller-supplied
// scan interval (config.PoolScanInterval).
func NewMonitorWithInterval(scanInterval time.Duration) *Monitor {
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}
	return &Monitor{pools: make(map[string]Registrar), scanInterval: scanInterval, stop: make(chan struct{})}
}

// Register adds a pool to the scan set.
func (m *Monitor) Register(p Registrar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.Name()] = p
}

// Unregister removes a pool from the scan set.
func (m *Monitor) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, name)
}

// Start launches the periodic scan loop. Call Shutdown to cancel it.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.scan()
		case <-m.stop:
			return
		}
	}
}

// Shutdown cancels the scan loop.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stop)
}

func (m *Monitor) scan() {
	m.mu.Lock()
	pools := make([]Registrar, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		stats := p.Stats()
		usage := stats.Usage()
		metrics.SetPoolStats(p.Name(), usage, stats.Created, stats.MaxSize)
		switch {
		case usage >= CriticalThreshold:
			log.Printf("pool %q: critical utilization %.2f%%, running emergency cleanup", p.Name(), usage*100)
			p.ReleaseAll()
			p.Clear()
			p.Resize(int(float64(stats.MaxSize) * 0.8))
		case usage >= WarningThreshold:
			log.Printf("pool %q: warning utilization %.2f%%", p.Name(), usage*100)
		}
	}
}

// PoolDetail is one entry in the aggregate report.
type PoolDetail struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Stats     Stats  `json:"stats"`
}

// Report is the /api/object-pools/status payload (spec §4.J).
type Report struct {
	TotalPools    int          `json:"totalPools"`
	HealthyPools  int          `json:"healthyPools"`
	WarningPools  int          `json:"warningPools"`
	CriticalPools int          `json:"criticalPools"`
	TotalObjects  int          `json:"totalObjects"`
	TotalCapacity int          `json:"totalCapacity"`
	Details       []PoolDetail `json:"details"`
}

// Snapshot builds the aggregate report across every registered pool.
func (m *Monitor) Snapshot() Report {
	m.mu.Lock()
	pools := make([]Registrar, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	var rep Report
	rep.TotalPools = len(pools)
	for _, p := range pools {
		stats := p.Stats()
		usage := stats.Usage()
		status := "healthy"
		switch {
		case usage >= CriticalThreshold:
			status = "critical"
			rep.CriticalPools++
		case usage >= WarningThreshold:
			status = "warning"
			rep.WarningPools++
		default:
			rep.HealthyPools++
		}
		rep.TotalObjects += stats.Created
		rep.TotalCapacity += stats.MaxSize
		rep.Details = append(rep.Details, PoolDetail{Name: p.Name(), Status: status, Stats: stats})
	}
	return rep
}
