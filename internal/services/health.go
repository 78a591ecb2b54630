package services

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheck reports nil when a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name     string
	critical bool
	check    HealthCheck
}

type HealthService struct {
	logger *logrus.Logger
	checks []namedCheck
	pool   *pgxpool.Pool

	healthCheckStatus   *prometheus.GaugeVec
	lastHealthCheck     *prometheus.GaugeVec
	systemMetrics       *prometheus.GaugeVec
	dbConnectionMetrics *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
}

func NewHealthService(reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	hs := &HealthService{logger: logger}

	hs.healthCheckStatus = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}), logger)

	hs.lastHealthCheck = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"}), logger)

	hs.systemMetrics = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_info",
		Help: "System information metrics",
	}, []string{"metric_type"}), logger)

	hs.dbConnectionMetrics = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connection_pool_usage",
		Help: "Database connection pool usage",
	}, []string{"database", "state"}), logger)

	return hs
}

// AddCheck registers a dependency. A failing critical check makes the service
// unhealthy; a failing non-critical one only degrades it.
func (s *HealthService) AddCheck(name string, critical bool, check HealthCheck) {
	s.checks = append(s.checks, namedCheck{name: name, critical: critical, check: check})
	sort.SliceStable(s.checks, func(i, j int) bool { return s.checks[i].name < s.checks[j].name })
}

// WatchPool reports PostgreSQL pool statistics while collectors run.
func (s *HealthService) WatchPool(pool *pgxpool.Pool) {
	s.pool = pool
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start,
		Services:  make(map[string]string, len(s.checks)),
	}

	allCriticalHealthy := true
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := c.check(cctx)
		cancel()

		if err == nil {
			status.Services[c.name] = "healthy"
			s.UpdateHealthMetrics(c.name, true)
			continue
		}

		status.Services[c.name] = "unhealthy"
		s.UpdateHealthMetrics(c.name, false)
		if c.critical {
			allCriticalHealthy = false
			status.Critical = append(status.Critical, c.name)
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", c.name)
		} else {
			status.NonCritical = append(status.NonCritical, c.name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", c.name)
		}
	}

	switch {
	case !allCriticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	status.Latency = time.Since(start)

	return status
}

// StartCollectors samples runtime and pool metrics until ctx is done.
func (s *HealthService) StartCollectors(ctx context.Context) {
	go s.collectSystemMetrics(ctx)
	if s.pool != nil {
		go s.collectDatabaseMetrics(ctx)
	}
}

func (s *HealthService) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&memStats)

		s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
		s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))

		if memStats.NumGC > 0 {
			lastPause := memStats.PauseNs[(memStats.NumGC+255)%256]
			s.systemMetrics.WithLabelValues("gc_pause_ns").Set(float64(lastPause))
		}
	}
}

func (s *HealthService) collectDatabaseMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := s.pool.Stat()

		s.dbConnectionMetrics.WithLabelValues("postgresql", "acquired_conns").Set(float64(stats.AcquiredConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "idle_conns").Set(float64(stats.IdleConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "max_conns").Set(float64(stats.MaxConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "total_conns").Set(float64(stats.TotalConns()))

		if stats.MaxConns() > 0 {
			usage := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
			s.dbConnectionMetrics.WithLabelValues("postgresql", "usage_percent").Set(usage)
		}
	}
}

func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
