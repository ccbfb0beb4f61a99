package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resilient-feed/src/backoff"
	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/metrics"
	"resilient-feed/src/models"
	"resilient-feed/src/observer"
	"resilient-feed/src/registry"
)

// healthyQuorum is the share of healthy endpoints below which the overall
// state is unhealthy, in tenths.
const healthyQuorum = 7

// -----------------------------------------------------------------------------

// target is one monitored endpoint. mu keeps its probe-then-retry sequence
// strictly sequential even when a scheduled cycle and CheckNow overlap.
type target struct {
	name     string
	provider string
	endpoint models.MEndpointConfig
	mu       sync.Mutex
}

// Monitor periodically probes every primary and fallback endpoint.
type Monitor struct {
	name    string
	logger  *logger.Logger
	config  models.MHealthConfig
	prober  interfaces.IProber
	metrics *metrics.Metrics
	targets []*target

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu      sync.RWMutex
	records map[string]*models.MHealthRecord

	changed *observer.Registry[models.MHealthRecord]
	reports *observer.Registry[models.MHealthReport]

	runMu   sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// -----------------------------------------------------------------------------

// NewMonitor registers every endpoint of every provider in reg.
func NewMonitor(reg *registry.Registry, config models.MHealthConfig, prober interfaces.IProber, log *logger.Logger, m *metrics.Metrics) *Monitor {
	if log == nil {
		log = logger.NewNopLogger()
	}

	monitor := &Monitor{
		name:    "health",
		logger:  log,
		config:  config,
		prober:  prober,
		metrics: m,
		sleep:   backoff.SleepWithContext,
		now:     time.Now,
		records: make(map[string]*models.MHealthRecord),
		changed: observer.New[models.MHealthRecord](log, "health-changed"),
		reports: observer.New[models.MHealthReport](log, "health-report"),
	}

	for _, service := range reg.Services() {
		for i, endpoint := range service.Endpoints() {
			name := endpoint.Name
			if name == "" {
				name = service.Name
				if i > 0 {
					name = fmt.Sprintf("%s-fallback-%d", service.Name, i)
				}
			}
			monitor.addTarget(name, service.Name, endpoint)
		}
	}

	return monitor
}

// -----------------------------------------------------------------------------

func (m *Monitor) addTarget(name, provider string, endpoint models.MEndpointConfig) {
	if _, exists := m.records[name]; exists {
		m.logger.Warning("%s : endpoint %s registered twice, keeping the first", m.name, name)
		return
	}
	m.targets = append(m.targets, &target{name: name, provider: provider, endpoint: endpoint})
	m.records[name] = &models.MHealthRecord{
		Name:       name,
		Provider:   provider,
		URL:        endpoint.BaseURL,
		Status:     models.HealthChecking,
		MaxRetries: m.config.MaxRetries,
	}
}

// -----------------------------------------------------------------------------

// StartMonitoring runs one cycle immediately and then one per interval until
// StopMonitoring. Calling it twice is a no-op.
func (m *Monitor) StartMonitoring() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.running.Add(1)
	go m.loop(ctx)

	m.logger.Info("%s : monitoring %d endpoints every %s", m.name, len(m.targets), m.config.Interval)
}

// -----------------------------------------------------------------------------

// StopMonitoring cancels pending waits and in-flight probes and returns once
// the loop has exited.
func (m *Monitor) StopMonitoring() {
	m.runMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.running.Wait()

	m.logger.Info("%s : monitoring stopped", m.name)
}

// -----------------------------------------------------------------------------

func (m *Monitor) loop(ctx context.Context) {
	defer m.running.Done()

	m.runCycle(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// -----------------------------------------------------------------------------

// CheckNow runs one full cycle synchronously and returns its report.
func (m *Monitor) CheckNow(ctx context.Context) models.MHealthReport {
	return m.runCycle(ctx)
}

// -----------------------------------------------------------------------------

// runCycle probes every endpoint concurrently, then publishes the batched report.
func (m *Monitor) runCycle(ctx context.Context) models.MHealthReport {
	var wg sync.WaitGroup
	for _, t := range m.targets {
		wg.Add(1)
		go func(t *target) {
			defer wg.Done()
			m.checkEndpoint(ctx, t)
		}(t)
	}
	wg.Wait()

	report := models.MHealthReport{
		Timestamp: m.now(),
		Records:   m.GetHealthStatus(),
	}
	report.Overall = computeOverall(report.Records)

	if ctx.Err() == nil {
		m.logger.Debug("%s : cycle complete, overall %s", m.name, report.Overall)
		m.reports.Notify(report)
	}
	return report
}

// -----------------------------------------------------------------------------

// checkEndpoint probes one endpoint and retries with exponential backoff.
// The n-th retry waits retry_delay * 2^(n-1), capped at max_retry_delay.
func (m *Monitor) checkEndpoint(ctx context.Context, t *target) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// 1. Each scheduled cycle starts with a fresh retry budget
	m.update(t.name, func(r *models.MHealthRecord) { r.RetryCount = 0 })

	for {
		// 2. Probe
		m.update(t.name, func(r *models.MHealthRecord) { r.Status = models.HealthChecking })

		start := m.now()
		probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		err := m.prober.Probe(probeCtx, t.endpoint)
		cancel()
		finished := m.now()

		// 3. Success
		if err == nil {
			record := m.update(t.name, func(r *models.MHealthRecord) {
				r.Status = models.HealthHealthy
				r.LastCheck = finished
				r.LastSuccess = finished
				r.ResponseTime = finished.Sub(start)
				r.ConsecutiveErrors = 0
				r.RetryCount = 0
				r.LastError = ""
			})
			m.metrics.RecordProbe(record)
			return
		}

		// 4. Failure
		record := m.update(t.name, func(r *models.MHealthRecord) {
			r.Status = models.HealthUnhealthy
			r.LastCheck = finished
			r.ResponseTime = finished.Sub(start)
			r.ConsecutiveErrors++
			r.LastError = err.Error()
		})
		m.metrics.RecordProbe(record)

		if ctx.Err() != nil || record.RetryCount >= m.config.MaxRetries {
			if ctx.Err() == nil {
				m.logger.Warning("%s : %s unhealthy after %d retries: %v", m.name, t.name, record.RetryCount, err)
			}
			return
		}

		// 5. Backoff, then re-probe
		record = m.update(t.name, func(r *models.MHealthRecord) {
			r.RetryCount++
			r.Status = models.HealthReconnecting
		})
		delay := backoff.Capped(m.config.RetryDelay, record.RetryCount-1, m.config.MaxRetryDelay)
		m.logger.Info("%s : %s probe failed (%v), retry %d/%d in %s",
			m.name, t.name, err, record.RetryCount, m.config.MaxRetries, delay)

		if err := m.sleep(ctx, delay); err != nil {
			m.update(t.name, func(r *models.MHealthRecord) { r.Status = models.HealthUnhealthy })
			return
		}
	}
}

// -----------------------------------------------------------------------------

// update applies mutate under the lock and notifies health-changed observers
// when the status moved. It returns a copy of the new record.
func (m *Monitor) update(name string, mutate func(*models.MHealthRecord)) models.MHealthRecord {
	m.mu.Lock()
	record := m.records[name]
	previous := record.Status
	mutate(record)
	snapshot := *record
	m.mu.Unlock()

	if snapshot.Status != previous {
		m.changed.Notify(snapshot)
	}
	return snapshot
}

// -----------------------------------------------------------------------------

// GetServiceStatus returns the record of one endpoint.
func (m *Monitor) GetServiceStatus(name string) (models.MHealthRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[name]
	if !ok {
		return models.MHealthRecord{}, false
	}
	return *record, true
}

// -----------------------------------------------------------------------------

// GetHealthStatus returns a copy of every record keyed by endpoint name.
func (m *Monitor) GetHealthStatus() map[string]models.MHealthRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]models.MHealthRecord, len(m.records))
	for name, record := range m.records {
		snapshot[name] = *record
	}
	return snapshot
}

// -----------------------------------------------------------------------------

// GetOverallHealth aggregates the current records.
func (m *Monitor) GetOverallHealth() models.HealthStatus {
	return computeOverall(m.GetHealthStatus())
}

// -----------------------------------------------------------------------------

// Endpoints returns the monitored endpoint names in registration order.
func (m *Monitor) Endpoints() []string {
	names := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		names = append(names, t.name)
	}
	return names
}

// -----------------------------------------------------------------------------

// OnHealthChanged registers a handler called whenever an endpoint status changes.
func (m *Monitor) OnHealthChanged(handler func(models.MHealthRecord)) string {
	return m.changed.Subscribe(handler)
}

// OnHealthReport registers a handler called after each full cycle.
func (m *Monitor) OnHealthReport(handler func(models.MHealthReport)) string {
	return m.reports.Subscribe(handler)
}

// Unsubscribe removes a handler registered with either method.
func (m *Monitor) Unsubscribe(token string) bool {
	return m.changed.Unsubscribe(token) || m.reports.Unsubscribe(token)
}

// -----------------------------------------------------------------------------

// computeOverall: healthy when every endpoint is healthy, unhealthy when fewer
// than 70% are, degraded otherwise. Checking and reconnecting count as not
// healthy. No endpoints at all is healthy.
func computeOverall(records map[string]models.MHealthRecord) models.HealthStatus {
	total := len(records)
	if total == 0 {
		return models.HealthHealthy
	}

	healthy := 0
	for _, record := range records {
		if record.Status == models.HealthHealthy {
			healthy++
		}
	}

	switch {
	case healthy == total:
		return models.HealthHealthy
	case healthy*10 < total*healthyQuorum:
		return models.HealthUnhealthy
	default:
		return models.HealthDegraded
	}
}
