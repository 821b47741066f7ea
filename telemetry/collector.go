package telemetry

import (
	"sync"
	"time"
)

// PoolStatsProvider is implemented by the connection cache
type PoolStatsProvider interface {
	Counts() (busy, idle int)
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	pool     PoolStatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(pool PoolStatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.pool == nil {
		return
	}

	busy, idle := mc.pool.Counts()
	UpdatePoolHandles(busy, idle)
}
