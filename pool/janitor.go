package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor sweeps a cache on a fixed interval
type Janitor struct {
	cache    *Cache
	interval time.Duration
	maxIdle  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJanitor creates a janitor that destroys handles idle for at least maxIdle
func NewJanitor(cache *Cache, interval, maxIdle time.Duration) *Janitor {
	return &Janitor{
		cache:    cache,
		interval: interval,
		maxIdle:  maxIdle,
		stopCh:   make(chan struct{}),
	}
}

// Start begins sweeping in the background
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.sweepLoop()
}

// Stop halts sweeping and waits for the loop to exit
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Janitor) sweepLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", j.interval).Dur("max_idle", j.maxIdle).Msg("Connection janitor started")

	for {
		select {
		case <-ticker.C:
			j.cache.Sweep(j.maxIdle)
		case <-j.stopCh:
			return
		}
	}
}
