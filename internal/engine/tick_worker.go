package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickWorker calls fn every interval on its own goroutine until stopped.
type TickWorker struct {
	stop     chan struct{}
	interval time.Duration
	wg       *sync.WaitGroup
	name     string
	fn       func()
	logger   *zap.Logger
}

// NewTickWorker creates a worker. Start must be called to begin ticking.
func NewTickWorker(name string, interval time.Duration, fn func(), wg *sync.WaitGroup, logger *zap.Logger) *TickWorker {
	if logger == nil {
		logger = zap.L()
	}
	return &TickWorker{
		stop:     make(chan struct{}),
		interval: interval,
		wg:       wg,
		fn:       fn,
		name:     name,
		logger:   logger,
	}
}

// Start launches the ticking goroutine.
func (tw *TickWorker) Start() {
	ticker := time.NewTicker(tw.interval)
	tw.wg.Add(1)
	go func() {
		defer tw.wg.Done()
		for {
			select {
			case <-ticker.C:
				tw.fn()
			case <-tw.stop:
				tw.logger.Info("stopping tick worker", zap.String("worker", tw.name))
				ticker.Stop()
				return
			}
		}
	}()
	tw.logger.Info("tick worker started", zap.String("worker", tw.name), zap.Duration("interval", tw.interval))
}

// Stop signals the goroutine to exit. Wait on the WaitGroup to join it.
func (tw *TickWorker) Stop() {
	close(tw.stop)
}
