package services

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/hazards.ersn.net/server/internal/store"
)

// PeriodicSweepService removes expired hazards from stores that do not
// expire records on their own (memory, postgres)
type PeriodicSweepService struct {
	sweeper  store.Sweeper
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewPeriodicSweepService creates a new periodic sweep service
func NewPeriodicSweepService(sweeper store.Sweeper, interval time.Duration) *PeriodicSweepService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PeriodicSweepService{
		sweeper:  sweeper,
		interval: interval,
	}
}

// StartPeriodicSweep begins sweeping in the background until Stop or ctx cancellation
func (p *PeriodicSweepService) StartPeriodicSweep(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.stopChan = make(chan struct{})

	logging.Infow(ctx, "Starting periodic hazard sweep", "interval", p.interval)

	go p.sweepLoop(ctx, p.stopChan)

	return nil
}

// Stop gracefully stops the periodic sweep
func (p *PeriodicSweepService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.running = false
	close(p.stopChan)
}

// IsRunning returns whether periodic sweep is active
func (p *PeriodicSweepService) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PeriodicSweepService) sweepLoop(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Hazard sweep: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debugw(ctx, "Hazard sweep stopping due to context cancellation")
			return
		case <-stop:
			logging.Debugw(ctx, "Hazard sweep stopping due to stop signal")
			return
		case <-ticker.C:
			p.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired hazards and returns how many were removed
func (p *PeriodicSweepService) SweepOnce(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	removed, err := p.sweeper.DeleteExpired(sweepCtx)
	if err != nil {
		logging.Warnw(ctx, "Hazard sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		logging.Debugw(ctx, "Hazard sweep removed expired hazards", "removed", removed)
	}
	return removed
}
