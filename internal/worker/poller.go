package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PollerConfig holds configuration for the poller
type PollerConfig struct {
	// PollInterval is how often to sweep for unsynced snapshots (default: 10s)
	PollInterval time.Duration

	// PruneInterval is how often history is trimmed (default: 1h)
	PruneInterval time.Duration

	// KeepRevisions is how many history rows survive a prune (default: 50)
	KeepRevisions int64
}

// DefaultPollerConfig returns sensible defaults
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval:  10 * time.Second,
		PruneInterval: time.Hour,
		KeepRevisions: 50,
	}
}

// Poller periodically runs the sync sweep and the history prune of a
// SyncWorker, independently of the message consumer.
type Poller struct {
	worker *SyncWorker
	config PollerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPoller(worker *SyncWorker, config PollerConfig) *Poller {
	def := DefaultPollerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.PruneInterval <= 0 {
		config.PruneInterval = def.PruneInterval
	}
	if config.KeepRevisions <= 0 {
		config.KeepRevisions = def.KeepRevisions
	}
	return &Poller{worker: worker, config: config}
}

// Start begins the loop. Returns an error if already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Sync poller started",
		"poll_interval", p.config.PollInterval,
		"prune_interval", p.config.PruneInterval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stop, done := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stop)
	select {
	case <-done:
		slog.InfoContext(ctx, "Sync poller stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync poller stop timed out")
		return ctx.Err()
	}
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()
	pruneTicker := time.NewTicker(p.config.PruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			if err := p.worker.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Sync sweep failed", "error", err)
			}
		case <-pruneTicker.C:
			if _, err := p.worker.PruneHistory(ctx, p.config.KeepRevisions); err != nil {
				slog.ErrorContext(ctx, "History prune failed", "error", err)
			}
		}
	}
}
