package pollers

import (
	"context"
	"sync"
	"time"

	"github.com/paperminder/paperminder/internal/logging"
)

// BasePoller provides the ticker loop shared by all pollers. The first run
// happens immediately on start; in-flight ticks finish before Stop returns.
type BasePoller struct {
	config   PollerConfig
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	pollFunc func(ctx context.Context) error
}

// NewBasePoller creates a new base poller instance
func NewBasePoller(config PollerConfig, pollFunc func(ctx context.Context) error) *BasePoller {
	return &BasePoller{
		config:   config,
		pollFunc: pollFunc,
	}
}

// Name returns the name of the poller
func (p *BasePoller) Name() string {
	return p.config.Name
}

// Start begins the polling loop
func (p *BasePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if !p.config.Enabled {
		logging.InfoWithComponent(logging.ComponentScheduler, "Poller disabled, skipping start", "poller", p.config.Name)
		return nil
	}

	logging.InfoWithComponent(logging.ComponentScheduler, "Starting poller",
		"poller", p.config.Name, "interval", p.config.Interval)

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go p.pollLoop()

	return nil
}

// Stop cancels the poller cooperatively and waits for the in-flight tick.
func (p *BasePoller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	logging.InfoWithComponent(logging.ComponentScheduler, "Poller stopped", "poller", p.config.Name)
	return nil
}

// IsRunning returns true if the poller is currently running
func (p *BasePoller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *BasePoller) pollLoop() {
	defer p.wg.Done()

	p.executeWithRetry()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.executeWithRetry()
		}
	}
}

func (p *BasePoller) executeWithRetry() {
	retries := p.config.MaxRetries
	if retries < 1 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		if p.ctx.Err() != nil {
			return
		}

		ctx := p.ctx
		cancel := context.CancelFunc(func() {})
		if p.config.Timeout > 0 {
			ctx, cancel = context.WithTimeout(p.ctx, p.config.Timeout)
		}
		err := p.pollFunc(ctx)
		cancel()

		if err == nil {
			return
		}

		logging.WarnWithComponent(logging.ComponentScheduler, "Poller tick failed",
			"poller", p.config.Name, "attempt", attempt+1, "of", retries, "error", err)

		if attempt < retries-1 {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.config.RetryDelay):
			}
		}
	}
}
