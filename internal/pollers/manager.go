package pollers

import (
	"context"
	"sync"

	"github.com/paperminder/paperminder/internal/logging"
)

// Manager owns the lifecycle of all registered pollers
type Manager struct {
	pollers map[string]Poller
	mu      sync.RWMutex
	cancel  context.CancelFunc
	running bool
}

// NewManager creates a new poller manager
func NewManager() *Manager {
	return &Manager{
		pollers: make(map[string]Poller),
	}
}

// Register adds a poller to the manager
func (m *Manager) Register(poller Poller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollers[poller.Name()] = poller
}

// Start starts all registered pollers
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for name, poller := range m.pollers {
		if err := poller.Start(ctx); err != nil {
			logging.ErrorWithComponent(logging.ComponentScheduler, "Failed to start poller",
				"poller", name, "error", err)
		}
	}
	return nil
}

// Stop stops all pollers gracefully
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var wg sync.WaitGroup
	for name, poller := range m.pollers {
		if poller.IsRunning() {
			wg.Add(1)
			go func(name string, p Poller) {
				defer wg.Done()
				if err := p.Stop(); err != nil {
					logging.ErrorWithComponent(logging.ComponentScheduler, "Error stopping poller",
						"poller", name, "error", err)
				}
			}(name, poller)
		}
	}

	wg.Wait()
	m.cancel()
	m.running = false
	return nil
}

// IsRunning returns true if the manager is running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
