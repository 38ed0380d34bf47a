package pollers

import (
	"context"
	"time"
)

// Poller is a background job driven by a ticker
type Poller interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// PollerConfig holds configuration for a poller
type PollerConfig struct {
	Name       string
	Enabled    bool
	Interval   time.Duration
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}
