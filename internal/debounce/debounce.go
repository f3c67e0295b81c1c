package debounce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay matches the editor autosave delay.
const DefaultDelay = 500 * time.Millisecond

// Debouncer runs the most recently submitted action once no new action has been
// submitted for the configured delay.
type Debouncer struct {
	delay  time.Duration
	parent context.Context
	log    *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Debouncer whose pending actions are also cancelled when ctx is.
func New(ctx context.Context, delay time.Duration, log *zap.SugaredLogger) *Debouncer {
	return &Debouncer{delay: delay, parent: ctx, log: log}
}

// Execute cancels any pending action and schedules fn after the delay. fn
// receives a context that is cancelled if a newer Execute or Cancel arrives
// while it runs.
func (d *Debouncer) Execute(fn func(ctx context.Context) error) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			d.log.Warnf("Debounced action failed: %v", err)
		}
	}()
}

// Cancel drops any pending action.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
