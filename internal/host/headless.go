package host

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Headless runs without a window. It exits on Quit, ctx cancellation,
// SIGINT or SIGTERM.
type Headless struct {
	logger *zap.Logger
	quit   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	events []Event
	keep   int
}

func NewHeadless(logger *zap.Logger) *Headless {
	return &Headless{
		logger: logger.Named("host"),
		quit:   make(chan struct{}),
		keep:   64,
	}
}

func (h *Headless) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h.logger.Info("Running headless")
	select {
	case <-ctx.Done():
		h.logger.Info("Shutting down", zap.NamedError("reason", context.Cause(ctx)))
	case <-h.quit:
		h.logger.Info("Quit requested")
	}
	return nil
}

func (h *Headless) Emit(ev Event) {
	h.logger.Debug("Event", zap.String("name", ev.Name), zap.Any("payload", ev.Payload))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if len(h.events) > h.keep {
		h.events = h.events[len(h.events)-h.keep:]
	}
}

// Events returns the most recent events.
func (h *Headless) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

func (h *Headless) Quit() {
	h.once.Do(func() { close(h.quit) })
}
