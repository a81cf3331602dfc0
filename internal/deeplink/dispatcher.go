package deeplink

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// seenLimit caps how many request IDs are remembered for duplicate detection.
const seenLimit = 1024

// Handler receives deep links. It runs on the dispatcher goroutine.
type Handler func(Request)

// Dispatcher delivers each submitted request at most once, on a single
// goroutine. Requests submitted before a handler exists are held until
// SetHandler. Nothing orders delivery against other startup work.
type Dispatcher struct {
	logger  *zap.Logger
	queue   chan Request
	wake    chan struct{}
	limiter *rate.Limiter

	mu      sync.Mutex
	handler Handler
	pending []Request
	seen    map[uuid.UUID]struct{}
	order   []uuid.UUID
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a queue of buffer requests.
// A zero limit disables flood protection.
func NewDispatcher(logger *zap.Logger, buffer int, limit rate.Limit, burst int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &Dispatcher{
		logger:  logger,
		queue:   make(chan Request, buffer),
		wake:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, burst),
		seen:    make(map[uuid.UUID]struct{}),
	}
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-d.queue:
				d.deliver(req)
			case <-d.wake:
				d.flush()
			}
		}
	}()
}

// SetHandler installs h and releases held requests to it.
func (d *Dispatcher) SetHandler(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Submit queues req. It reports false when the request is dropped: an ID
// among the last seenLimit submitted, rate limited, queue full or dispatcher
// stopped.
func (d *Dispatcher) Submit(req Request) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	if _, dup := d.seen[req.ID]; dup {
		d.mu.Unlock()
		d.logger.Debug("Dropping duplicate deep link", zap.Stringer("id", req.ID))
		return false
	}
	d.remember(req.ID)
	d.mu.Unlock()

	if !d.limiter.Allow() {
		d.logger.Warn("Deep link rate limit exceeded, dropping", zap.String("url", req.Redacted()))
		return false
	}

	select {
	case d.queue <- req:
		return true
	default:
		d.logger.Warn("Deep link queue full, dropping", zap.String("url", req.Redacted()))
		return false
	}
}

// remember records id, forgetting the oldest once seenLimit is reached.
// Callers hold d.mu.
func (d *Dispatcher) remember(id uuid.UUID) {
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > seenLimit {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
}

func (d *Dispatcher) deliver(req Request) {
	d.mu.Lock()
	h := d.handler
	if h == nil {
		d.pending = append(d.pending, req)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.call(h, req)
}

func (d *Dispatcher) flush() {
	d.mu.Lock()
	h, pending := d.handler, d.pending
	if h == nil {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	for _, req := range pending {
		d.call(h, req)
	}
}

func (d *Dispatcher) call(h Handler, req Request) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Deep link handler panicked",
				zap.Stringer("id", req.ID),
				zap.Any("panic", r))
		}
	}()
	h(req)
}

// Stop ends delivery. Queued requests that were not delivered are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}
