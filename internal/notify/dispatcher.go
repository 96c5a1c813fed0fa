package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultBufferSize  = 256
	defaultSendTimeout = 5 * time.Second
)

// Dispatcher queues events for a sink on a bounded buffer drained by one
// background goroutine. A full buffer drops the event.
type Dispatcher struct {
	sink        Sink
	queue       chan Event
	sendTimeout time.Duration

	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

func NewDispatcher(sink Sink, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	d := &Dispatcher{
		sink:        sink,
		queue:       make(chan Event, bufferSize),
		sendTimeout: defaultSendTimeout,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		observability.IncrementNotifyFailure("closed")
		return
	}

	select {
	case d.queue <- event:
	default:
		observability.IncrementNotifyFailure("buffer_full")
		zap.L().Warn("notification dropped",
			zap.String("account_id", event.AccountID.String()),
			zap.String("kind", string(event.Kind)),
		)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err := d.sink.Notify(ctx, event)
		cancel()
		if err != nil {
			observability.IncrementNotifyFailure("sink_error")
			zap.L().Warn("notification sink failed",
				zap.Error(err),
				zap.String("account_id", event.AccountID.String()),
				zap.String("kind", string(event.Kind)),
			)
		}
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}
