package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/logtypes"
	"github.com/kumarabd/gokit/logger"
)

// PumpConfig contains configuration for the per-session ingest queue
type PumpConfig struct {
	QueueSize      int           `json:"queue_size" yaml:"queue_size" default:"256"`
	EnqueueTimeout time.Duration `json:"enqueue_timeout" yaml:"enqueue_timeout" default:"2s"`
}

var (
	// ErrPumpStopped is returned when enqueueing into a stopped pump.
	ErrPumpStopped = errors.New("capture pump stopped")
	// ErrEnqueueTimeout is returned when the queue stays full for EnqueueTimeout.
	ErrEnqueueTimeout = errors.New("enqueue timeout")
)

// queuedItem is either a batch of events or a flush barrier.
type queuedItem struct {
	Source  string
	Entries []logtypes.LogEntry
	done    chan struct{}
}

// Pump is the single consumer that moves producer batches into a Buffer.
type Pump struct {
	buffer *Buffer
	config *PumpConfig
	log    *logger.Handler
	metric *metrics.Handler
	now    func() time.Time

	queue  chan queuedItem
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPump creates a pump draining into buffer. Call Start before Enqueue.
func NewPump(buffer *Buffer, config *PumpConfig, log *logger.Handler, metric *metrics.Handler) *Pump {
	if config == nil {
		config = &PumpConfig{QueueSize: 256, EnqueueTimeout: 2 * time.Second}
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.EnqueueTimeout <= 0 {
		config.EnqueueTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pump{
		buffer: buffer,
		config: config,
		log:    log,
		metric: metric,
		now:    time.Now,
		queue:  make(chan queuedItem, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Buffer returns the buffer this pump feeds.
func (p *Pump) Buffer() *Buffer {
	return p.buffer
}

// Start launches the consumer goroutine.
func (p *Pump) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the consumer and waits for it to exit. Safe to call twice.
func (p *Pump) Stop() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}

func (p *Pump) run() {
	defer p.wg.Done()

	for {
		select {
		case item := <-p.queue:
			p.consume(item)
		case <-p.ctx.Done():
			// Drain what producers already handed over.
			for {
				select {
				case item := <-p.queue:
					p.consume(item)
				default:
					return
				}
			}
		}
	}
}

func (p *Pump) consume(item queuedItem) {
	if item.done != nil {
		close(item.done)
		return
	}

	now := p.now()
	for i := range item.Entries {
		item.Entries[i].Fill(now)
	}
	evicted := p.buffer.AppendAll(item.Entries)

	if p.metric != nil {
		p.metric.AddEventsCaptured(item.Source, len(item.Entries))
		if evicted > 0 {
			p.metric.AddEventsEvicted(evicted)
		}
	}
	if p.log != nil && evicted > 0 {
		p.log.Debug().Int("evicted", evicted).Int("capacity", p.buffer.Capacity()).Msg("capture buffer full, evicted oldest events")
	}
}

// Enqueue hands a batch to the consumer. It blocks for at most EnqueueTimeout.
func (p *Pump) Enqueue(ctx context.Context, source string, entries []logtypes.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	// The consumer fills defaults in place; it gets its own copy.
	batch := append([]logtypes.LogEntry(nil), entries...)
	return p.send(ctx, queuedItem{Source: source, Entries: batch})
}

// Flush returns once every batch enqueued before the call has been appended.
func (p *Pump) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := p.send(ctx, queuedItem{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPumpStopped
	}
}

func (p *Pump) send(ctx context.Context, item queuedItem) error {
	if p.ctx.Err() != nil {
		return ErrPumpStopped
	}

	timer := time.NewTimer(p.config.EnqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- item:
		return nil
	case <-timer.C:
		if p.metric != nil {
			p.metric.IncIngestRejectedTotal("enqueue_timeout")
		}
		return fmt.Errorf("%w after %v", ErrEnqueueTimeout, p.config.EnqueueTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPumpStopped
	}
}
