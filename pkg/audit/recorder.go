package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"workbench-hq/keywarden/pkg/telemetry/logging"
)

// Config contains configuration for the Recorder.
type Config struct {
	// BufferSize is the capacity of the async event channel.
	// Default: 1024
	BufferSize int

	// WriteTimeout bounds a single store write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Logger receives recorder diagnostics. Nil means no output.
	Logger *logging.Logger
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:   1024,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder journals pool events asynchronously. Record never blocks:
// when the buffer is full the event is dropped and counted, because a
// slow journal must never stall a checkout.
type Recorder struct {
	store     Store
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
	timeout   time.Duration
	logger    *logging.Logger
}

// NewRecorder creates a recorder writing to the given store and starts
// its background worker.
func NewRecorder(store Store, cfg Config) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	r := &Recorder{
		store:   store,
		events:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
		timeout: cfg.WriteTimeout,
		logger:  cfg.Logger,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("audit recorder started", "buffer_size", cfg.BufferSize)

	return r
}

// Record enqueues an event for async persistence. Missing ID and Time
// fields are filled in. Returns immediately; a full buffer drops the
// event.
func (r *Recorder) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the event buffer and stops the worker. The store itself
// is not closed; its owner does that.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		if n := r.dropped.Load(); n > 0 {
			r.logger.Warn("audit recorder dropped events", "dropped", n)
		}
	})
	return nil
}

// worker drains the event channel and writes events to the store.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.events:
			r.write(e)

		case <-r.done:
			// Drain remaining events before exit.
			for {
				select {
				case e := <-r.events:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

// write persists a single event.
func (r *Recorder) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Append(ctx, e); err != nil {
		r.logger.Error("failed to journal pool event",
			"event_id", e.ID,
			"kind", string(e.Kind),
			"key_id", e.KeyID,
			"error", err,
		)
	}
}
