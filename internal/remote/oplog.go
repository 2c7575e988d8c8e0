package remote

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
)

// OpKind identifies an outbound operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one queued outbound notification.
type Op struct {
	Kind     OpKind
	Clip     *clip.Clip // create, update
	ID       string     // delete (and bookkeeping for create/update)
	Enqueued time.Time
}

// OpLogConfig holds op log configuration.
type OpLogConfig struct {
	// QueueSize bounds the pending queue. A full queue drops the
	// newest op (counted in Stats) rather than blocking the mutation
	// that produced it.
	QueueSize int

	// MaxAttempts is how many times an op is tried before being
	// marked failed.
	MaxAttempts int

	// RetryDelay is the base delay between attempts; attempt n waits
	// n * RetryDelay (linear backoff).
	RetryDelay time.Duration

	// OnAcked is called with the record id after a notify succeeds.
	// Optional; the engine uses it to mark records acked.
	OnAcked func(id string)

	// OnFailed is called with a *SyncNotifyError after MaxAttempts
	// exhausted. Optional.
	OnFailed func(id string, err error)

	// Logger for op log activity.
	Logger *log.Logger
}

// DefaultOpLogConfig returns sensible defaults.
func DefaultOpLogConfig() *OpLogConfig {
	return &OpLogConfig{
		QueueSize:   256,
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		Logger:      log.New(os.Stderr, "[oplog] ", log.LstdFlags),
	}
}

// SyncNotifyError reports an outbound notification whose retries were
// exhausted. Observable through OnFailed and the log only; the mutation
// that produced the op never sees it.
type SyncNotifyError struct {
	Kind     OpKind
	ID       string
	Attempts int
	Err      error
}

func (e *SyncNotifyError) Error() string {
	return fmt.Sprintf("notify %s %s failed after %d attempts: %v", e.Kind, e.ID, e.Attempts, e.Err)
}

func (e *SyncNotifyError) Unwrap() error { return e.Err }

// OpLogStats counts op log outcomes. Failures are observable here and
// in the log; they are never surfaced to the mutation that caused the
// notify.
type OpLogStats struct {
	Acked   int64
	Failed  int64
	Dropped int64
}

// OpLog is the fire-and-forget channel between the engine and the
// backend notifier.
//
// Local mutations enqueue ops without blocking; a single worker drains
// the queue, retrying transient failures with linear backoff. Retry
// state is in-process only: ops pending at shutdown are lost, matching
// the fire-and-forget contract (records stay sync_state=pending and a
// future full sync reconciles them).
type OpLog struct {
	notifier Notifier
	config   *OpLogConfig

	ops chan Op

	acked   atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOpLog creates an op log in front of the given notifier.
func NewOpLog(notifier Notifier, config *OpLogConfig) (*OpLog, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if config == nil {
		config = DefaultOpLogConfig()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[oplog] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &OpLog{
		notifier: notifier,
		config:   config,
		ops:      make(chan Op, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start launches the worker goroutine.
func (o *OpLog) Start() {
	o.wg.Add(1)
	go o.worker()
}

// Stop shuts the worker down. Pending ops are discarded.
func (o *OpLog) Stop() {
	o.cancel()
	o.wg.Wait()
}

// Stats returns a snapshot of op log counters.
func (o *OpLog) Stats() OpLogStats {
	return OpLogStats{
		Acked:   o.acked.Load(),
		Failed:  o.failed.Load(),
		Dropped: o.dropped.Load(),
	}
}

// EnqueueCreated queues a create notification. Never blocks.
func (o *OpLog) EnqueueCreated(c *clip.Clip) {
	o.enqueue(Op{Kind: OpCreate, Clip: c, ID: c.ID})
}

// EnqueueUpdated queues an update notification. Never blocks.
func (o *OpLog) EnqueueUpdated(c *clip.Clip) {
	o.enqueue(Op{Kind: OpUpdate, Clip: c, ID: c.ID})
}

// EnqueueDeleted queues a delete notification. Never blocks.
func (o *OpLog) EnqueueDeleted(id string) {
	o.enqueue(Op{Kind: OpDelete, ID: id})
}

func (o *OpLog) enqueue(op Op) {
	op.Enqueued = time.Now()

	select {
	case o.ops <- op:
	case <-o.ctx.Done():
	default:
		o.dropped.Add(1)
		o.config.Logger.Printf("Warning: op queue full, dropping %s for %s", op.Kind, op.ID)
	}
}

// worker drains the queue, one op at a time.
func (o *OpLog) worker() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return

		case op := <-o.ops:
			o.process(op)
		}
	}
}

// process tries an op up to MaxAttempts times with linear backoff.
func (o *OpLog) process(op Op) {
	var err error

	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-o.ctx.Done():
				return
			case <-time.After(time.Duration(attempt-1) * o.config.RetryDelay):
			}
		}

		err = o.send(op)
		if err == nil {
			o.acked.Add(1)
			if o.config.OnAcked != nil {
				o.config.OnAcked(op.ID)
			}
			return
		}

		o.config.Logger.Printf("Notify %s %s failed (attempt %d/%d): %v",
			op.Kind, op.ID, attempt, o.config.MaxAttempts, err)
	}

	nerr := &SyncNotifyError{Kind: op.Kind, ID: op.ID, Attempts: o.config.MaxAttempts, Err: err}
	o.config.Logger.Printf("Giving up: %v", nerr)

	o.failed.Add(1)
	if o.config.OnFailed != nil {
		o.config.OnFailed(op.ID, nerr)
	}
}

func (o *OpLog) send(op Op) error {
	ctx, cancel := context.WithTimeout(o.ctx, 10*time.Second)
	defer cancel()

	switch op.Kind {
	case OpCreate:
		return o.notifier.NotifyCreated(ctx, op.Clip)
	case OpUpdate:
		return o.notifier.NotifyUpdated(ctx, op.Clip)
	case OpDelete:
		return o.notifier.NotifyDeleted(ctx, op.ID)
	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}
