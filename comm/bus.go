package comm

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.jpl.nasa.gov/bdube/mcc2/util"
)

// MaxRetries caps BusOptions.Retries
const MaxRetries = 10

// Exchanger performs one write-then-read exchange.  Transport is the
// production implementation.
type Exchanger interface {
	SendRecv(frame []byte, timeout time.Duration) ([]byte, error)
}

// Request is one exchange submitted to a Bus
type Request struct {
	// Tag identifies the requester in logs and errors, e.g. an axis name
	Tag string

	// Frame is written to the line as-is
	Frame []byte

	// Timeout bounds each attempt, not the whole request
	Timeout time.Duration
}

// BusOptions configures the retry policy of a Bus
type BusOptions struct {
	// Retries is the number of extra attempts made after a timeout.
	// Total attempts are Retries+1.  Values outside 0..MaxRetries are clamped.
	Retries int

	// RetryDelay is the pause between attempts
	RetryDelay time.Duration

	// Logger receives retry warnings; nil uses the logrus standard logger
	Logger logrus.FieldLogger
}

// Bus serializes exchanges from many callers onto one Exchanger.  At most one
// exchange is on the line at any instant, and callers are served in the order
// Execute was called.
type Bus struct {
	line    Exchanger
	retries int
	delay   time.Duration
	log     logrus.FieldLogger
	lock    fifoLock

	mu     sync.Mutex
	closed bool
}

// NewBus returns a Bus that owns line
func NewBus(line Exchanger, opts BusOptions) *Bus {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	retries := int(util.Clamp(int64(opts.Retries), 0, MaxRetries))
	return &Bus{line: line, retries: retries, delay: opts.RetryDelay, log: log}
}

// Execute waits for exclusive use of the line, then performs the exchange.
//
// A TimeoutError is retried up to the configured count with the same frame;
// if every attempt times out a CommunicationError is returned.  A LinkError
// is returned at once.  ctx only bounds the wait for the line: once the frame
// has been written the exchange runs to completion.
func (b *Bus) Execute(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer b.lock.Release()
	if b.isClosed() {
		return nil, &LinkError{Op: "execute", Err: ErrBusClosed}
	}
	return b.exchange(req)
}

func (b *Bus) exchange(req Request) ([]byte, error) {
	var (
		resp     []byte
		attempts int
	)
	op := func() error {
		attempts++
		var err error
		resp, err = b.line.SendRecv(req.Frame, req.Timeout)
		if err == nil {
			return nil
		}
		if IsTimeout(err) {
			return err
		}
		return &backoff.PermanentError{Err: err}
	}
	notify := func(err error, wait time.Duration) {
		b.log.WithFields(logrus.Fields{
			"tag":     req.Tag,
			"attempt": attempts,
			"wait":    wait,
		}).WithError(err).Warn("exchange timed out, retrying")
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(b.delay), uint64(b.retries))
	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return resp, nil
	}
	if pe, ok := err.(*backoff.PermanentError); ok {
		err = pe.Err
	}
	if IsTimeout(err) {
		return nil, &CommunicationError{Tag: req.Tag, Attempts: attempts, Err: err}
	}
	return nil, err
}

// Waiting returns the number of callers blocked behind the exchange in flight
func (b *Bus) Waiting() int {
	return b.lock.Waiting()
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close waits for the exchange in flight, if any, then closes the line if it
// is an io.Closer.  Later calls to Execute fail with ErrBusClosed.
func (b *Bus) Close() error {
	b.lock.Acquire(context.Background())
	b.mu.Lock()
	already := b.closed
	b.closed = true
	b.mu.Unlock()
	b.lock.Release()
	if already {
		return nil
	}
	if c, ok := b.line.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
