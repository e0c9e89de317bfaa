// Package writer drains the output ring buffer into a delivery target.
package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redocdc/redocdc/internal/alert"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/ringbuf"
	"github.com/sirupsen/logrus"
)

// ErrInvalidMessage marks a message a target can never deliver. It is
// dropped instead of retried.
var ErrInvalidMessage = errors.New("invalid message")

// Target delivers one message. A failed Write is retried with the same
// message.
type Target interface {
	Write(ctx context.Context, msg []byte) error
	Close(ctx context.Context) error
}

type Options struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Alerts      *alert.Manager
}

type Writer struct {
	name   string
	buf    *ringbuf.Buffer
	target Target
	opts   Options
	log    *logrus.Entry

	written atomic.Uint64
	retries atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func New(name string, buf *ringbuf.Buffer, target Target, opts Options) *Writer {
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Writer{
		name:   name,
		buf:    buf,
		target: target,
		opts:   opts,
		log:    logger.WithComponent("writer").WithField("writer", name),
	}
}

// Written returns the number of delivered messages.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

func (w *Writer) Retries() uint64 {
	return w.retries.Load()
}

// Run delivers messages until the buffer is closed and drained, the buffer
// is shut down or ctx is cancelled. The target is closed on return.
func (w *Writer) Run(ctx context.Context) error {
	defer func() {
		if err := w.target.Close(context.Background()); err != nil {
			w.log.WithError(err).Warn("Failed to close target")
		}
	}()

	for {
		msg, err := w.buf.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.log.WithField("written", w.Written()).Info("Output drained")
				return nil
			}
			if errors.Is(err, ringbuf.ErrShutdown) {
				return ctx.Err()
			}
			return err
		}
		if err := w.deliver(ctx, msg); err != nil {
			return err
		}
	}
}

func (w *Writer) deliver(ctx context.Context, msg []byte) error {
	errorCount := 0

	for {
		err := w.target.Write(ctx, msg)
		if err == nil {
			w.written.Add(1)
			return nil
		}
		if errors.Is(err, ErrInvalidMessage) {
			w.log.WithError(err).Error("Dropping message")
			return nil
		}

		errorCount++
		w.retries.Add(1)
		backoff := w.backoff(errorCount)
		w.log.WithError(err).WithField("retry_in", backoff).Warn("Failed to write message")

		if errorCount == 1 || backoff == w.opts.MaxBackoff {
			_ = w.opts.Alerts.SendSystemAlert(
				"Output Delivery Failing",
				fmt.Sprintf("Writer %s failed to deliver a message: %v. Retrying in %v...", w.name, err, backoff),
				"warning",
			)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Writer) backoff(errorCount int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(errorCount-1))) * w.opts.BaseBackoff
	if backoff > w.opts.MaxBackoff || backoff <= 0 {
		backoff = w.opts.MaxBackoff
	}
	return backoff
}

// Start runs the writer in the background. Wait returns its result.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("writer already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true

	go func() {
		defer close(w.done)
		err := w.Run(ctx)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
	return nil
}

func (w *Writer) Wait() error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	return w.err
}

// Stop abandons undelivered messages and shuts the buffer down.
func (w *Writer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	w.mu.Unlock()

	w.buf.Shutdown()
	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
