package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// AsyncTx is a reusable asynchronous message transmitter that funnels
// writes through a single goroutine (fan-in). It provides non-blocking
// enqueue semantics: if the internal buffer is full, SendMessage invokes
// the configured OnDrop hook and returns its error (usually an overflow
// sentinel). This keeps producers from blocking behind a slow or wedged
// serial device.
//
// Life-cycle:
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.SendMessage(msg)
//	a.Close()
//
// After Close returns no more messages are processed; additional
// SendMessage calls are rejected with ErrAsyncTxClosed.
//
// Hooks let the backend keep distinct metrics / logging without
// duplicating the goroutine + buffer plumbing.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan ssh.Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(ssh.Message) error
	hooks  Hooks
	closed atomic.Bool // set when Close is called; prevents enqueue after shutdown
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error (message not sent).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func(ssh.Message)
	// OnDrop is called when the buffer is full; its returned error is
	// returned from SendMessage. If nil, the overflow is silent.
	OnDrop func() error
}

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
func NewAsyncTx(parent context.Context, buf int, send func(ssh.Message) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan ssh.Message, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case m, ok := <-a.ch:
			if !ok { // channel closed
				return
			}
			if err := a.send(m); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter(m)
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// ErrAsyncTxClosed is returned by SendMessage after Close.
var ErrAsyncTxClosed = errors.New("async tx closed")

// SendMessage queues a message for asynchronous transmission or returns
// the drop error if the buffer is full.
func (a *AsyncTx) SendMessage(m ssh.Message) error {
	// Fast-path check so steady-state sends avoid taking the lock when already shut down.
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- m:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the worker and waits for all pending operations to finish.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) { // already closed
		return
	}
	// Cancel context to stop loop, then close channel under the send lock to avoid races.
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
