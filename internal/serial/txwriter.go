package serial

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssamtools/go-ssam-server/internal/logging"
	"github.com/ssamtools/go-ssam-server/internal/metrics"
	"github.com/ssamtools/go-ssam-server/internal/ssh"
	"github.com/ssamtools/go-ssam-server/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all serial writes through one goroutine. Messages are
// already fully built wire images; the writer only puts them on the link.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a serial TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, sp Port, buf int) *TXWriter {
	send := func(m ssh.Message) error {
		n, err := sp.Write(m.Wire)
		if err != nil {
			return err
		}
		if n != len(m.Wire) {
			return fmt.Errorf("short write: %d of %d", n, len(m.Wire))
		}
		return nil
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func(m ssh.Message) { metrics.IncSerialTx(len(m.Wire)) },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendMessage queues a message for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendMessage(m ssh.Message) error { return w.base.SendMessage(m) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
