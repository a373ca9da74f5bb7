package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/ssamtools/go-ssam-server/internal/ctl"
	"github.com/ssamtools/go-ssam-server/internal/hub"
	"github.com/ssamtools/go-ssam-server/internal/metrics"
	"github.com/ssamtools/go-ssam-server/internal/serial"
)

// process wraps one decoded submission into a wire message, hands it to the
// backend and fans it out to all monitors.
func (s *Server) process(sub ctl.Submission, logger *slog.Logger) {
	metrics.IncTCPRx()
	m, err := s.buildMessage(sub)
	if err != nil {
		metrics.IncEncodeFailure()
		metrics.IncError(metrics.ErrEncode)
		s.totalEncodeFail.Add(1)
		logger.Warn("encode_reject", "op", uint8(sub.Op), "error", err)
		return
	}
	if err := s.Send(m); err != nil {
		if errors.Is(err, serial.ErrTxOverflow) {
			s.totalBackendOver.Add(1)
			logger.Debug("backend_overflow_drop", "type", m.Type.String(), "seq", m.Seq, "rqid", m.RQID)
		} else {
			wrap := fmt.Errorf("%w: %v", ErrBackendTx, err)
			s.setError(wrap)
			s.totalBackendErrors.Add(1)
			logger.Error("backend_tx_error", "error", wrap, "type", m.Type.String(), "seq", m.Seq)
		}
	}
	if s.Hub != nil {
		s.Hub.Broadcast(m)
	}
}

func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			var count int
			var err error
			if mfd, ok := s.Codec.(interface {
				DecodeN(io.Reader, int, func(ctl.Submission)) (int, error)
			}); ok {
				count, err = mfd.DecodeN(conn, 16, func(sub ctl.Submission) { s.process(sub, logger) })
			} else {
				var sub ctl.Submission
				sub, err = s.Codec.Decode(conn)
				if err == nil {
					s.process(sub, logger)
					count = 1
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			if count == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
