package server

import (
	"fmt"

	"github.com/ssamtools/go-ssam-server/internal/ctl"
	"github.com/ssamtools/go-ssam-server/internal/msgb"
	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// buildMessage wraps one submission into a ready-to-transmit SSH message,
// stamping SEQ (and RQID for commands) from the server's counters. Buffers
// are sized exactly from the length helpers, so builder errors indicate a
// bad submission rather than a sizing bug.
func (s *Server) buildMessage(sub ctl.Submission) (ssh.Message, error) {
	switch sub.Op {
	case ctl.OpCommand:
		seq := s.seq.Next()
		rqid := s.rqid.Next()
		b := msgb.New(make([]byte, ssh.CommandMessageLength(len(sub.Request.Payload))))
		if err := b.PushCmd(seq, rqid, &sub.Request); err != nil {
			return ssh.Message{}, fmt.Errorf("build command: %w", err)
		}
		return ssh.Message{Type: ssh.FrameTypeDataSeq, Seq: seq, RQID: rqid, Wire: b.Bytes()}, nil
	case ctl.OpAck:
		b := msgb.New(make([]byte, ssh.ControlMessageLength))
		if err := b.PushAck(sub.Seq); err != nil {
			return ssh.Message{}, fmt.Errorf("build ack: %w", err)
		}
		return ssh.Message{Type: ssh.FrameTypeAck, Seq: sub.Seq, Wire: b.Bytes()}, nil
	case ctl.OpNak:
		b := msgb.New(make([]byte, ssh.ControlMessageLength))
		if err := b.PushNak(); err != nil {
			return ssh.Message{}, fmt.Errorf("build nak: %w", err)
		}
		return ssh.Message{Type: ssh.FrameTypeNak, Wire: b.Bytes()}, nil
	default:
		return ssh.Message{}, fmt.Errorf("build: %w (0x%02X)", ctl.ErrUnknownOp, uint8(sub.Op))
	}
}
