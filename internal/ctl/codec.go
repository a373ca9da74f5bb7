// Package ctl implements the host-side control protocol spoken by TCP
// clients of the server. It is a thin submission wrapper and is unrelated
// to the SSH wire format: clients describe what to send (a command
// request, or an explicit ACK/NAK emission) and the server does the frame
// building.
package ctl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ssamtools/go-ssam-server/internal/metrics"
	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// Op identifies a submission kind.
type Op uint8

const (
	OpCommand Op = 0x01 // wrap a request into a sequenced command frame
	OpAck     Op = 0x02 // emit an ACK frame for a given sequence ID
	OpNak     Op = 0x03 // emit a NAK frame
)

// Submission is one decoded client record.
//
// Wire layout (all multi-byte fields little-endian):
//
//	command: 0x01 | tc(1) tid(1) iid(1) cid(1) | plen(2) | payload
//	ack:     0x02 | seq(1)
//	nak:     0x03
type Submission struct {
	Op      Op
	Seq     uint8       // OpAck only
	Request ssh.Request // OpCommand only
}

// ErrUnknownOp is returned for an unrecognized submission opcode.
var ErrUnknownOp = errors.New("ctl: unknown op")

// ErrTruncated is returned when the underlying reader ends mid-record.
var ErrTruncated = errors.New("ctl: truncated submission")

// ErrOversizePayload is returned when a declared payload length exceeds
// what a command frame can carry.
var ErrOversizePayload = errors.New("ctl: payload too large")

// Codec encodes/decodes control submissions. Stateless and safe for
// concurrent use.
type Codec struct{}

// Decode reads exactly one submission from r. It returns io.EOF if called
// at a clean record boundary with no more data available.
func (c *Codec) Decode(r io.Reader) (Submission, error) {
	var s Submission
	var op [1]byte
	if _, err := io.ReadFull(r, op[:]); err != nil {
		return s, err
	}
	s.Op = Op(op[0])
	switch s.Op {
	case OpCommand:
		var hdr [6]byte // tc tid iid cid plen(2)
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			metrics.IncMalformed()
			return s, fmt.Errorf("ctl decode header: %w", truncated(err))
		}
		s.Request.TargetCategory = hdr[0]
		s.Request.TargetID = hdr[1]
		s.Request.InstanceID = hdr[2]
		s.Request.CommandID = hdr[3]
		plen := int(binary.LittleEndian.Uint16(hdr[4:6]))
		if plen > ssh.MaxCommandPayload {
			metrics.IncMalformed()
			return s, fmt.Errorf("ctl decode: %w (%d)", ErrOversizePayload, plen)
		}
		if plen > 0 {
			s.Request.Payload = make([]byte, plen)
			if _, err := io.ReadFull(r, s.Request.Payload); err != nil {
				metrics.IncMalformed()
				return s, fmt.Errorf("ctl decode payload: %w", truncated(err))
			}
		}
		return s, nil
	case OpAck:
		var seq [1]byte
		if _, err := io.ReadFull(r, seq[:]); err != nil {
			metrics.IncMalformed()
			return s, fmt.Errorf("ctl decode seq: %w", truncated(err))
		}
		s.Seq = seq[0]
		return s, nil
	case OpNak:
		return s, nil
	default:
		metrics.IncMalformed()
		return s, fmt.Errorf("ctl decode: %w (0x%02X)", ErrUnknownOp, op[0])
	}
}

// DecodeN decodes up to max submissions (if max>0) or until EOF (if max<=0)
// invoking onSub for each. It returns the number decoded and the terminal
// error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onSub func(Submission)) (int, error) {
	var n int
	for max <= 0 || n < max {
		s, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onSub(s)
		n++
	}
	return n, nil
}

// Encode packs submissions into a single byte slice. Used by client-side
// tooling and tests.
func (c *Codec) Encode(subs []Submission) []byte {
	if len(subs) == 0 {
		return nil
	}
	size := 0
	for i := range subs {
		size += encodedLen(&subs[i])
	}
	out := make([]byte, 0, size)
	for i := range subs {
		out = appendSubmission(out, &subs[i])
	}
	return out
}

// EncodeTo writes the wire representation of submissions to w and returns
// bytes written.
func (c *Codec) EncodeTo(w io.Writer, subs []Submission) (int, error) {
	var total int
	for i := range subs {
		n, err := w.Write(appendSubmission(nil, &subs[i]))
		total += n
		if err != nil {
			return total, fmt.Errorf("ctl encode: %w", err)
		}
	}
	return total, nil
}

func encodedLen(s *Submission) int {
	switch s.Op {
	case OpCommand:
		return 7 + len(s.Request.Payload)
	case OpAck:
		return 2
	default:
		return 1
	}
}

func appendSubmission(dst []byte, s *Submission) []byte {
	dst = append(dst, byte(s.Op))
	switch s.Op {
	case OpCommand:
		dst = append(dst, s.Request.TargetCategory, s.Request.TargetID, s.Request.InstanceID, s.Request.CommandID)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(s.Request.Payload)))
		dst = append(dst, s.Request.Payload...)
	case OpAck:
		dst = append(dst, s.Seq)
	}
	return dst
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
