// Package msgb builds Surface Serial Hub wire messages. A MessageBuffer is
// a bounded append-only cursor over caller-supplied storage; the builder
// functions layered on it each emit one well-defined wire unit (ACK frame,
// NAK frame, command frame) as a fixed recipe of primitive writes.
//
// The buffer performs no allocation and no I/O. It is not safe for
// concurrent use; build one message to completion on a buffer before
// handing it to the transport.
package msgb

import (
	"encoding/binary"
	"errors"

	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// ErrBufferExhausted is returned when a write would pass the end of the
// backing storage. It indicates the caller mis-sized the buffer; a buffer
// that produced this error must not be transmitted.
var ErrBufferExhausted = errors.New("msgb: buffer exhausted")

// ErrPayloadTooLarge is returned by PushCmd when the request payload does
// not fit the frame length field together with the command block header.
var ErrPayloadTooLarge = errors.New("msgb: command payload too large")

// MessageBuffer is a bounded write cursor over a fixed-capacity byte slice.
// It tracks the next write position and guarantees no write ever exceeds
// the backing capacity; a failed write leaves the position unchanged and
// writes nothing, not even partially.
type MessageBuffer struct {
	buf  []byte
	used int
}

// New binds a message buffer to the given backing storage. The buffer does
// not own the storage; it must stay valid for the buffer's entire use.
func New(storage []byte) *MessageBuffer {
	return &MessageBuffer{buf: storage}
}

// BytesUsed returns the number of bytes written so far.
func (b *MessageBuffer) BytesUsed() int { return b.used }

// Bytes returns the written prefix of the backing storage.
func (b *MessageBuffer) Bytes() []byte { return b.buf[:b.used] }

func (b *MessageBuffer) remaining() int { return len(b.buf) - b.used }

// PushU16 appends value in little-endian byte order.
func (b *MessageBuffer) PushU16(value uint16) error {
	if b.remaining() < 2 {
		return ErrBufferExhausted
	}
	binary.LittleEndian.PutUint16(b.buf[b.used:], value)
	b.used += 2
	return nil
}

// PushBuf appends data verbatim.
func (b *MessageBuffer) PushBuf(data []byte) error {
	if b.remaining() < len(data) {
		return ErrBufferExhausted
	}
	copy(b.buf[b.used:], data)
	b.used += len(data)
	return nil
}

// PushCRC computes the protocol CRC-16 of data and appends it.
func (b *MessageBuffer) PushCRC(data []byte) error {
	return b.PushU16(ssh.CRC(data))
}

// PushSyn appends the SYN marker.
func (b *MessageBuffer) PushSyn() error {
	return b.PushU16(ssh.MsgSyn)
}

// PushFrame appends a frame header followed by its CRC. The CRC covers
// exactly the four header bytes just written, never the payload.
func (b *MessageBuffer) PushFrame(ty ssh.FrameType, length uint16, seq uint8) error {
	if b.remaining() < ssh.FrameLength {
		return ErrBufferExhausted
	}
	begin := b.used
	b.buf[begin] = byte(ty)
	binary.LittleEndian.PutUint16(b.buf[begin+1:], length)
	b.buf[begin+3] = seq
	b.used += ssh.FrameLength
	return b.PushCRC(b.buf[begin:b.used])
}

// PushAck appends a complete ACK frame for the given sequence ID. ACK
// frames carry no payload, but the wire format still reserves the trailing
// payload-CRC slot; it holds the CRC of the empty byte sequence.
func (b *MessageBuffer) PushAck(seq uint8) error {
	if err := b.PushSyn(); err != nil {
		return err
	}
	if err := b.PushFrame(ssh.FrameTypeAck, 0, seq); err != nil {
		return err
	}
	return b.PushCRC(nil)
}

// PushNak appends a complete NAK frame. NAK frames are unsequenced; their
// sequence field is zero.
func (b *MessageBuffer) PushNak() error {
	if err := b.PushSyn(); err != nil {
		return err
	}
	if err := b.PushFrame(ssh.FrameTypeNak, 0, 0); err != nil {
		return err
	}
	return b.PushCRC(nil)
}

// PushCmd appends a complete command frame wrapping rqst: SYN, a
// sequenced-data frame header (with CRC), the command block header, the
// raw payload, and the trailing CRC spanning the command block header and
// payload together.
func (b *MessageBuffer) PushCmd(seq uint8, rqid uint16, rqst *ssh.Request) error {
	if len(rqst.Payload) > ssh.MaxCommandPayload {
		return ErrPayloadTooLarge
	}
	if err := b.PushSyn(); err != nil {
		return err
	}
	length := uint16(ssh.CommandLength + len(rqst.Payload))
	if err := b.PushFrame(ssh.FrameTypeDataSeq, length, seq); err != nil {
		return err
	}

	if b.remaining() < ssh.CommandLength {
		return ErrBufferExhausted
	}
	begin := b.used
	b.buf[begin] = byte(ssh.PayloadTypeCommand)
	b.buf[begin+1] = rqst.TargetCategory
	b.buf[begin+2] = rqst.TargetID
	b.buf[begin+3] = 0x00 // TID-in: reserved for controller-originated addressing
	b.buf[begin+4] = rqst.InstanceID
	binary.LittleEndian.PutUint16(b.buf[begin+5:], rqid)
	b.buf[begin+7] = rqst.CommandID
	b.used += ssh.CommandLength

	if err := b.PushBuf(rqst.Payload); err != nil {
		return err
	}
	return b.PushCRC(b.buf[begin:b.used])
}
