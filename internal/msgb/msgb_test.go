package msgb

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// Wire fixtures pinned against the protocol's published discriminants:
// SYN AA 55, ACK 0x40, NAK 0x04, DATA_SEQ 0x80, command payload type 0x80,
// CRC-16/CCITT-FALSE.
var (
	ackSeq5Wire = []byte{0xAA, 0x55, 0x40, 0x00, 0x00, 0x05, 0xF9, 0xBA, 0xFF, 0xFF}
	nakWire     = []byte{0xAA, 0x55, 0x04, 0x00, 0x00, 0x00, 0x31, 0x4E, 0xFF, 0xFF}
	ackSeq0Wire = []byte{0xAA, 0x55, 0x40, 0x00, 0x00, 0x00, 0x5C, 0xEA, 0xFF, 0xFF}
)

func TestPushAckWire(t *testing.T) {
	storage := make([]byte, ssh.ControlMessageLength)
	b := New(storage)
	if err := b.PushAck(5); err != nil {
		t.Fatalf("PushAck: %v", err)
	}
	if got := b.Bytes(); !bytes.Equal(got, ackSeq5Wire) {
		t.Fatalf("ACK wire mismatch\ngot  % X\nwant % X", got, ackSeq5Wire)
	}
	if b.BytesUsed() != ssh.ControlMessageLength {
		t.Fatalf("BytesUsed = %d, want %d", b.BytesUsed(), ssh.ControlMessageLength)
	}
}

func TestPushNakWire(t *testing.T) {
	b := New(make([]byte, ssh.ControlMessageLength))
	if err := b.PushNak(); err != nil {
		t.Fatalf("PushNak: %v", err)
	}
	if got := b.Bytes(); !bytes.Equal(got, nakWire) {
		t.Fatalf("NAK wire mismatch\ngot  % X\nwant % X", got, nakWire)
	}
}

// ACK and NAK frames must have identical layout, differing only in the
// frame-type byte, the sequence byte and (consequently) the header CRC.
func TestAckNakLayout(t *testing.T) {
	a := New(make([]byte, ssh.ControlMessageLength))
	n := New(make([]byte, ssh.ControlMessageLength))
	if err := a.PushAck(5); err != nil {
		t.Fatalf("PushAck: %v", err)
	}
	if err := n.PushNak(); err != nil {
		t.Fatalf("PushNak: %v", err)
	}
	aw, nw := a.Bytes(), n.Bytes()
	if len(aw) != len(nw) {
		t.Fatalf("length mismatch: ack=%d nak=%d", len(aw), len(nw))
	}
	for i := range aw {
		diff := aw[i] != nw[i]
		switch i {
		case 2, 5, 6, 7: // type, seq, header CRC
		default:
			if diff {
				t.Fatalf("byte %d differs: ack=%02X nak=%02X", i, aw[i], nw[i])
			}
		}
	}
	// Header CRCs must each cover exactly their own header bytes.
	for _, w := range [][]byte{aw, nw} {
		want := ssh.CRC(w[2:6])
		if got := binary.LittleEndian.Uint16(w[6:8]); got != want {
			t.Fatalf("header CRC = %04X, want %04X", got, want)
		}
	}
}

func TestPushCmdWire(t *testing.T) {
	tests := []struct {
		name string
		seq  uint8
		rqid uint16
		rqst ssh.Request
		want []byte
	}{
		{
			name: "two byte payload",
			seq:  1,
			rqid: 0x0042,
			rqst: ssh.Request{TargetCategory: 0x01, TargetID: 0x02, InstanceID: 0x00, CommandID: 0x03, Payload: []byte{0xAA, 0xBB}},
			want: []byte{
				0xAA, 0x55, // SYN
				0x80, 0x0A, 0x00, 0x01, // frame header: DATA_SEQ, len=10, seq=1
				0x18, 0x8E, // header CRC
				0x80, 0x01, 0x02, 0x00, 0x00, 0x42, 0x00, 0x03, // command block header
				0xAA, 0xBB, // payload
				0x36, 0x89, // command CRC
			},
		},
		{
			name: "empty payload",
			seq:  0x10,
			rqid: 0x1234,
			rqst: ssh.Request{TargetCategory: 0x15, TargetID: 0x01, InstanceID: 0x02, CommandID: 0x0B},
			want: []byte{
				0xAA, 0x55,
				0x80, 0x08, 0x00, 0x10,
				0x68, 0xE2,
				0x80, 0x15, 0x01, 0x00, 0x02, 0x34, 0x12, 0x0B,
				0xB4, 0xE7,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := New(make([]byte, ssh.CommandMessageLength(len(tc.rqst.Payload))))
			if err := b.PushCmd(tc.seq, tc.rqid, &tc.rqst); err != nil {
				t.Fatalf("PushCmd: %v", err)
			}
			if got := b.Bytes(); !bytes.Equal(got, tc.want) {
				t.Fatalf("command wire mismatch\ngot  % X\nwant % X", got, tc.want)
			}
		})
	}
}

// A receiver must be able to recover every request field from the output.
func TestPushCmdFieldRecovery(t *testing.T) {
	rqst := ssh.Request{
		TargetCategory: 0x11,
		TargetID:       0x02,
		InstanceID:     0x03,
		CommandID:      0x2D,
		Payload:        []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00},
	}
	b := New(make([]byte, ssh.CommandMessageLength(len(rqst.Payload))))
	if err := b.PushCmd(0x7F, 0xBEEF, &rqst); err != nil {
		t.Fatalf("PushCmd: %v", err)
	}
	w := b.Bytes()

	if got := binary.LittleEndian.Uint16(w[0:2]); got != ssh.MsgSyn {
		t.Fatalf("SYN = %04X, want %04X", got, ssh.MsgSyn)
	}
	if w[2] != byte(ssh.FrameTypeDataSeq) {
		t.Fatalf("frame type = %02X", w[2])
	}
	flen := binary.LittleEndian.Uint16(w[3:5])
	if int(flen) != ssh.CommandLength+len(rqst.Payload) {
		t.Fatalf("frame len = %d, want %d", flen, ssh.CommandLength+len(rqst.Payload))
	}
	if w[5] != 0x7F {
		t.Fatalf("seq = %02X", w[5])
	}
	cmd := w[8 : 8+int(flen)]
	if cmd[0] != byte(ssh.PayloadTypeCommand) || cmd[1] != rqst.TargetCategory ||
		cmd[2] != rqst.TargetID || cmd[3] != 0x00 || cmd[4] != rqst.InstanceID ||
		binary.LittleEndian.Uint16(cmd[5:7]) != 0xBEEF || cmd[7] != rqst.CommandID {
		t.Fatalf("command header mismatch: % X", cmd[:ssh.CommandLength])
	}
	if !bytes.Equal(cmd[ssh.CommandLength:], rqst.Payload) {
		t.Fatalf("payload mismatch: % X", cmd[ssh.CommandLength:])
	}
}

// Every checksum a builder writes must equal the CRC of exactly the bytes
// of its own block, recomputed from the output.
func TestChecksumSpans(t *testing.T) {
	payload := make([]byte, 32)
	rand.Read(payload)
	rqst := ssh.Request{TargetCategory: 1, TargetID: 1, InstanceID: 0, CommandID: 9, Payload: payload}
	b := New(make([]byte, ssh.CommandMessageLength(len(payload))))
	if err := b.PushCmd(3, 0x0101, &rqst); err != nil {
		t.Fatalf("PushCmd: %v", err)
	}
	w := b.Bytes()

	hdrCRC := binary.LittleEndian.Uint16(w[6:8])
	if want := ssh.CRC(w[2:6]); hdrCRC != want {
		t.Fatalf("header CRC %04X, want %04X", hdrCRC, want)
	}
	cmdEnd := len(w) - ssh.CRCLength
	cmdCRC := binary.LittleEndian.Uint16(w[cmdEnd:])
	if want := ssh.CRC(w[8:cmdEnd]); cmdCRC != want {
		t.Fatalf("command CRC %04X, want %04X", cmdCRC, want)
	}
}

func TestDeterminism(t *testing.T) {
	rqst := ssh.Request{TargetCategory: 8, TargetID: 1, InstanceID: 2, CommandID: 3, Payload: []byte{1, 2, 3}}
	a := New(make([]byte, ssh.CommandMessageLength(3)))
	b := New(make([]byte, ssh.CommandMessageLength(3)))
	if err := a.PushCmd(9, 77, &rqst); err != nil {
		t.Fatalf("PushCmd a: %v", err)
	}
	if err := b.PushCmd(9, 77, &rqst); err != nil {
		t.Fatalf("PushCmd b: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("builders diverged\na=% X\nb=% X", a.Bytes(), b.Bytes())
	}
}

// A buffer sized exactly for an ACK frame succeeds; one byte smaller fails
// on the final checksum write and must not touch anything past the bound.
func TestBoundaryCapacity(t *testing.T) {
	exact := New(make([]byte, ssh.ControlMessageLength))
	if err := exact.PushAck(0); err != nil {
		t.Fatalf("exact capacity: %v", err)
	}
	if !bytes.Equal(exact.Bytes(), ackSeq0Wire) {
		t.Fatalf("exact capacity wire mismatch: % X", exact.Bytes())
	}

	backing := make([]byte, ssh.ControlMessageLength+7)
	for i := range backing {
		backing[i] = 0xEE // sentinel beyond the window
	}
	short := New(backing[:ssh.ControlMessageLength-1])
	err := short.PushAck(0)
	if !errors.Is(err, ErrBufferExhausted) {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
	// SYN + frame header + header CRC landed; the final CRC was skipped.
	if short.BytesUsed() != ssh.SynLength+ssh.FrameLength+ssh.CRCLength {
		t.Fatalf("BytesUsed = %d after overflow", short.BytesUsed())
	}
	for i := ssh.ControlMessageLength - 1; i < len(backing); i++ {
		if backing[i] != 0xEE {
			t.Fatalf("byte %d past the window was written: %02X", i, backing[i])
		}
	}
}

func TestPushU16Guard(t *testing.T) {
	b := New(make([]byte, 1))
	if err := b.PushU16(0x1234); !errors.Is(err, ErrBufferExhausted) {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
	if b.BytesUsed() != 0 {
		t.Fatalf("failed write advanced the cursor to %d", b.BytesUsed())
	}
}

// The raw-copy primitive is guarded like every other write.
func TestPushBufGuard(t *testing.T) {
	backing := []byte{0xEE, 0xEE, 0xEE, 0xEE}
	b := New(backing[:2])
	if err := b.PushBuf([]byte{1, 2, 3}); !errors.Is(err, ErrBufferExhausted) {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
	if b.BytesUsed() != 0 {
		t.Fatalf("failed copy advanced the cursor to %d", b.BytesUsed())
	}
	for i, v := range backing {
		if v != 0xEE {
			t.Fatalf("byte %d was written: %02X", i, v)
		}
	}
}

func TestPushCmdTruncated(t *testing.T) {
	// Room for SYN + frame header + CRC only; the command block must be refused.
	b := New(make([]byte, ssh.SynLength+ssh.FrameLength+ssh.CRCLength))
	rqst := ssh.Request{TargetCategory: 1, CommandID: 2}
	if err := b.PushCmd(0, 1, &rqst); !errors.Is(err, ErrBufferExhausted) {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
}

func TestPushCmdPayloadTooLarge(t *testing.T) {
	b := New(make([]byte, 64))
	rqst := ssh.Request{Payload: make([]byte, ssh.MaxCommandPayload+1)}
	if err := b.PushCmd(0, 1, &rqst); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if b.BytesUsed() != 0 {
		t.Fatalf("rejected command wrote %d bytes", b.BytesUsed())
	}
}
