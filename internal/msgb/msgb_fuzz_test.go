package msgb

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ssamtools/go-ssam-server/internal/ssh"
)

// FuzzPushCmd builds a command frame from arbitrary fields into an
// exactly-sized buffer and verifies the structural invariants hold.
func FuzzPushCmd(f *testing.F) {
	f.Add(uint8(1), uint16(0x42), uint8(1), uint8(2), uint8(0), uint8(3), []byte{0xAA, 0xBB})
	f.Add(uint8(0), uint16(1), uint8(0x15), uint8(1), uint8(2), uint8(0x0B), []byte{})
	f.Add(uint8(255), uint16(0xFFFF), uint8(255), uint8(255), uint8(255), uint8(255), bytes.Repeat([]byte{0x55}, 64))
	f.Fuzz(func(t *testing.T, seq uint8, rqid uint16, tc, tid, iid, cid uint8, payload []byte) {
		if len(payload) > ssh.MaxCommandPayload {
			payload = payload[:ssh.MaxCommandPayload]
		}
		rqst := ssh.Request{TargetCategory: tc, TargetID: tid, InstanceID: iid, CommandID: cid, Payload: payload}
		b := New(make([]byte, ssh.CommandMessageLength(len(payload))))
		if err := b.PushCmd(seq, rqid, &rqst); err != nil {
			t.Fatalf("PushCmd: %v", err)
		}
		w := b.Bytes()
		if len(w) != ssh.CommandMessageLength(len(payload)) {
			t.Fatalf("message length %d, want %d", len(w), ssh.CommandMessageLength(len(payload)))
		}
		if binary.LittleEndian.Uint16(w[0:2]) != ssh.MsgSyn {
			t.Fatalf("missing SYN: % X", w[:2])
		}
		if got := binary.LittleEndian.Uint16(w[6:8]); got != ssh.CRC(w[2:6]) {
			t.Fatalf("header CRC mismatch")
		}
		cmdEnd := len(w) - ssh.CRCLength
		if got := binary.LittleEndian.Uint16(w[cmdEnd:]); got != ssh.CRC(w[8:cmdEnd]) {
			t.Fatalf("command CRC mismatch")
		}
	})
}

// FuzzPushCmdCapacity runs the builder against arbitrary (usually wrong)
// capacities and checks it either completes or fails cleanly without ever
// touching memory past the window.
func FuzzPushCmdCapacity(f *testing.F) {
	f.Add(uint(0), []byte{1, 2, 3})
	f.Add(uint(9), []byte{})
	f.Add(uint(64), bytes.Repeat([]byte{0xAB}, 16))
	f.Fuzz(func(t *testing.T, capacity uint, payload []byte) {
		const maxCap = 4096
		if capacity > maxCap {
			capacity = maxCap
		}
		if len(payload) > 1024 {
			payload = payload[:1024]
		}
		backing := make([]byte, capacity+8)
		for i := range backing {
			backing[i] = 0xEE
		}
		b := New(backing[:capacity])
		rqst := ssh.Request{TargetCategory: 1, TargetID: 2, InstanceID: 3, CommandID: 4, Payload: payload}
		err := b.PushCmd(1, 2, &rqst)
		want := ssh.CommandMessageLength(len(payload))
		if int(capacity) >= want && err != nil {
			t.Fatalf("capacity %d sufficient for %d but got %v", capacity, want, err)
		}
		if b.BytesUsed() > int(capacity) {
			t.Fatalf("cursor %d beyond capacity %d", b.BytesUsed(), capacity)
		}
		for i := capacity; i < uint(len(backing)); i++ {
			if backing[i] != 0xEE {
				t.Fatalf("byte %d past the window was written", i)
			}
		}
	})
}
