// Package ssh defines the wire-level constants and shared types of the
// Surface Serial Hub (SSH) point-to-point protocol spoken between the host
// and the embedded controller. The values here are fixed by the controller
// firmware and must match the peer bit-for-bit.
package ssh

// MsgSyn is the synchronization marker preceding every frame, written to
// the wire as a little-endian u16 (bytes AA 55). Receivers scan for it to
// find frame boundaries in the byte stream.
const MsgSyn uint16 = 0x55AA

// FrameType discriminates the frame kinds of the protocol.
type FrameType uint8

const (
	// FrameTypeDataSeq carries a sequenced payload; the controller ACKs it.
	FrameTypeDataSeq FrameType = 0x80
	// FrameTypeDataNsq carries an unsequenced payload (no ACK expected).
	FrameTypeDataNsq FrameType = 0x00
	// FrameTypeAck acknowledges receipt of a sequenced data frame.
	FrameTypeAck FrameType = 0x40
	// FrameTypeNak signals a communication error to the peer.
	FrameTypeNak FrameType = 0x04
)

// String returns the mnemonic used in logs.
func (t FrameType) String() string {
	switch t {
	case FrameTypeDataSeq:
		return "DATA_SEQ"
	case FrameTypeDataNsq:
		return "DATA_NSQ"
	case FrameTypeAck:
		return "ACK"
	case FrameTypeNak:
		return "NAK"
	default:
		return "UNKNOWN"
	}
}

// PayloadType discriminates the payload carried by a data frame.
type PayloadType uint8

// PayloadTypeCommand marks a command block payload.
const PayloadTypeCommand PayloadType = 0x80

// Fixed wire sizes in bytes.
const (
	SynLength     = 2 // SYN marker
	FrameLength   = 4 // frame header: type(1) + len(2 LE) + seq(1)
	CRCLength     = 2 // CRC-16, little-endian
	CommandLength = 8 // command block header: type+tc+tid_out+tid_in+iid+rqid(2 LE)+cid
)

// MaxCommandPayload is the largest command payload representable in the
// frame length field (which also covers the command block header).
const MaxCommandPayload = 0xFFFF - CommandLength

// MessageLength returns the total wire size of a frame carrying a payload
// of the given length: SYN, frame header, header CRC, payload, payload CRC.
func MessageLength(payload int) int {
	return SynLength + FrameLength + CRCLength + payload + CRCLength
}

// CommandMessageLength returns the total wire size of a command frame whose
// command payload has the given length.
func CommandMessageLength(payload int) int {
	return MessageLength(CommandLength + payload)
}

// ControlMessageLength is the wire size of a payload-less ACK or NAK frame.
const ControlMessageLength = SynLength + FrameLength + CRCLength + CRCLength

// Request describes one outbound command addressed to a logical sub-device
// of the controller. SEQ and RQID are not part of the request; they are
// assigned by the transport layer when the request is wrapped into a frame.
type Request struct {
	TargetCategory uint8
	TargetID       uint8
	InstanceID     uint8
	CommandID      uint8
	Payload        []byte
}

// Message is one fully built frame ready for transmission, together with
// the bookkeeping fields the transport layer stamped on it. Wire holds the
// exact byte sequence to put on the link.
type Message struct {
	Type FrameType
	Seq  uint8
	RQID uint16 // zero for ACK/NAK frames
	Wire []byte
}
