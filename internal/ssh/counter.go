package ssh

import "sync/atomic"

// SeqCounter hands out frame sequence IDs. SEQ is a single wrapping byte;
// the counter is safe for concurrent use by multiple connections.
type SeqCounter struct {
	v atomic.Uint32
}

// Next returns the next sequence ID.
func (c *SeqCounter) Next() uint8 {
	return uint8(c.v.Add(1) - 1)
}

// RQIDCounter hands out request IDs used to correlate a command with its
// eventual response. RQID zero is reserved for controller-initiated events
// and is never assigned to a host request.
type RQIDCounter struct {
	v atomic.Uint32
}

// Next returns the next request ID, skipping the reserved zero value on
// wrap-around.
func (c *RQIDCounter) Next() uint16 {
	for {
		rqid := uint16(c.v.Add(1))
		if rqid != 0 {
			return rqid
		}
	}
}
