package telsa

import "math"

// sequenceCounter is a 64-bit big-endian record sequence number for one
// direction of a connection. It starts at zero and increments after every
// protected record; wrapping is a fatal internal error (spec.md §4.2), so we
// refuse to hand out a value once the counter has been exhausted rather than
// silently wrapping to zero.
type sequenceCounter struct {
	next      uint64
	exhausted bool
}

// value returns the sequence number to use for the next record and advances
// the counter. RecordSequenceNumberOverflow-equivalent behavior: once the
// counter has reached math.MaxUint64, the value is still handed out once,
// and any further call fails with errSequenceOverflow.
func (c *sequenceCounter) value() (uint64, error) {
	if c.exhausted {
		return 0, errSequenceOverflow
	}
	v := c.next
	if v == math.MaxUint64 {
		c.exhausted = true
	} else {
		c.next = v + 1
	}
	return v, nil
}

var errSequenceOverflow = newProtocolError(AlertInternalError, "record sequence number overflow")
