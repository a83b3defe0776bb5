package telsa

// fragment holds at most one pending content-type-homogeneous run of record
// payloads, per spec.md §4.5 and §3's "current fragment" invariant.
type fragment struct {
	contentType ContentType
	payload     []byte
	valid       bool
}

// defragmenter coalesces consecutive same-type records into a fragment and
// slices protocol messages back out of it, per-type, per spec.md §4.5.
// Grounded on bifurcation-mint's frameReader (header-then-body framing) and
// arailly-mytls12's FromBytes (content-type-tagged record slicing),
// generalized to TLS 1.2's four content types and fixed message shapes.
type defragmenter struct {
	frames *inboundFramer
	cur    fragment
}

func newDefragmenter(f *inboundFramer) *defragmenter {
	return &defragmenter{frames: f}
}

// fill pulls records out of the framer until the current fragment has at
// least one more byte, or no more records are available yet, or an error
// occurs. wouldBlock is true when more transport bytes are needed.
func (d *defragmenter) fill() (wouldBlock bool, err error) {
	if d.cur.valid && len(d.cur.payload) > 0 {
		return false, nil
	}
	for {
		ct, payload, ok, err := d.frames.next()
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		if d.cur.valid && d.cur.contentType != ct {
			return false, newProtocolError(AlertDecodeError, "incomplete fragment: content type changed mid-message")
		}
		if d.cur.valid {
			d.cur.payload = append(d.cur.payload, payload...)
		} else {
			d.cur = fragment{contentType: ct, payload: payload, valid: true}
		}
		if len(d.cur.payload) > 0 {
			return false, nil
		}
	}
}

// message describes one protocol message sliced out of the current fragment.
type message struct {
	contentType ContentType
	body        []byte
}

// messageLen returns how many bytes of a homogeneous-type fragment make up
// the next message of that type. ok is false (not an error) while the
// fragment doesn't yet hold a complete message; for Handshake that means the
// 4-byte header hasn't fully arrived, or the declared body hasn't. err is set
// only for an unrecognized content type.
func messageLen(ct ContentType, buf []byte) (n int, ok bool, err error) {
	switch ct {
	case ContentTypeAlert:
		if len(buf) < 2 {
			return 0, false, nil
		}
		return 2, true, nil
	case ContentTypeChangeCipherSpec:
		if len(buf) < 1 {
			return 0, false, nil
		}
		return 1, true, nil
	case ContentTypeHandshake:
		if len(buf) < 4 {
			return 0, false, nil
		}
		bodyLen := int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
		total := 4 + bodyLen
		if len(buf) < total {
			return 0, false, nil
		}
		return total, true, nil
	case ContentTypeApplicationData:
		return len(buf), true, nil
	default:
		return 0, false, newProtocolError(AlertDecodeError, "unrecognized content type")
	}
}

// next returns the next fully-available message, or wouldBlock=true if more
// transport bytes are needed before one is complete.
func (d *defragmenter) next() (msg message, wouldBlock bool, err error) {
	for {
		wouldBlock, err := d.fill()
		if err != nil {
			return message{}, false, err
		}
		if !d.cur.valid || len(d.cur.payload) == 0 {
			return message{}, wouldBlock, nil
		}
		n, ok, err := messageLen(d.cur.contentType, d.cur.payload)
		if err != nil {
			return message{}, false, err
		}
		if !ok {
			// The message isn't complete yet; pull another record of the
			// same type and try again (spec.md §8 scenario 6: a handshake
			// message fragmented across several records).
			wb, err := d.pullMore()
			if err != nil {
				return message{}, false, err
			}
			if wb {
				return message{}, true, nil
			}
			continue
		}
		ct := d.cur.contentType
		body := d.cur.payload[:n]
		rest := d.cur.payload[n:]
		if len(rest) == 0 {
			d.cur = fragment{}
		} else {
			d.cur.payload = rest
		}
		return message{contentType: ct, body: body}, false, nil
	}
}

// pullMore appends one more record of the same content type onto the
// current fragment (used when a handshake message is split across several
// records, spec.md §8 scenario 6).
func (d *defragmenter) pullMore() (wouldBlock bool, err error) {
	ct, payload, ok, err := d.frames.next()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if d.cur.valid && d.cur.contentType != ct {
		return false, newProtocolError(AlertDecodeError, "incomplete fragment: content type changed mid-message")
	}
	d.cur.payload = append(d.cur.payload, payload...)
	return false, nil
}
