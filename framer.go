package telsa

// inboundFramer turns raw transport bytes into successive TLS records,
// honoring the read-path contract of spec.md §4.4: buffer bytes, emit
// records once enough bytes have arrived, decrypt through the active
// decipher, and enforce the plaintext/ciphertext length limits.
//
// Grounded on the teacher's records.Reader (buffer-then-slice-per-record),
// adapted from a blocking io.Reader pull model to a push model since the
// Transport here hands bytes in via a callback rather than io.Reader.Read.
type inboundFramer struct {
	buf      []byte
	decipher *decipherState
}

// feed appends newly arrived transport bytes. Per spec.md §3's inbound
// buffer invariant, whatever remains after draining records is always
// strictly less than a full header or a full body.
func (f *inboundFramer) feed(data []byte) {
	f.buf = append(f.buf, data...)
}

// setDecipher installs (or clears, with nil) the active decipher. Called
// once, right after the server's ChangeCipherSpec.
func (f *inboundFramer) setDecipher(d *decipherState) {
	f.decipher = d
}

// next pulls one more record out of the buffer, if a complete one is
// present. ok is false when more transport bytes are needed; it is not an
// error.
func (f *inboundFramer) next() (ct ContentType, payload []byte, ok bool, err error) {
	if len(f.buf) < RecordHeaderSize {
		return 0, nil, false, nil
	}
	hdr := parseRecordHeader(f.buf)
	if err := hdr.validate(f.decipher != nil); err != nil {
		return 0, nil, false, err
	}
	total := RecordHeaderSize + hdr.length
	if len(f.buf) < total {
		return 0, nil, false, nil
	}
	body := f.buf[RecordHeaderSize:total]
	f.buf = f.buf[total:]

	if f.decipher != nil {
		plain, err := f.decipher.open(hdr.contentType, body)
		if err != nil {
			return 0, nil, false, err
		}
		return hdr.contentType, plain, true, nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return hdr.contentType, out, true, nil
}
