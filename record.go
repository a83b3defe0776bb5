package telsa

import "encoding/binary"

// ProtocolVersion is the two-byte {major,minor} version field of a TLS record.
// Grounded on records/record.go's ProtocolVersion type from the teacher,
// narrowed to the one version this client ever speaks or accepts.
type ProtocolVersion uint16

const TLS12 ProtocolVersion = 0x0303

// ContentType identifies the payload carried by a TLS record.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

func (t ContentType) valid() bool {
	switch t {
	case ContentTypeChangeCipherSpec, ContentTypeAlert, ContentTypeHandshake, ContentTypeApplicationData:
		return true
	default:
		return false
	}
}

const (
	RecordHeaderSize = 5
	// MaxPlaintextLength is the largest payload a record may carry with no
	// active cipher.
	MaxPlaintextLength = 1 << 14
	// MaxCiphertextLength is the largest payload a record may carry once a
	// decipher is active (plaintext + explicit IV + MAC + padding overhead).
	MaxCiphertextLength = MaxPlaintextLength + 2048
)

// recordHeader is the parsed 5-byte record header.
type recordHeader struct {
	contentType ContentType
	version     ProtocolVersion
	length      int
}

// parseRecordHeader decodes the fixed 5-byte header. Callers are expected to
// have already confirmed len(buf) >= RecordHeaderSize.
func parseRecordHeader(buf []byte) recordHeader {
	return recordHeader{
		contentType: ContentType(buf[0]),
		version:     ProtocolVersion(binary.BigEndian.Uint16(buf[1:3])),
		length:      int(binary.BigEndian.Uint16(buf[3:5])),
	}
}

// validate checks the header against spec.md §4.4's read-path contract. The
// maximum allowed length depends on whether a decipher is currently active.
func (h recordHeader) validate(decipherActive bool) error {
	if !h.contentType.valid() {
		return newProtocolError(AlertDecodeError, "unrecognized content type")
	}
	if h.version != TLS12 {
		return newProtocolError(AlertDecodeError, "unsupported record version")
	}
	if h.length == 0 {
		return newProtocolError(AlertDecodeError, "zero-length record")
	}
	max := MaxPlaintextLength
	if decipherActive {
		max = MaxCiphertextLength
	}
	if h.length > max {
		return newProtocolError(AlertRecordOverflow, "record exceeds maximum length")
	}
	return nil
}

// frameRecord prepends the 5-byte record header to payload. The caller has
// already encrypted payload if a cipher is active.
func frameRecord(ct ContentType, payload []byte) []byte {
	out := make([]byte, RecordHeaderSize+len(payload))
	out[0] = byte(ct)
	out[1] = byte(TLS12 >> 8)
	out[2] = byte(TLS12 & 0xff)
	binary.BigEndian.PutUint16(out[3:5], uint16(len(payload)))
	copy(out[5:], payload)
	return out
}
