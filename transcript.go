package telsa

// transcriptDirection marks which peer sent a transcript entry.
type transcriptDirection uint8

const (
	fromClient transcriptDirection = iota
	fromServer
)

// transcriptEntry is one handshake message, verbatim (type byte + 3-byte
// length + body), as it appeared on the wire.
type transcriptEntry struct {
	direction transcriptDirection
	raw       []byte
}

// transcript is the ordered sequence of all handshake messages exchanged in
// both directions, excluding HelloRequest (spec.md §3). It backs both the
// Finished verify_data computation and the CertificateVerify signature.
type transcript struct {
	entries []transcriptEntry
	flat    []byte // running concatenation, kept alongside entries for O(1) append
}

func (t *transcript) append(dir transcriptDirection, raw []byte) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	t.entries = append(t.entries, transcriptEntry{direction: dir, raw: cp})
	t.flat = append(t.flat, cp...)
}

// bytes returns the full concatenation of the transcript so far, used as the
// input to CertificateVerify's signature.
func (t *transcript) bytes() []byte {
	return t.flat
}

// hash returns SHA-256 of the transcript so far, used by Finished verify_data.
func (t *transcript) hash() []byte {
	return sha256Sum(t.flat)
}

// release drops the transcript bytes once ESTABLISHED makes them dead
// weight (spec.md §3 "Ownership and lifecycle").
func (t *transcript) release() {
	t.entries = nil
	t.flat = nil
}
