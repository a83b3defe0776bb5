package telsa

import (
	"bytes"
	"testing"
)

func feedRecord(f *inboundFramer, ct ContentType, payload []byte) {
	f.feed(frameRecord(ct, payload))
}

func TestDefragmenterSingleMessagePerRecord(t *testing.T) {
	f := &inboundFramer{}
	d := newDefragmenter(f)

	feedRecord(f, ContentTypeAlert, []byte{byte(AlertLevelWarning), byte(AlertCloseNotify)})

	msg, wouldBlock, err := d.next()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if wouldBlock {
		t.Fatalf("a complete record must not block")
	}
	if msg.contentType != ContentTypeAlert {
		t.Fatalf("expected alert content type, got %v", msg.contentType)
	}
	assertEqualBytes(t, []byte{1, 0}, msg.body)
}

// TestDefragmenterFragmentedHandshakeMessage covers spec.md §8 scenario 6: a
// single handshake message (here, a Certificate carrying a large chain)
// split across several TLS records.
func TestDefragmenterFragmentedHandshakeMessage(t *testing.T) {
	f := &inboundFramer{}
	d := newDefragmenter(f)

	body := bytes.Repeat([]byte{0xAB}, 300)
	full := buildHandshakeMessage(HandshakeTypeCertificate, body)

	// Split the message across three separate records.
	feedRecord(f, ContentTypeHandshake, full[:10])
	feedRecord(f, ContentTypeHandshake, full[10:200])
	feedRecord(f, ContentTypeHandshake, full[200:])

	msg, wouldBlock, err := d.next()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if wouldBlock {
		t.Fatalf("all the fragments are already present; must not block")
	}
	if msg.contentType != ContentTypeHandshake {
		t.Fatalf("expected handshake content type")
	}
	assertEqualBytes(t, full, msg.body)
}

func TestDefragmenterWouldBlockOnPartialRecord(t *testing.T) {
	f := &inboundFramer{}
	d := newDefragmenter(f)

	full := frameRecord(ContentTypeAlert, []byte{1, 0})
	f.feed(full[:3]) // less than a full header

	_, wouldBlock, err := d.next()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !wouldBlock {
		t.Fatalf("a partial record must report wouldBlock")
	}
}

func TestDefragmenterRejectsContentTypeChangeMidMessage(t *testing.T) {
	f := &inboundFramer{}
	d := newDefragmenter(f)

	body := bytes.Repeat([]byte{0xCD}, 50)
	full := buildHandshakeMessage(HandshakeTypeCertificate, body)
	feedRecord(f, ContentTypeHandshake, full[:10])
	// A ChangeCipherSpec record arrives before the handshake message
	// finished reassembling -- a protocol violation.
	feedRecord(f, ContentTypeChangeCipherSpec, []byte{0x01})

	_, _, err := d.next()
	if err == nil {
		t.Fatalf("expected an error when content type changes mid-message")
	}
}

func TestDefragmenterTwoMessagesInOneFeed(t *testing.T) {
	f := &inboundFramer{}
	d := newDefragmenter(f)

	msg1 := buildHandshakeMessage(HandshakeTypeServerHelloDone, nil)
	msg2 := buildHandshakeMessage(HandshakeTypeFinished, bytes.Repeat([]byte{0}, 12))
	f.feed(frameRecord(ContentTypeHandshake, append(append([]byte{}, msg1...), msg2...)))

	first, wouldBlock, err := d.next()
	if err != nil || wouldBlock {
		t.Fatalf("unexpected result for first message: wouldBlock=%v err=%v", wouldBlock, err)
	}
	assertEqualBytes(t, msg1, first.body)

	second, wouldBlock, err := d.next()
	if err != nil || wouldBlock {
		t.Fatalf("unexpected result for second message: wouldBlock=%v err=%v", wouldBlock, err)
	}
	assertEqualBytes(t, msg2, second.body)
}
