package telsa

import "testing"

func TestTranscriptAppendAndHash(t *testing.T) {
	var tr transcript
	tr.append(fromClient, []byte{1, 2, 3})
	tr.append(fromServer, []byte{4, 5})

	if len(tr.bytes()) != 5 {
		t.Fatalf("expected 5 concatenated bytes, got %d", len(tr.bytes()))
	}
	h := tr.hash()
	if len(h) != 32 {
		t.Fatalf("expected a 32-byte SHA-256 digest, got %d bytes", len(h))
	}

	tr.append(fromClient, []byte{6})
	h2 := tr.hash()
	if string(h) == string(h2) {
		t.Fatalf("hash must change once a new message is appended")
	}
}

func TestTranscriptRelease(t *testing.T) {
	var tr transcript
	tr.append(fromClient, []byte{1, 2, 3})
	tr.release()
	if len(tr.bytes()) != 0 {
		t.Fatalf("release must drop the transcript bytes")
	}
	if tr.entries != nil {
		t.Fatalf("release must drop the transcript entries")
	}
}

// TestTranscriptIdentity checks that two transcripts fed the same messages
// in the same order produce identical hashes (spec.md §8 invariant (e)).
func TestTranscriptIdentity(t *testing.T) {
	var a, b transcript
	a.append(fromClient, []byte("one"))
	a.append(fromServer, []byte("two"))
	a.append(fromClient, []byte("three"))

	b.append(fromClient, []byte("one"))
	combined := append(append([]byte{}, []byte("two")...))
	b.append(fromServer, combined)
	b.append(fromClient, []byte("three"))

	assertEqualBytes(t, a.hash(), b.hash())
}
