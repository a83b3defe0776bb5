package telsa

import (
	"bytes"
	"testing"
)

func TestPRF_Deterministic(t *testing.T) {
	secret := []byte("secret")
	seed := []byte("seed-material")
	a := prf(secret, "test label", seed, 40)
	b := prf(secret, "test label", seed, 40)
	assertEqualBytes(t, a, b)
}

// TestPRF_PrefixInvariant checks the P_hash expansion property every TLS PRF
// output must satisfy: asking for n+k bytes reproduces the first n bytes of
// the n-byte request, since both are truncations of the same unbounded
// HMAC chain (spec.md §8 invariant).
func TestPRF_PrefixInvariant(t *testing.T) {
	secret := []byte("master-secret-ish")
	seed := []byte("client-random||server-random")
	short := prf(secret, "key expansion", seed, 32)
	long := prf(secret, "key expansion", seed, 88)
	assertEqualBytes(t, short, long[:32])
}

func TestPRF_LabelChangesOutput(t *testing.T) {
	secret := []byte("secret")
	seed := []byte("seed")
	a := prf(secret, "client finished", seed, 12)
	b := prf(secret, "server finished", seed, 12)
	if bytes.Equal(a, b) {
		t.Fatalf("different labels must not collide")
	}
}

func TestHMACAndSHA256Sum(t *testing.T) {
	data := []byte("hello world")
	if len(sha256Sum(data)) != 32 {
		t.Fatalf("sha256Sum must return 32 bytes")
	}
	if len(hmacSHA256([]byte("key"), data)) != 32 {
		t.Fatalf("hmacSHA256 must return 32 bytes")
	}
	if len(hmacSHA1([]byte("key"), data)) != 20 {
		t.Fatalf("hmacSHA1 must return 20 bytes")
	}
}
