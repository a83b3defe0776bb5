package telsa

import (
	cryptorand "crypto/rand"

	"github.com/mkobetic/okapi"
)

// randomBytes returns n cryptographically strong random bytes. okapi exposes
// its RNG only as the cipher-setup-time okapi.Random capability, not as a
// standalone helper, so this one primitive is sourced
// from the stdlib crypto/rand the way PoromKamal-distributed-matchmaking's
// ClientHelloPayload/ClientHelloKeyExchangePayload do (rand.Read(random)).
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := cryptorand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// hmacSHA256 computes HMAC-SHA256(key, data) using the okapi backend.
func hmacSHA256(key, data []byte) []byte {
	mac := okapi.HMAC.New(okapi.SHA256, key)
	defer mac.Close()
	mac.Write(data)
	return mac.Digest()
}

// hmacSHA1 computes HMAC-SHA1(key, data) using the okapi backend.
func hmacSHA1(key, data []byte) []byte {
	mac := okapi.HMAC.New(okapi.SHA1, key)
	defer mac.Close()
	mac.Write(data)
	return mac.Digest()
}

// sha256Sum hashes data with SHA-256 using the okapi backend.
func sha256Sum(data []byte) []byte {
	h := okapi.SHA256.New()
	defer h.Close()
	h.Write(data)
	return h.Digest()
}

// prf is the TLS 1.2 PRF (RFC 5246 §5), fixed to the P_SHA256 expansion
// function: A(0) = label‖seed; A(i) = HMAC256(secret, A(i-1)); output is the
// concatenation of HMAC256(secret, A(i)‖label‖seed) for i = 1, 2, ... until n
// bytes have been produced, then truncated to exactly n.
func prf(secret []byte, label string, seed []byte, n int) []byte {
	labelSeed := append([]byte(label), seed...)
	a := labelSeed
	out := make([]byte, 0, n+len(labelSeed)) // room to overshoot before truncation
	for len(out) < n {
		a = hmacSHA256(secret, a)
		out = append(out, hmacSHA256(secret, append(append([]byte{}, a...), labelSeed...))...)
	}
	return out[:n]
}
