package telsa

import (
	"encoding/hex"
	"testing"

	_ "github.com/mkobetic/okapi/gocrypto" // registers the okapi hash/HMAC/cipher backend for the whole test binary
	"github.com/stretchr/testify/assert"
)

func assertEqualBytes(t *testing.T, a, b []byte) {
	assert.Equal(t, a, b, "Not Equal!\n%x\n%x", a, b)
}

func h2b(h string) []byte {
	b, _ := hex.DecodeString(h)
	return b
}
