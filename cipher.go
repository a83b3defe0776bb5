package telsa

import (
	"crypto/subtle"
	"encoding/binary"
	"math/big"

	"github.com/mkobetic/okapi"
)

// macInput lays out seq‖type‖version‖uint16(len(payload))‖payload, the exact
// byte string that is HMACed per spec.md §4.3, ahead of a MAC-then-encrypt
// Seal or a decrypt-then-verify Open.
func macInput(seq uint64, ct ContentType, payload []byte) []byte {
	b := make([]byte, 0, 8+1+2+2+len(payload))
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	b = append(b, seqBytes[:]...)
	b = append(b, byte(ct), 0x03, 0x03)
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(payload)))
	b = append(b, lenBytes[:]...)
	b = append(b, payload...)
	return b
}

// ivGenerator produces the per-record explicit IV. spec.md §4.3: the IV is
// the first 16 bytes of SHA-256 of the decimal ASCII representation of an
// incrementing 128-bit counter, itself seeded from the tail of the key block.
// This is idiosyncratic (design note §9(c)) but is kept byte-for-byte so that
// fixed test vectors reproduce.
type ivGenerator struct {
	counter *big.Int
	modulus *big.Int
}

func newIVGenerator(seed []byte) *ivGenerator {
	// seed is a 16-byte little-endian 128-bit integer.
	be := make([]byte, len(seed))
	for i, b := range seed {
		be[len(seed)-1-i] = b
	}
	return &ivGenerator{
		counter: new(big.Int).SetBytes(be),
		modulus: new(big.Int).Lsh(big.NewInt(1), 128),
	}
}

func (g *ivGenerator) next() [16]byte {
	digest := sha256Sum([]byte(g.counter.String()))
	var iv [16]byte
	copy(iv[:], digest[:16])
	g.counter.Add(g.counter, big.NewInt(1))
	g.counter.Mod(g.counter, g.modulus)
	return iv
}

// cipherState seals outbound records: MAC-then-encrypt under
// TLS_RSA_WITH_AES_128_CBC_SHA.
type cipherState struct {
	writeKey []byte // 16 bytes
	macKey   []byte // 20 bytes
	iv       *ivGenerator
	seq      sequenceCounter
}

func newCipherState(writeKey, macKey, ivSeed []byte) *cipherState {
	return &cipherState{writeKey: writeKey, macKey: macKey, iv: newIVGenerator(ivSeed)}
}

// seal encrypts payload (a record's plaintext fragment) of content type ct,
// returning IV‖ciphertext ready to be written after the 5-byte record header.
func (c *cipherState) seal(ct ContentType, payload []byte) ([]byte, error) {
	seq, err := c.seq.value()
	if err != nil {
		return nil, err
	}
	mac := hmacSHA1(c.macKey, macInput(seq, ct, payload))

	l := (len(payload) + len(mac)) % 16
	padLen := 16 - l
	plaintext := make([]byte, 0, len(payload)+len(mac)+padLen)
	plaintext = append(plaintext, payload...)
	plaintext = append(plaintext, mac...)
	for i := 0; i < padLen; i++ {
		plaintext = append(plaintext, byte(padLen-1))
	}

	iv := c.iv.next()
	cipher := okapi.AES_CBC.New(c.writeKey, iv[:], true)
	defer cipher.Close()
	ciphertext := make([]byte, len(plaintext))
	cipher.Update(plaintext, ciphertext)

	out := make([]byte, 16+len(ciphertext))
	copy(out, iv[:])
	copy(out[16:], ciphertext)
	return out, nil
}

// decipherState opens inbound records: decrypt-then-verify. Any failure —
// malformed IV/ciphertext, bad padding, or bad MAC — is surfaced uniformly as
// bad_record_mac, per spec.md §4.3, to avoid a CBC padding oracle.
type decipherState struct {
	writeKey []byte
	macKey   []byte
	seq      sequenceCounter
}

func newDecipherState(writeKey, macKey []byte) *decipherState {
	return &decipherState{writeKey: writeKey, macKey: macKey}
}

var errBadRecordMAC = newProtocolError(AlertBadRecordMAC, "bad_record_mac")

func (d *decipherState) open(ct ContentType, sealed []byte) ([]byte, error) {
	seq, err := d.seq.value()
	if err != nil {
		return nil, err
	}
	if len(sealed) < 16 {
		return nil, errBadRecordMAC
	}
	iv := sealed[:16]
	ciphertext := sealed[16:]
	if len(ciphertext) == 0 || len(ciphertext)%16 != 0 {
		return nil, errBadRecordMAC
	}

	cipher := okapi.AES_CBC.New(d.writeKey, iv, false)
	defer cipher.Close()
	plaintext := make([]byte, len(ciphertext))
	cipher.Update(ciphertext, plaintext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen+1 > len(plaintext) {
		return nil, errBadRecordMAC
	}
	for i := 0; i <= padLen; i++ {
		if plaintext[len(plaintext)-1-i] != byte(padLen) {
			return nil, errBadRecordMAC
		}
	}
	unpadded := plaintext[:len(plaintext)-padLen-1]
	if len(unpadded) < 20 {
		return nil, errBadRecordMAC
	}
	macStart := len(unpadded) - 20
	receivedMAC := unpadded[macStart:]
	fragment := unpadded[:macStart]

	computedMAC := hmacSHA1(d.macKey, macInput(seq, ct, fragment))
	if subtle.ConstantTimeCompare(computedMAC, receivedMAC) != 1 {
		return nil, errBadRecordMAC
	}
	return fragment, nil
}
