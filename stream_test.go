package telsa

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport double. Every accepted Write is
// recorded on a buffered channel so the test (playing the server) can react
// to it without relying on arbitrary sleeps.
type fakeTransport struct {
	writes chan []byte

	dataFn  func([]byte)
	closeFn func()

	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writes: make(chan []byte, 32)}
}

func (f *fakeTransport) Write(p []byte) (bool, error) {
	cp := append([]byte{}, p...)
	f.writes <- cp
	return true, nil
}
func (f *fakeTransport) End() error     { f.closed = true; return nil }
func (f *fakeTransport) Destroy() error { f.closed = true; return nil }
func (f *fakeTransport) Pause()         {}
func (f *fakeTransport) Resume()        {}

func (f *fakeTransport) OnData(fn func([]byte)) { f.dataFn = fn }
func (f *fakeTransport) OnDrain(func())         {}
func (f *fakeTransport) OnClose(fn func())      { f.closeFn = fn }
func (f *fakeTransport) OnError(func(error))    {}

func (f *fakeTransport) expectWrite(t *testing.T) []byte {
	t.Helper()
	select {
	case w := <-f.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the client to write a record")
		return nil
	}
}

// recordingSink captures decrypted application data and lifecycle events.
type recordingSink struct {
	data     [][]byte
	ended    bool
	closedCh chan struct{}
	err      error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{closedCh: make(chan struct{})}
}

func (s *recordingSink) OnData(p []byte) bool {
	s.data = append(s.data, append([]byte{}, p...))
	return true
}
func (s *recordingSink) OnEnd()       { s.ended = true }
func (s *recordingSink) OnClose()     { close(s.closedCh) }
func (s *recordingSink) OnError(err error) { s.err = err }

// testIdentity is a CA plus one certificate it signed.
type testIdentity struct {
	cert *x509.Certificate
	der  []byte
	key  *rsa.PrivateKey
}

func issueTestCert(t *testing.T, ca *testIdentity, cn string, isCA bool) *testIdentity {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %s", err)
	}
	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}

	parent := template
	signerKey := key
	if ca != nil {
		parent = ca.cert
		signerKey = ca.key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("creating certificate: %s", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %s", err)
	}
	return &testIdentity{cert: cert, der: der, key: key}
}

// fakeServerHandshake holds the server side's state (randoms, leaf key,
// transcript, derived keys) while the test plays a complete, spec compliant
// server by hand over a fakeTransport, using the same internal primitives the
// client uses, so the test exercises real key agreement rather than a canned
// transcript.
type fakeServerHandshake struct {
	t *testing.T

	clientRandom [32]byte
	serverRandom [32]byte
	leafKey      *rsa.PrivateKey

	transcript transcript

	masterSecret []byte
	keys         keyBlock
}

func (fs *fakeServerHandshake) recordHandshake(dir transcriptDirection, raw []byte) {
	fs.transcript.append(dir, raw)
}

func TestStream_HappyHandshakeAndEcho(t *testing.T) {
	ca := issueTestCert(t, nil, "test-root-ca", true)
	leaf := issueTestCert(t, ca, "device.example.com", false)
	clientIdentity := issueTestCert(t, ca, "client-identity", false)

	cfg := &Config{
		Host:     "device.example.com",
		Roots:    NewTrustStore([]*x509.Certificate{ca.cert}),
		Cert:     clientIdentity.der,
		Signer:   NewLocalSigner(clientIdentity.key),
		Validity: ValidityCheck{},
	}

	transport := newFakeTransport()
	sink := newRecordingSink()

	stream, err := NewStream(transport, sink, cfg)
	if err != nil {
		t.Fatalf("NewStream: %s", err)
	}

	fs := &fakeServerHandshake{t: t, leafKey: leaf.key}

	// 1. ClientHello
	clientHelloRecord := transport.expectWrite(t)
	clientHelloMsg := stripRecordHeader(t, clientHelloRecord)
	fs.recordHandshake(fromClient, clientHelloMsg)
	_, chBody, err := parseHandshakeMessage(clientHelloMsg)
	if err != nil {
		t.Fatalf("parsing ClientHello: %s", err)
	}
	copy(fs.clientRandom[:], chBody[2:34])

	// 2. ServerHello, Certificate, CertificateRequest, ServerHelloDone
	randomBytesForTest, err := randomBytes(32)
	if err != nil {
		t.Fatalf("generating server random: %s", err)
	}
	copy(fs.serverRandom[:], randomBytesForTest)

	serverHelloMsg := buildServerHelloMsg(fs.serverRandom)
	fs.recordHandshake(fromServer, serverHelloMsg)

	certMsg := buildClientCertificate(leaf.der)
	fs.recordHandshake(fromServer, certMsg)

	certReqMsg := buildHandshakeMessage(HandshakeTypeCertificateRequest, certificateRequestBody())
	fs.recordHandshake(fromServer, certReqMsg)

	doneMsg := buildHandshakeMessage(HandshakeTypeServerHelloDone, nil)
	fs.recordHandshake(fromServer, doneMsg)

	combined := append(append(append(append([]byte{}, frameRecord(ContentTypeHandshake, serverHelloMsg)...),
		frameRecord(ContentTypeHandshake, certMsg)...),
		frameRecord(ContentTypeHandshake, certReqMsg)...),
		frameRecord(ContentTypeHandshake, doneMsg)...)
	transport.dataFn(combined)

	// 3. Client answers with Certificate, ClientKeyExchange immediately.
	clientCertRecord := transport.expectWrite(t)
	clientCertMsg := stripRecordHeader(t, clientCertRecord)
	fs.recordHandshake(fromClient, clientCertMsg)

	clientKeyExchangeRecord := transport.expectWrite(t)
	ckeMsg := stripRecordHeader(t, clientKeyExchangeRecord)
	fs.recordHandshake(fromClient, ckeMsg)

	_, ckeBody, err := parseHandshakeMessage(ckeMsg)
	if err != nil {
		t.Fatalf("parsing ClientKeyExchange: %s", err)
	}
	encryptedPMS := ckeBody[2:]
	pms, err := rsa.DecryptPKCS1v15(rand.Reader, fs.leafKey, encryptedPMS)
	if err != nil {
		t.Fatalf("decrypting pre_master_secret: %s", err)
	}
	seed := append(append([]byte{}, fs.clientRandom[:]...), fs.serverRandom[:]...)
	fs.masterSecret = prf(pms, "master secret", seed, 48)
	fs.keys = deriveKeyBlock(fs.masterSecret, fs.serverRandom[:], fs.clientRandom[:])

	// 4. CertificateVerify, ChangeCipherSpec, Finished arrive once the
	// (synchronous, in-process) signer resolves on its own goroutine.
	certVerifyRecord := transport.expectWrite(t)
	cvMsg := stripRecordHeader(t, certVerifyRecord)
	fs.recordHandshake(fromClient, cvMsg)

	ccsRecord := transport.expectWrite(t)
	if ct := ContentType(ccsRecord[0]); ct != ContentTypeChangeCipherSpec {
		t.Fatalf("expected ChangeCipherSpec, got content type %d", ct)
	}

	clientFinishedRecord := transport.expectWrite(t)
	clientDecipher := newDecipherState(fs.keys.clientKey, fs.keys.clientMAC)
	clientFinishedPlain, err := clientDecipher.open(ContentTypeHandshake, clientFinishedRecord[RecordHeaderSize:])
	if err != nil {
		t.Fatalf("opening client Finished: %s", err)
	}
	_, finishedBody, err := parseHandshakeMessage(clientFinishedPlain)
	if err != nil {
		t.Fatalf("parsing client Finished: %s", err)
	}
	expectedClientVerifyData := prf(fs.masterSecret, "client finished", fs.transcript.hash(), 12)
	assertEqualBytes(t, expectedClientVerifyData, finishedBody)
	fs.recordHandshake(fromClient, clientFinishedPlain)

	// 5. Server's own ChangeCipherSpec + Finished, completing the handshake.
	transport.dataFn(frameRecord(ContentTypeChangeCipherSpec, []byte{0x01}))

	serverVerifyData := prf(fs.masterSecret, "server finished", fs.transcript.hash(), 12)
	serverFinishedMsg := buildFinished(serverVerifyData)
	serverCipher := newCipherState(fs.keys.serverKey, fs.keys.serverMAC, fs.keys.ivSeed)
	sealedFinished, err := serverCipher.seal(ContentTypeHandshake, serverFinishedMsg)
	if err != nil {
		t.Fatalf("sealing server Finished: %s", err)
	}
	transport.dataFn(frameRecord(ContentTypeHandshake, sealedFinished))

	// The handshake should now be complete: a Write goes straight to the
	// transport instead of being parked.
	accepted, done := stream.Write([]byte("ping"))
	if !accepted {
		t.Fatalf("expected an ESTABLISHED write to be accepted immediately")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected write completion error: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("write completion never signaled")
	}

	// Reuse clientDecipher: sequence numbers run continuously for the life
	// of the connection, so a fresh decipherState would desynchronize.
	appRecord := transport.expectWrite(t)
	plain, err := clientDecipher.open(ContentTypeApplicationData, appRecord[RecordHeaderSize:])
	if err != nil {
		t.Fatalf("opening application data record: %s", err)
	}
	assertEqualBytes(t, []byte("ping"), plain)

	// Server sends application data back; it should reach the sink.
	sealedReply, err := serverCipher.seal(ContentTypeApplicationData, []byte("pong"))
	if err != nil {
		t.Fatalf("sealing server reply: %s", err)
	}
	transport.dataFn(frameRecord(ContentTypeApplicationData, sealedReply))

	if len(sink.data) != 1 {
		t.Fatalf("sink did not receive the expected reply: %v", sink.data)
	}
	assertEqualBytes(t, []byte("pong"), sink.data[0])
}

func stripRecordHeader(t *testing.T, record []byte) []byte {
	t.Helper()
	if len(record) < RecordHeaderSize {
		t.Fatalf("record too short")
	}
	return record[RecordHeaderSize:]
}

func buildServerHelloMsg(serverRandom [32]byte) []byte {
	body := make([]byte, 0, 2+32+1+2+1)
	body = append(body, byte(TLS12>>8), byte(TLS12&0xff))
	body = append(body, serverRandom[:]...)
	body = append(body, 0x00) // empty session id
	body = append(body, cipherSuiteRSAAES128CBCSHA[:]...)
	body = append(body, 0x00) // null compression
	return buildHandshakeMessage(HandshakeTypeServerHello, body)
}

func certificateRequestBody() []byte {
	body := []byte{0x01, 0x01} // one certificate_type: rsa_sign
	body = append(body, 0x00, 0x02)
	body = append(body, sigAlgRSAPKCS1SHA256[:]...)
	body = append(body, 0x00, 0x00) // empty certificate_authorities
	return body
}
