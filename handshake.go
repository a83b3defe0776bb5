package telsa

import (
	"crypto/rsa"
	"crypto/subtle"
)

// handshakeStep is the single flat "expected next message" discriminator
// spec.md's design notes (§9) call for, replacing a hierarchical per-state
// struct (as caddyserver-caddy's clientStateStart/.../Next chain models TLS
// 1.3) with one enum plus the transcript.
type handshakeStep uint8

const (
	stepExpectServerHello handshakeStep = iota
	stepExpectCertificate
	stepExpectCertificateRequest
	stepExpectServerHelloDone
	stepAwaitingSignature // CertificateVerify requested from the (possibly async) signer
	stepExpectChangeCipherSpec
	stepExpectFinished
	stepHandshakeComplete
)

// keyBlock is the split key-expansion output, spec.md §3 "Keying material".
type keyBlock struct {
	clientMAC []byte // 20 bytes
	serverMAC []byte // 20 bytes
	clientKey []byte // 16 bytes
	serverKey []byte // 16 bytes
	ivSeed    []byte // 16 bytes
}

func deriveKeyBlock(masterSecret, serverRandom, clientRandom []byte) keyBlock {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	block := prf(masterSecret, "key expansion", seed, 2*(20+16)+16)
	return keyBlock{
		clientMAC: block[0:20],
		serverMAC: block[20:40],
		clientKey: block[40:56],
		serverKey: block[56:72],
		ivSeed:    block[72:88],
	}
}

// handshakeState is the handshake-only data that spec.md §3 says becomes
// "logically dead" once ESTABLISHED is reached.
type handshakeState struct {
	step handshakeStep

	clientRandom [32]byte
	serverRandom [32]byte
	sessionID    []byte

	preMasterSecret []byte
	masterSecret    []byte
	keys            keyBlock

	chainDER [][]byte
	leafPub  *rsa.PublicKey
	leafCN   string

	transcript transcript
}

func (hs *handshakeState) reset() {
	hs.preMasterSecret = nil
	hs.masterSecret = nil
	hs.transcript.release()
}

// startHandshake moves CONNECTING -> HANDSHAKING and sends ClientHello
// (spec.md §3 "Connection state", §4.6(1)). Establishing the transport
// connection itself is out of scope (spec.md §1(a)): the transport handed to
// NewStream is assumed already connected, so the handshake starts
// immediately rather than waiting for a connect event. The
// pre_master_secret is generated now, not at ClientKeyExchange time, because
// it needs nothing from the server; this lets ServerHello's arrival
// immediately derive the master secret and key block, as spec.md §4.6 says.
func (s *Stream) startHandshake() {
	s.state = stateHandshaking

	clientRandom, err := randomBytes(32)
	if err != nil {
		s.terminate(reasonError, wrapProtocolError(AlertInternalError, "failed to generate client random", err))
		return
	}
	copy(s.hs.clientRandom[:], clientRandom)

	pms, err := buildPreMasterSecret()
	if err != nil {
		s.terminate(reasonError, wrapProtocolError(AlertInternalError, "failed to generate pre_master_secret", err))
		return
	}
	s.hs.preMasterSecret = pms

	if _, err := s.emitHandshake(buildClientHello(s.hs.clientRandom[:])); err != nil {
		s.terminate(reasonError, err)
		return
	}
	s.hs.step = stepExpectServerHello
}

// onHandshakeRecord dispatches one reassembled handshake message per the
// strict client/server sequence of spec.md §4.6. Any message out of order,
// or a message type the server must never send, is unexpected_message.
func (s *Stream) onHandshakeRecord(raw []byte) error {
	t, body, err := parseHandshakeMessage(raw)
	if err != nil {
		return err
	}
	if t == HandshakeTypeHelloRequest {
		// Renegotiation refused by inaction; HelloRequest never joins the
		// transcript (spec.md §3, §4.6).
		return nil
	}

	switch s.hs.step {
	case stepExpectServerHello:
		if t != HandshakeTypeServerHello {
			return newProtocolError(AlertUnexpectedMessage, "expected ServerHello")
		}
		s.hs.transcript.append(fromServer, raw)
		sh, err := parseServerHello(body)
		if err != nil {
			return err
		}
		s.hs.serverRandom = sh.random
		s.hs.sessionID = sh.sessionID
		seed := append(append([]byte{}, s.hs.clientRandom[:]...), s.hs.serverRandom[:]...)
		s.hs.masterSecret = prf(s.hs.preMasterSecret, "master secret", seed, 48)
		s.hs.keys = deriveKeyBlock(s.hs.masterSecret, s.hs.serverRandom[:], s.hs.clientRandom[:])
		s.hs.step = stepExpectCertificate
		return nil

	case stepExpectCertificate:
		if t != HandshakeTypeCertificate {
			return newProtocolError(AlertUnexpectedMessage, "expected Certificate")
		}
		s.hs.transcript.append(fromServer, raw)
		chain, err := parseCertificateChain(body)
		if err != nil {
			return err
		}
		leafPub, leafCN, err := extractLeafPublicKey(chain[0])
		if err != nil {
			return err
		}
		if !matchHost(leafCN, s.cfg.Host) {
			return newProtocolError(AlertBadCertificate, "certificate CN does not match configured host")
		}
		if err := s.cfg.verifier().VerifyChain(chain, s.cfg.Roots, s.cfg.Validity); err != nil {
			return err
		}
		s.hs.chainDER = chain
		s.hs.leafPub = leafPub
		s.hs.leafCN = leafCN
		s.hs.step = stepExpectCertificateRequest
		return nil

	case stepExpectCertificateRequest:
		if t != HandshakeTypeCertificateRequest {
			return newProtocolError(AlertUnexpectedMessage, "expected CertificateRequest")
		}
		s.hs.transcript.append(fromServer, raw)
		if err := validateCertificateRequest(body); err != nil {
			return err
		}
		s.hs.step = stepExpectServerHelloDone
		return nil

	case stepExpectServerHelloDone:
		if t != HandshakeTypeServerHelloDone {
			return newProtocolError(AlertUnexpectedMessage, "expected ServerHelloDone")
		}
		if len(body) != 0 {
			return newProtocolError(AlertIllegalParameter, "ServerHelloDone must carry an empty body")
		}
		s.hs.transcript.append(fromServer, raw)
		return s.sendClientAuthMessages()

	case stepExpectFinished:
		if t != HandshakeTypeFinished {
			return newProtocolError(AlertUnexpectedMessage, "expected Finished")
		}
		return s.verifyServerFinished(raw, body)

	default:
		// Covers a Finished (or anything else) arriving while awaiting the
		// signer or before ChangeCipherSpec has installed the decipher.
		return newProtocolError(AlertUnexpectedMessage, "handshake message not expected in this state")
	}
}

// onChangeCipherSpecRecord installs the decipher, per spec.md §4.6: "Finished
// is only legal after the server's ChangeCipherSpec has installed the
// decipher; otherwise unexpected_message" -- enforced by only reaching
// stepExpectFinished from here.
func (s *Stream) onChangeCipherSpecRecord(body []byte) error {
	if s.hs.step != stepExpectChangeCipherSpec {
		return newProtocolError(AlertUnexpectedMessage, "unexpected ChangeCipherSpec")
	}
	if len(body) != 1 || body[0] != 0x01 {
		return newProtocolError(AlertDecodeError, "malformed ChangeCipherSpec")
	}
	s.decipher = newDecipherState(s.hs.keys.serverKey, s.hs.keys.serverMAC)
	s.inbound.setDecipher(s.decipher)
	s.hs.step = stepExpectFinished
	return nil
}

// sendClientAuthMessages emits Certificate and ClientKeyExchange immediately,
// then starts the (possibly asynchronous) CertificateVerify signature,
// per spec.md §4.6(2).
func (s *Stream) sendClientAuthMessages() error {
	if _, err := s.emitHandshake(buildClientCertificate(s.cfg.Cert)); err != nil {
		return err
	}

	cke, err := buildClientKeyExchange(s.hs.preMasterSecret, rsaEncryptPKCS1v15(s.hs.leafPub))
	if err != nil {
		return err
	}
	if _, err := s.emitHandshake(cke); err != nil {
		return err
	}

	toSign := append([]byte{}, s.hs.transcript.bytes()...)
	s.signerEpoch++
	epoch := s.signerEpoch
	resultCh := s.cfg.Signer.Sign(toSign)
	go s.watchSigner(epoch, resultCh)
	s.hs.step = stepAwaitingSignature
	return nil
}

// watchSigner forwards the signer's result back onto the serialized entry
// points. If the stream has since terminated, or a newer signature request
// has superseded this one, the result is discarded -- spec.md §4.6/§5's
// "must tolerate the signer completing after the connection has been
// terminated".
func (s *Stream) watchSigner(epoch uint64, ch <-chan SignResult) {
	result := <-ch
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated || epoch != s.signerEpoch {
		return
	}
	s.onSignerResult(result)
}

func (s *Stream) onSignerResult(result SignResult) {
	if result.Err != nil {
		s.terminate(reasonError, wrapProtocolError(AlertInternalError, "CertificateVerify signing failed", result.Err))
		return
	}
	if _, err := s.emitHandshake(buildCertificateVerify(result.Signature)); err != nil {
		s.terminate(reasonError, err)
		return
	}
	if _, err := s.writeRecord(ContentTypeChangeCipherSpec, changeCipherSpecBody); err != nil {
		s.terminate(reasonError, err)
		return
	}
	s.cipher = newCipherState(s.hs.keys.clientKey, s.hs.keys.clientMAC, s.hs.keys.ivSeed)

	verifyData := prf(s.hs.masterSecret, "client finished", s.hs.transcript.hash(), 12)
	if _, err := s.emitHandshake(buildFinished(verifyData)); err != nil {
		s.terminate(reasonError, err)
		return
	}
	s.hs.step = stepExpectChangeCipherSpec
}

// verifyServerFinished checks the server's verify_data against a PRF over
// the transcript as it stood *before* this Finished message, then appends it
// and completes the handshake.
func (s *Stream) verifyServerFinished(raw, body []byte) error {
	verifyData, err := parseFinished(body)
	if err != nil {
		return err
	}
	expected := prf(s.hs.masterSecret, "server finished", s.hs.transcript.hash(), 12)
	if subtle.ConstantTimeCompare(expected, verifyData) != 1 {
		return newProtocolError(AlertDecryptError, "server Finished verify_data mismatch")
	}
	s.hs.transcript.append(fromServer, raw)
	return s.completeHandshake()
}

// completeHandshake transitions to ESTABLISHED, releases dead handshake
// data, and resubmits any write that was parked in the pending slot while
// waiting for the handshake, per spec.md §4.6 "Completion".
func (s *Stream) completeHandshake() error {
	s.state = stateEstablished
	s.hs.step = stepHandshakeComplete
	s.hs.reset()

	if s.pending != nil && s.pending.chunk != nil {
		chunk := s.pending.chunk
		done := s.pending.done
		s.pending = nil
		accepted, err := s.sendApplicationData(chunk)
		if err != nil {
			s.terminate(reasonError, err)
			return nil
		}
		if accepted {
			done <- nil
		} else {
			s.pending = &pendingWrite{done: done}
		}
	}
	return nil
}
