package telsa

import (
	"fmt"
	"sync"
)

// connState is the coarse connection state of spec.md §3: CONNECTING ->
// HANDSHAKING -> ESTABLISHED -> TERMINATED, with no half-closed or draining
// state in between (spec.md §4.7).
type connState uint8

const (
	stateConnecting connState = iota
	stateHandshaking
	stateEstablished
	stateTerminated
)

// pendingWrite is the single outstanding write slot spec.md §3/§8 invariant
// (f) requires: at most one Write call may be in flight at a time. chunk is
// non-nil only while parked waiting for the handshake to finish; once a
// write has been handed to the transport, the slot (if occupied at all)
// carries only the completion signal, waiting on a Drain callback.
type pendingWrite struct {
	chunk []byte
	done  chan error
}

// Stream is the duplex façade spec.md §6 describes: it drives a Transport
// downward and a Sink upward, running the TLS 1.2 handshake and application
// data encryption in between. All entry points serialize on mu, realizing
// the "at most one handler active at a time" cooperative scheduling model of
// spec.md §5 with a mutex rather than a literal single-threaded event loop.
//
// Grounded on the teacher's records.Reader/Writer pairing (one struct owning
// both directions of a connection), adapted to own the additional handshake
// and duplex-stream bookkeeping spec.md's scope adds.
type Stream struct {
	mu sync.Mutex

	cfg       *Config
	transport Transport
	sink      Sink

	state connState

	inbound *inboundFramer
	frag    *defragmenter

	cipher   *cipherState   // active once this side has sent ChangeCipherSpec
	decipher *decipherState // active once the server's ChangeCipherSpec arrived

	hs handshakeState

	pending *pendingWrite
	paused  bool // true once Sink.OnData returned false, until the next Read

	signerEpoch uint64 // bumped so a stale watchSigner result can be detected
}

// NewStream wires transport and sink together and begins the handshake
// immediately: the transport is assumed already connected, since
// establishing that connection is out of scope (spec.md §1(a)).
func NewStream(transport Transport, sink Sink, cfg *Config) (*Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Stream{
		cfg:       cfg,
		transport: transport,
		sink:      sink,
		state:     stateConnecting,
		inbound:   &inboundFramer{},
	}
	s.frag = newDefragmenter(s.inbound)

	transport.OnData(s.onTransportData)
	transport.OnDrain(s.onTransportDrain)
	transport.OnClose(s.onTransportClose)
	transport.OnError(s.onTransportError)

	s.mu.Lock()
	s.startHandshake()
	s.mu.Unlock()

	return s, nil
}

// Write hands p to the stream. The returned bool mirrors Transport.Write's
// backpressure signal: true if it was handed to the transport without
// buffering, false if completion will instead be reported via the returned
// channel (once the handshake finishes, or the transport drains).
func (s *Stream) Write(p []byte) (accepted bool, done <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan error, 1)
	if s.state == stateTerminated {
		ch <- ErrClosed
		return false, ch
	}
	if s.pending != nil {
		ch <- fmt.Errorf("telsa: a write is already pending")
		return false, ch
	}

	switch s.state {
	case stateConnecting, stateHandshaking:
		s.pending = &pendingWrite{chunk: append([]byte(nil), p...), done: ch}
		return false, ch
	default: // stateEstablished
		accepted, err := s.sendApplicationData(p)
		if err != nil {
			s.terminate(reasonError, err)
			ch <- err
			return false, ch
		}
		if accepted {
			ch <- nil
			return true, ch
		}
		s.pending = &pendingWrite{done: ch}
		return false, ch
	}
}

// End gracefully closes the stream (reason `final`).
func (s *Stream) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminate(reasonFinal, nil)
	return nil
}

// Destroy tears the stream down immediately (reason `destroy`), without the
// close_notify courtesy alert or the upward end/close signals.
func (s *Stream) Destroy(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminate(reasonDestroy, err)
	return nil
}

// Read resumes delivery of decrypted application data after the Sink had
// previously asked for a pause by returning false from OnData.
func (s *Stream) Read() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated || !s.paused {
		return
	}
	s.paused = false
	s.transport.Resume()
	s.drainIncoming()
}

// emitHandshake appends raw to the client side of the transcript and writes
// it as a Handshake-type record (encrypted, if a cipher is already active).
func (s *Stream) emitHandshake(raw []byte) (bool, error) {
	s.hs.transcript.append(fromClient, raw)
	return s.writeRecord(ContentTypeHandshake, raw)
}

// writeRecord seals payload through the active cipher (if any), frames it,
// and hands it to the transport.
func (s *Stream) writeRecord(ct ContentType, payload []byte) (bool, error) {
	var wire []byte
	if s.cipher != nil {
		sealed, err := s.cipher.seal(ct, payload)
		if err != nil {
			return false, err
		}
		wire = frameRecord(ct, sealed)
	} else {
		wire = frameRecord(ct, payload)
	}
	return s.transport.Write(wire)
}

// sendApplicationData splits p into records no larger than
// MaxPlaintextLength and writes each in turn. The final record's
// backpressure signal is reported as the whole write's.
func (s *Stream) sendApplicationData(p []byte) (accepted bool, err error) {
	accepted = true
	for len(p) > 0 {
		n := len(p)
		if n > MaxPlaintextLength {
			n = MaxPlaintextLength
		}
		ok, err := s.writeRecord(ContentTypeApplicationData, p[:n])
		if err != nil {
			return false, err
		}
		accepted = ok
		p = p[n:]
	}
	return accepted, nil
}

// onTransportData feeds newly arrived bytes into the framer and drains as
// many complete protocol messages as are available.
func (s *Stream) onTransportData(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return
	}
	s.inbound.feed(p)
	s.drainIncoming()
}

// drainIncoming repeatedly pulls the next complete message out of the
// defragmenter and dispatches it by content type, stopping when more
// transport bytes are needed, the stream terminates, or upward backpressure
// (spec.md §6) asks it to pause.
func (s *Stream) drainIncoming() {
	for {
		msg, wouldBlock, err := s.frag.next()
		if err != nil {
			s.terminate(reasonError, err)
			return
		}
		if wouldBlock {
			return
		}

		var handleErr error
		switch msg.contentType {
		case ContentTypeAlert:
			handleErr = s.onAlertRecord(msg.body)
		case ContentTypeChangeCipherSpec:
			handleErr = s.onChangeCipherSpecRecord(msg.body)
		case ContentTypeHandshake:
			handleErr = s.onHandshakeRecord(msg.body)
		case ContentTypeApplicationData:
			handleErr = s.onApplicationDataRecord(msg.body)
		}
		if handleErr != nil {
			s.terminate(reasonError, handleErr)
			return
		}
		if s.state == stateTerminated || s.paused {
			return
		}
	}
}

// onApplicationDataRecord delivers one decrypted chunk to the sink, pausing
// further delivery if the sink asks for it.
func (s *Stream) onApplicationDataRecord(body []byte) error {
	if s.state != stateEstablished {
		return newProtocolError(AlertUnexpectedMessage, "application data received before the handshake completed")
	}
	if s.sink == nil {
		return nil
	}
	if !s.sink.OnData(body) {
		s.paused = true
		s.transport.Pause()
	}
	return nil
}

// onAlertRecord handles an inbound Alert record. Any fatal alert, or a
// close_notify at any level, terminates the stream; any other warning is
// logged and otherwise ignored, per spec.md §4.6/§4.7.
func (s *Stream) onAlertRecord(body []byte) error {
	if len(body) != 2 {
		return newProtocolError(AlertDecodeError, "malformed alert record")
	}
	level := AlertLevel(body[0])
	desc := AlertDescription(body[1])
	if level == AlertLevelWarning && desc != AlertCloseNotify {
		s.cfg.logger().Printf("telsa: received warning alert %s; ignoring", desc)
		return nil
	}
	s.terminate(reasonAlert, &PeerAlert{Level: level, Description: desc})
	return nil
}

func (s *Stream) onTransportDrain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return
	}
	if s.pending != nil && s.pending.chunk == nil {
		done := s.pending.done
		s.pending = nil
		done <- nil
	}
}

func (s *Stream) onTransportClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return
	}
	s.terminate(reasonSocket, nil)
}

func (s *Stream) onTransportError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateTerminated {
		return
	}
	s.terminate(reasonError, err)
}
