package telsa

// terminationReason is the single unified trigger set spec.md §4.7's
// termination controller switches on.
type terminationReason uint8

const (
	reasonFinal terminationReason = iota
	reasonDestroy
	reasonSocket
	reasonError
	reasonAlert
	reasonCloseNotify
)

// terminate is the one procedure every path to TERMINATED funnels through
// (spec.md §4.7): it emits a best-effort alert, tears the transport down,
// signals end-of-stream to the sink, resolves the pending write slot (or
// reports the error to the sink when none is pending), flips the connection
// state synchronously, and finally signals close to the sink, in that order;
// the two sink end/close signals are skipped for destroy. Re-entrant calls
// after the first are no-ops, matching spec.md §5's "termination is idempotent".
func (s *Stream) terminate(reason terminationReason, err error) {
	if s.state == stateTerminated {
		return
	}

	// A peer close_notify is always a warning and carries no error of its
	// own; reclassify it so the rules below don't need to special-case it.
	if reason == reasonAlert {
		if pa, ok := err.(*PeerAlert); ok && pa.Description == AlertCloseNotify {
			reason = reasonCloseNotify
			err = nil
		}
	}

	stateBeforeTermination := s.state

	switch reason {
	case reasonFinal:
		if stateBeforeTermination == stateHandshaking {
			s.sendAlertBestEffort(AlertLevelWarning, AlertUserCanceled)
		}
		s.sendAlertBestEffort(AlertLevelWarning, AlertCloseNotify)
	case reasonCloseNotify:
		s.sendAlertBestEffort(AlertLevelWarning, AlertCloseNotify)
	case reasonError:
		if pe, ok := err.(*ProtocolError); ok {
			s.sendAlertBestEffort(pe.Level, pe.Description)
		} else {
			s.sendAlertBestEffort(AlertLevelFatal, AlertInternalError)
		}
	case reasonDestroy, reasonAlert, reasonSocket:
		// destroy: no graceful shutdown attempted.
		// alert: the peer already sent theirs, nothing of ours to send.
		// socket: the transport is already gone.
	}

	if reason == reasonDestroy {
		_ = s.transport.Destroy()
	} else {
		_ = s.transport.End()
	}

	if reason != reasonDestroy && s.sink != nil {
		s.sink.OnEnd()
	}

	if s.pending != nil {
		resolveErr := err
		switch {
		case reason == reasonSocket && err == nil:
			resolveErr = errPrematureClose
		case reason == reasonCloseNotify && stateBeforeTermination == stateHandshaking:
			resolveErr = errServerClose
		case reason == reasonCloseNotify && stateBeforeTermination == stateEstablished:
			resolveErr = errSocketEndedByPeer
		}
		done := s.pending.done
		s.pending = nil
		done <- resolveErr
	} else if err != nil && s.sink != nil {
		s.sink.OnError(err)
	}

	s.state = stateTerminated

	if reason != reasonDestroy && s.sink != nil {
		s.sink.OnClose()
	}
}

// sendAlertBestEffort tries to write one alert record and swallows any
// resulting transport error, per spec.md §4.7: a failure to send the
// courtesy alert must never prevent termination from completing.
func (s *Stream) sendAlertBestEffort(level AlertLevel, desc AlertDescription) {
	_, _ = s.writeRecord(ContentTypeAlert, []byte{byte(level), byte(desc)})
}
