package telsa

import "fmt"

// AlertLevel is the level byte of a TLS alert record (RFC 5246 §7.2).
type AlertLevel uint8

const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

func (l AlertLevel) String() string {
	switch l {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("alert-level(%d)", uint8(l))
	}
}

// AlertDescription is the description byte of a TLS alert record.
// Only the subset relevant to a TLS_RSA_WITH_AES_128_CBC_SHA handshake is named.
type AlertDescription uint8

const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertRecordOverflow         AlertDescription = 22
	AlertDecompressionFailure   AlertDescription = 30
	AlertHandshakeFailure       AlertDescription = 40
	AlertBadCertificate         AlertDescription = 42
	AlertUnsupportedCertificate AlertDescription = 43
	AlertCertificateRevoked     AlertDescription = 44
	AlertCertificateExpired     AlertDescription = 45
	AlertCertificateUnknown     AlertDescription = 46
	AlertIllegalParameter       AlertDescription = 47
	AlertUnknownCA              AlertDescription = 48
	AlertAccessDenied           AlertDescription = 49
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertInsufficientSecurity   AlertDescription = 71
	AlertInternalError          AlertDescription = 80
	AlertUserCanceled           AlertDescription = 90
	AlertNoRenegotiation        AlertDescription = 100
	AlertUnsupportedExtension   AlertDescription = 110
)

var alertNames = map[AlertDescription]string{
	AlertCloseNotify:            "close_notify",
	AlertUnexpectedMessage:      "unexpected_message",
	AlertBadRecordMAC:           "bad_record_mac",
	AlertRecordOverflow:         "record_overflow",
	AlertDecompressionFailure:   "decompression_failure",
	AlertHandshakeFailure:       "handshake_failure",
	AlertBadCertificate:         "bad_certificate",
	AlertUnsupportedCertificate: "unsupported_certificate",
	AlertCertificateRevoked:     "certificate_revoked",
	AlertCertificateExpired:     "certificate_expired",
	AlertCertificateUnknown:     "certificate_unknown",
	AlertIllegalParameter:       "illegal_parameter",
	AlertUnknownCA:              "unknown_ca",
	AlertAccessDenied:           "access_denied",
	AlertDecodeError:            "decode_error",
	AlertDecryptError:           "decrypt_error",
	AlertProtocolVersion:        "protocol_version",
	AlertInsufficientSecurity:   "insufficient_security",
	AlertInternalError:          "internal_error",
	AlertUserCanceled:           "user_canceled",
	AlertNoRenegotiation:        "no_renegotiation",
	AlertUnsupportedExtension:   "unsupported_extension",
}

func (d AlertDescription) String() string {
	if s, ok := alertNames[d]; ok {
		return s
	}
	return fmt.Sprintf("unknown_alert_description(%d)", uint8(d))
}

// ProtocolError is a locally detected TLS protocol violation. It always maps
// to an alert description and carries the level that would be sent on the wire.
type ProtocolError struct {
	Description AlertDescription
	Level       AlertLevel
	Reason      string
	Err         error
}

func (e *ProtocolError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("telsa: %s", e.Description)
	}
	return fmt.Sprintf("telsa: %s: %s", e.Description, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func newProtocolError(desc AlertDescription, reason string) *ProtocolError {
	return &ProtocolError{Description: desc, Level: AlertLevelFatal, Reason: reason}
}

func wrapProtocolError(desc AlertDescription, reason string, err error) *ProtocolError {
	return &ProtocolError{Description: desc, Level: AlertLevelFatal, Reason: reason, Err: err}
}

// PeerAlert is an alert received from the remote peer.
type PeerAlert struct {
	Level       AlertLevel
	Description AlertDescription
}

func (a *PeerAlert) Error() string {
	return fmt.Sprintf("telsa: peer alert: %s %s", a.Level, a.Description)
}

// SignerError wraps a failure from an injected signing capability.
type SignerError struct {
	Err error
}

func (e *SignerError) Error() string { return fmt.Sprintf("telsa: signer failed: %s", e.Err) }
func (e *SignerError) Unwrap() error { return e.Err }

// errPrematureClose is synthesized when the transport closes before
// close_notify was ever seen, per spec.md §4.7.
var errPrematureClose = fmt.Errorf("telsa: premature close")

// errServerClose is synthesized for a peer close_notify received while still
// handshaking.
var errServerClose = fmt.Errorf("telsa: server close")

// errSocketEndedByPeer mirrors Node's EPIPE "socket ended by peer" used when
// close_notify arrives while ESTABLISHED with a write in flight.
var errSocketEndedByPeer = fmt.Errorf("telsa: EPIPE: socket ended by peer")

// ErrClosed is delivered on the channel returned by Write once the stream is
// TERMINATED. End and Destroy on a terminated stream are no-ops returning nil.
var ErrClosed = fmt.Errorf("telsa: EPIPE: stream is closed")
