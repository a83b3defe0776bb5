package telsa

import "crypto/rsa"

// Signer is the external collaborator spec.md §1(c)/§4.6 delegates
// CertificateVerify's signature to. Result arrives via a channel so a signer
// backed by a secure element or a remote KMS can complete asynchronously;
// the handshake engine tolerates the result arriving after termination
// (spec.md §4.6, §5 "Cancellation") by simply discarding it.
type Signer interface {
	// Sign starts signing data (RSA-PKCS1-SHA256) and returns a channel that
	// will receive exactly one SignResult.
	Sign(data []byte) <-chan SignResult
}

// SignResult is delivered exactly once on the channel returned by Signer.Sign.
type SignResult struct {
	Signature []byte
	Err       error
}

// localSigner signs synchronously with an in-process RSA private key.
type localSigner struct {
	key *rsa.PrivateKey
}

// NewLocalSigner wraps an RSA private key held in this process as a Signer.
func NewLocalSigner(key *rsa.PrivateKey) Signer {
	return &localSigner{key: key}
}

func (s *localSigner) Sign(data []byte) <-chan SignResult {
	ch := make(chan SignResult, 1)
	sig, err := rsaSignPKCS1v15(s.key, data)
	if err != nil {
		ch <- SignResult{Err: &SignerError{Err: err}}
	} else {
		ch <- SignResult{Signature: sig}
	}
	return ch
}

// AsyncSignerFunc adapts a plain function returning a channel into a Signer,
// for an external signing device (spec.md §6's "key" option: "Either a
// private key (PEM) or an asynchronous signer capability").
type AsyncSignerFunc func(data []byte) <-chan SignResult

func (f AsyncSignerFunc) Sign(data []byte) <-chan SignResult { return f(data) }
