// Package telsa implements a minimal TLS 1.2 client for mutually-authenticated
// connections to an IoT message broker (AWS IoT Core style mqtt-over-tls).
//
// It speaks exactly one cipher suite, TLS_RSA_WITH_AES_128_CBC_SHA, performs
// full client-certificate handshakes, and exposes the established session as
// a duplex byte stream: upper layers (MQTT in particular) write and read
// plaintext while telsa frames, encrypts and MACs TLS records underneath.
//
// Establishing the underlying transport, parsing/verifying X.509 chains and
// signing the handshake transcript with an off-box key are treated as
// external collaborators (Transport, ChainVerifier, Signer) rather than
// built-in concerns.
package telsa
