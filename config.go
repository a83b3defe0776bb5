package telsa

import (
	"crypto/rsa"
	"fmt"
	"io"
	"log"
)

// Config collects the options spec.md §6 names, plus the ambient
// logger every component in this pack threads through its constructors
// (mirrors TLSConnectionConfig in PoromKamal-distributed-matchmaking/TLS/tls/tls.go,
// extended with the fields spec.md's option table adds).
type Config struct {
	// Host is the expected server name, compared against the leaf
	// certificate's CN (spec.md §4.6).
	Host string
	// Port is the transport destination port. Establishing the connection
	// is out of scope (spec.md §1(a)); Port is carried only so callers
	// building their own Transport have it at hand.
	Port int

	// Roots is the trust store used to verify the server's certificate chain.
	Roots TrustStore
	// Cert is this client's certificate, DER-encoded.
	Cert []byte
	// Signer produces the CertificateVerify signature over the transcript.
	// Use NewLocalSigner to wrap an in-process rsa.PrivateKey, or supply an
	// AsyncSignerFunc for an external signing device.
	Signer Signer

	// Validity controls certificate date checking (spec.md §6's
	// validity_check_date: current, fixed, or skip).
	Validity ValidityCheck

	// Verifier overrides the default x509-based chain verifier. Nil selects
	// defaultChainVerifier.
	Verifier ChainVerifier

	// Logger receives diagnostic output; nil selects a logger that discards
	// everything, matching a library default rather than a CLI one ("logging
	// configuration" is explicitly out of scope per spec.md §1(d)).
	Logger *log.Logger
}

func (c *Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New(io.Discard, "", 0)
}

func (c *Config) verifier() ChainVerifier {
	if c.Verifier != nil {
		return c.Verifier
	}
	return defaultChainVerifier{}
}

// ClientCertificateFromKeyPair is a convenience for the common case: an
// in-process RSA private key paired with a DER certificate, producing both
// Config.Cert and Config.Signer.
func ClientCertificateFromKeyPair(certDER []byte, key *rsa.PrivateKey) (cert []byte, signer Signer) {
	return certDER, NewLocalSigner(key)
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("telsa: Config.Host is required")
	}
	if len(c.Cert) == 0 {
		return fmt.Errorf("telsa: Config.Cert is required")
	}
	if c.Signer == nil {
		return fmt.Errorf("telsa: Config.Signer is required")
	}
	if c.Roots.Pool == nil {
		return fmt.Errorf("telsa: Config.Roots is required")
	}
	return nil
}

// ParseRootsPEM parses concatenated PEM root certificates into a TrustStore.
func ParseRootsPEM(pemBytes []byte) (TrustStore, error) {
	certs, err := parseCertificatesPEM(pemBytes)
	if err != nil {
		return TrustStore{}, err
	}
	return NewTrustStore(certs), nil
}

// ParseCertificatePEM parses a single PEM certificate into DER, for Config.Cert.
func ParseCertificatePEM(pemBytes []byte) ([]byte, error) {
	certs, err := parseCertificatesDERFromPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("telsa: no certificate found in PEM input")
	}
	return certs[0], nil
}

// ParsePrivateKeyPEM parses a single PEM RSA private key (PKCS1 or PKCS8).
func ParsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	return parseRSAPrivateKeyPEM(pemBytes)
}
