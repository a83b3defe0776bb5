package telsa

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"strings"
	"time"
)

// ValidityCheck controls how the certificate chain's not-before/not-after
// fields are checked, per spec.md §6's validity_check_date option.
type ValidityCheck struct {
	// Skip, when true, accepts any certificate date (useful for devices
	// with no trustworthy real-time clock yet).
	Skip bool
	// At, when non-zero and Skip is false, pins the validation instant
	// instead of using time.Now().
	At time.Time
}

func (v ValidityCheck) resolve() time.Time {
	if v.Skip {
		return time.Time{}
	}
	if !v.At.IsZero() {
		return v.At
	}
	return time.Now()
}

// TrustStore is the configured set of root certificates, kept both as
// parsed certificates (for the "skip date validation" signature-only path)
// and as an *x509.CertPool (for the normal x509.Verify path).
type TrustStore struct {
	Certs []*x509.Certificate
	Pool  *x509.CertPool
}

// NewTrustStore builds a TrustStore from already-parsed root certificates
// (ParseRootsPEM does the same starting from PEM input).
func NewTrustStore(roots []*x509.Certificate) TrustStore {
	pool := x509.NewCertPool()
	for _, c := range roots {
		pool.AddCert(c)
	}
	return TrustStore{Certs: roots, Pool: pool}
}

// ChainVerifier is the external collaborator spec.md §1(b)/§6 delegates
// X.509 chain verification to. telsa ships a default implementation
// (defaultChainVerifier below) built on crypto/x509, since the spec treats this as a
// pluggable capability, not a built-in one.
type ChainVerifier interface {
	VerifyChain(chainDER [][]byte, roots TrustStore, check ValidityCheck) error
}

type defaultChainVerifier struct{}

// VerifyChain verifies chainDER (leaf first) against roots, mapping
// x509 failures onto the closest TLS alert per spec.md §4.6.
func (defaultChainVerifier) VerifyChain(chainDER [][]byte, roots TrustStore, check ValidityCheck) error {
	certs := make([]*x509.Certificate, len(chainDER))
	for i, der := range chainDER {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return wrapProtocolError(AlertBadCertificate, "failed to parse certificate", err)
		}
		certs[i] = cert
	}

	if check.Skip {
		return verifyChainSignaturesOnly(certs, roots.Certs)
	}

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{
		Roots:         roots.Pool,
		Intermediates: intermediates,
		CurrentTime:   check.resolve(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := certs[0].Verify(opts); err != nil {
		return mapVerifyError(err)
	}
	return nil
}

// verifyChainSignaturesOnly walks the presented chain and the root store
// checking only signatures, bypassing expiry -- this is how "skip" date
// validation (spec.md §6) is realized, since x509.VerifyOptions has no way
// to disable date checks outright.
func verifyChainSignaturesOnly(certs []*x509.Certificate, roots []*x509.Certificate) error {
	for i := 0; i+1 < len(certs); i++ {
		if err := certs[i].CheckSignatureFrom(certs[i+1]); err != nil {
			return wrapProtocolError(AlertBadCertificate, "chain signature check failed", err)
		}
	}
	last := certs[len(certs)-1]
	for _, root := range roots {
		if last.CheckSignatureFrom(root) == nil {
			return nil
		}
	}
	return newProtocolError(AlertUnknownCA, "no root in the configured store signed this chain")
}

func mapVerifyError(err error) error {
	switch e := err.(type) {
	case x509.CertificateInvalidError:
		switch e.Reason {
		case x509.Expired:
			return wrapProtocolError(AlertCertificateExpired, "certificate expired or not yet valid", err)
		case x509.IncompatibleUsage:
			return wrapProtocolError(AlertUnsupportedCertificate, "certificate usage incompatible", err)
		default:
			return wrapProtocolError(AlertBadCertificate, "certificate invalid", err)
		}
	case x509.UnknownAuthorityError:
		return wrapProtocolError(AlertUnknownCA, "unknown certificate authority", err)
	case x509.HostnameError:
		return wrapProtocolError(AlertCertificateUnknown, "hostname mismatch", err)
	default:
		return wrapProtocolError(AlertCertificateUnknown, "chain verification failed", err)
	}
}

// matchHost implements spec.md §4.6's CN comparison: a leading "*" in the
// leaf's CN matches any host whose domain ends with the remainder.
func matchHost(cn, host string) bool {
	cn = strings.ToLower(cn)
	host = strings.ToLower(host)
	if strings.HasPrefix(cn, "*") {
		suffix := cn[1:]
		return strings.HasSuffix(host, suffix) && host != strings.TrimPrefix(suffix, ".")
	}
	return cn == host
}

// extractLeafPublicKey extracts the RSA public key a ClientKeyExchange
// should encrypt under, and the leaf's CN for the host check.
func extractLeafPublicKey(leafDER []byte) (*rsa.PublicKey, string, error) {
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, "", wrapProtocolError(AlertBadCertificate, "failed to parse leaf certificate", err)
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, "", newProtocolError(AlertUnsupportedCertificate, "leaf certificate is not RSA")
	}
	return pub, leaf.Subject.CommonName, nil
}

func rsaEncryptPKCS1v15Impl(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	return rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
}

// rsaSignPKCS1v15 signs the SHA-256 digest of data with an in-process RSA
// private key, used by the synchronous Signer in signer.go.
func rsaSignPKCS1v15(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
}
