package telsa

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Grounded on PoromKamal-distributed-matchmaking/TLS/tls/crypto-utils.go's
// readCertificateFromFile/readPrivateKeyFromFile, generalized to accept
// bytes already in memory (loading files is a caller concern, not this
// library's -- spec.md §1(d) keeps packaging/options parsing out of core).

func parseCertificatesDERFromPEM(data []byte) ([][]byte, error) {
	var out [][]byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			out = append(out, block.Bytes)
		}
	}
	return out, nil
}

func parseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	ders, err := parseCertificatesDERFromPEM(data)
	if err != nil {
		return nil, err
	}
	certs := make([]*x509.Certificate, 0, len(ders))
	for _, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("telsa: failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func parseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("telsa: failed to parse private key PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyInterface, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("telsa: failed to parse private key: %w", err)
	}
	key, ok := keyInterface.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("telsa: private key is not RSA")
	}
	return key, nil
}
