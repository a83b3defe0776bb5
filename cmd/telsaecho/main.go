// Command telsaecho dials a TCP endpoint, runs a mutual-TLS handshake
// through telsa, and relays stdin lines to the connection and whatever
// comes back to stdout. It exists to exercise the library end to end, not as
// a supported client; flag parsing and file loading stay here rather than in
// the library (spec.md §1(d)).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	_ "github.com/mkobetic/okapi/libcrypto" // registers the okapi hash/HMAC/cipher backend
	"github.com/wisnuc/telsa"
)

func main() {
	host := flag.String("host", "", "server host (and certificate CN to expect)")
	port := flag.Int("port", 8443, "server port")
	caFile := flag.String("ca", "", "path to PEM root CA certificate(s)")
	certFile := flag.String("cert", "", "path to this client's PEM certificate")
	keyFile := flag.String("key", "", "path to this client's PEM RSA private key")
	skipDates := flag.Bool("skip-validity", false, "accept certificates regardless of their validity window")
	flag.Parse()

	if *host == "" || *caFile == "" || *certFile == "" || *keyFile == "" {
		fmt.Fprintln(os.Stderr, "usage: telsaecho -host H -ca ca.pem -cert client.pem -key client.key [-port 8443]")
		os.Exit(2)
	}

	roots, err := os.ReadFile(*caFile)
	fatalIf(err)
	certPEM, err := os.ReadFile(*certFile)
	fatalIf(err)
	keyPEM, err := os.ReadFile(*keyFile)
	fatalIf(err)

	trustStore, err := telsa.ParseRootsPEM(roots)
	fatalIf(err)
	certDER, err := telsa.ParseCertificatePEM(certPEM)
	fatalIf(err)
	key, err := telsa.ParsePrivateKeyPEM(keyPEM)
	fatalIf(err)

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", *host, *port))
	fatalIf(err)
	defer conn.Close()

	cert, signer := telsa.ClientCertificateFromKeyPair(certDER, key)
	cfg := &telsa.Config{
		Host:     *host,
		Port:     *port,
		Roots:    trustStore,
		Cert:     cert,
		Signer:   signer,
		Validity: telsa.ValidityCheck{Skip: *skipDates},
		Logger:   log.New(os.Stderr, "telsa: ", log.LstdFlags),
	}

	transport := newTCPTransport(conn)
	closed := make(chan struct{})
	sink := &stdoutSink{closed: closed}

	stream, err := telsa.NewStream(transport, sink, cfg)
	fatalIf(err)
	sink.stream = stream

	transport.start()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := append(scanner.Bytes(), '\n')
			_, done := stream.Write(line)
			if err := <-done; err != nil {
				log.Println("telsaecho: write failed:", err)
				return
			}
		}
	}()

	<-closed
}

func fatalIf(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// stdoutSink prints decrypted application data to stdout.
type stdoutSink struct {
	stream *telsa.Stream
	closed chan struct{}
	once   sync.Once
}

func (s *stdoutSink) OnData(p []byte) bool {
	os.Stdout.Write(p)
	return true
}

func (s *stdoutSink) OnEnd() {}

func (s *stdoutSink) OnClose() {
	s.once.Do(func() { close(s.closed) })
}

func (s *stdoutSink) OnError(err error) {
	log.Println("telsaecho: connection error:", err)
}
