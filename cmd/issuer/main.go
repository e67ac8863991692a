// Command issuer runs the certificate authority: it answers enrollment
// requests over the bespoke length-prefixed protocol, and, when
// --demo-peer is set, also accepts TLS 1.3 handshakes from the client so
// an enrolled certificate can be exercised end-to-end without a second
// process.
package main

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/handshake"
	"github.com/YellowViking/sec-poc/internal/issuer"
	"github.com/YellowViking/sec-poc/internal/oracle"
	"github.com/YellowViking/sec-poc/internal/telemetry"
)

var demoSubject = pkix.Name{CommonName: "demo-peer", Organization: []string{"Sec-PoC-CA"}}

func main() {
	var (
		listenAddr        string
		keyPath           string
		logLevel          string
		demoPeerAddr      string
		requireClientAuth bool
	)

	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Run the certificate authority's enrollment endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := telemetry.New(logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			ca, err := issuer.Open(keyPath, log)
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listenAddr, err)
			}
			log.Info("issuer listening", zap.String("addr", listener.Addr().String()))

			errc := make(chan error, 2)
			go func() { errc <- ca.Serve(listener) }()

			if demoPeerAddr != "" {
				go func() { errc <- runDemoPeer(ca, demoPeerAddr, requireClientAuth, log) }()
			}
			return <-errc
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", "localhost:8080", "enrollment endpoint address")
	flags.StringVar(&keyPath, "key", issuer.DefaultKeyPath, "CA private key path")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&demoPeerAddr, "demo-peer", "", "if set, also run a demo TLS 1.3 server on this address")
	flags.BoolVar(&requireClientAuth, "require-client-auth", true, "demo peer requests a client certificate")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runDemoPeer enrolls the CA's own demo leaf certificate and accepts TLS
// 1.3 connections on addr, handing each to handshake.Server. It exists so
// the client binary has something to talk to without a second TLS stack.
func runDemoPeer(ca *issuer.Issuer, addr string, requireClientAuth bool, log *zap.Logger) error {
	signer, err := oracle.NewSoftware()
	if err != nil {
		return err
	}
	csr, err := buildDemoCSR(signer)
	if err != nil {
		return err
	}
	certDER, err := ca.SignCSR(csr)
	if err != nil {
		return fmt.Errorf("issue demo peer certificate: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	log.Info("demo TLS peer listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accept demo peer connection: %w", err)
		}
		go func() {
			defer conn.Close()
			srv := handshake.NewServer(conn, signer, certDER, requireClientAuth, log)
			app, err := srv.Run()
			if err != nil {
				log.Warn("demo peer handshake failed", zap.Error(err))
				return
			}
			if err := srv.SendApplicationData(app, []byte("Hello from the server\x00")); err != nil {
				log.Warn("demo peer application data write failed", zap.Error(err))
				return
			}
			reply, err := srv.RecvApplicationData(app)
			if err != nil {
				log.Warn("demo peer application data read failed", zap.Error(err))
				return
			}
			log.Info("demo peer handshake complete",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.ByteString("client_reply", reply))
		}()
	}
}

func buildDemoCSR(signer oracle.Signer) ([]byte, error) {
	return x509.CreateCertificateRequest(nil, &x509.CertificateRequest{
		Subject:            demoSubject,
		SignatureAlgorithm: x509.SHA256WithRSAPSS,
	}, signer)
}
