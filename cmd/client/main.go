// Command client enrolls a certificate with the issuer and then performs a
// mutually authenticated TLS 1.3 handshake against a peer, proving the
// enrolled certificate and the signing oracle behind it actually work
// together.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/enroll"
	"github.com/YellowViking/sec-poc/internal/handshake"
	"github.com/YellowViking/sec-poc/internal/oracle"
	"github.com/YellowViking/sec-poc/internal/telemetry"
)

func main() {
	var (
		issuerAddr string
		peerAddr   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Enroll a certificate and run a TLS 1.3 handshake against a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := telemetry.New(logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			signer, err := oracle.NewSoftware()
			if err != nil {
				return err
			}

			enrollClient := &enroll.Client{IssuerAddr: issuerAddr, Signer: signer, Log: log}
			certDER, err := enrollClient.Enroll()
			if err != nil {
				return fmt.Errorf("enrollment failed: %w", err)
			}

			conn, err := net.Dial("tcp", peerAddr)
			if err != nil {
				return fmt.Errorf("dial peer %s: %w", peerAddr, err)
			}
			defer conn.Close()

			hc := handshake.NewClient(conn, signer, certDER, log)
			app, err := hc.Run()
			if err != nil {
				return fmt.Errorf("handshake with %s failed: %w", peerAddr, err)
			}

			greeting, err := hc.RecvApplicationData(app)
			if err != nil {
				return fmt.Errorf("receive application data from %s: %w", peerAddr, err)
			}
			if err := hc.SendApplicationData(app, []byte("Hello from the client\x00")); err != nil {
				return fmt.Errorf("send application data to %s: %w", peerAddr, err)
			}
			log.Info("handshake complete",
				zap.String("peer", peerAddr),
				zap.ByteString("server_greeting", greeting))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&issuerAddr, "issuer", "localhost:8080", "issuer enrollment endpoint address")
	flags.StringVar(&peerAddr, "peer", "localhost:4443", "TLS 1.3 peer address")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
