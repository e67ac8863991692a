package handshake

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YellowViking/sec-poc/internal/oracle"
)

// issueSelfSignedLeaf builds a standalone DER certificate for signer,
// self-signed, sufficient for the demo handshake driver's chain-parses
// check (it does not validate against a trust anchor).
func issueSelfSignedLeaf(t *testing.T, signer oracle.Signer, commonName string) []byte {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber:       big.NewInt(1),
		Subject:            pkix.Name{CommonName: commonName},
		SignatureAlgorithm: x509.SHA256WithRSAPSS,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	require.NoError(t, err)
	return der
}

func TestClientServerHandshakeWithClientAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientSigner, err := oracle.NewSoftware()
	require.NoError(t, err)
	serverSigner, err := oracle.NewSoftware()
	require.NoError(t, err)

	clientCert := issueSelfSignedLeaf(t, clientSigner, "client")
	serverCert := issueSelfSignedLeaf(t, serverSigner, "server")

	type serverResult struct {
		clientReply []byte
		err         error
	}
	serverDone := make(chan serverResult, 1)
	srv := NewServer(serverConn, serverSigner, serverCert, true, nil)
	go func() {
		serverApp, err := srv.Run()
		if err != nil {
			serverDone <- serverResult{err: err}
			return
		}
		if err := srv.SendApplicationData(serverApp, []byte("Hello from the server\x00")); err != nil {
			serverDone <- serverResult{err: err}
			return
		}
		reply, err := srv.RecvApplicationData(serverApp)
		serverDone <- serverResult{clientReply: reply, err: err}
	}()

	client := NewClient(clientConn, clientSigner, clientCert, nil)
	clientApp, err := client.Run()
	require.NoError(t, err)
	require.NotNil(t, clientApp)

	greeting, err := client.RecvApplicationData(clientApp)
	require.NoError(t, err)
	require.Equal(t, []byte("Hello from the server\x00"), greeting)

	require.NoError(t, client.SendApplicationData(clientApp, []byte("Hello from the client\x00")))

	result := <-serverDone
	require.NoError(t, result.err)
	require.Equal(t, []byte("Hello from the client\x00"), result.clientReply)
}

func TestClientServerHandshakeWithoutClientAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverSigner, err := oracle.NewSoftware()
	require.NoError(t, err)
	serverCert := issueSelfSignedLeaf(t, serverSigner, "server")

	serverDone := make(chan error, 1)
	go func() {
		srv := NewServer(serverConn, serverSigner, serverCert, false, nil)
		_, err := srv.Run()
		serverDone <- err
	}()

	client := NewClient(clientConn, nil, nil, nil)
	_, err = client.Run()
	require.NoError(t, err)
	require.NoError(t, <-serverDone)
}
