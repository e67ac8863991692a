package issuer

import (
	"crypto"
	"crypto/x509"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YellowViking/sec-poc/internal/enroll"
	"github.com/YellowViking/sec-poc/internal/oracle"
)

func TestEnrollmentRoundTrip(t *testing.T) {
	ca, err := Open(filepath.Join(t.TempDir(), "ca-key.pem"), nil)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go ca.Serve(listener)

	signer, err := oracle.NewSoftware()
	require.NoError(t, err)

	client := &enroll.Client{IssuerAddr: listener.Addr().String(), Signer: signer}
	certDER, err := client.Enroll()
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	caCert, err := x509.ParseCertificate(ca.CACertificate())
	require.NoError(t, err)

	require.Equal(t, caCert.Subject.String(), cert.Issuer.String())
	require.Equal(t, enroll.Subject.String(), cert.Subject.String())
	require.NoError(t, cert.CheckSignatureFrom(caCert))

	leafPub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	require.True(t, ok)
	require.True(t, leafPub.Equal(signer.Public()))
}

func TestSignCSRRejectsBadSignature(t *testing.T) {
	ca, err := Open(filepath.Join(t.TempDir(), "ca-key.pem"), nil)
	require.NoError(t, err)

	signer, err := oracle.NewSoftware()
	require.NoError(t, err)
	csrDER, err := x509.CreateCertificateRequest(nil, &x509.CertificateRequest{
		Subject:            enroll.Subject,
		SignatureAlgorithm: x509.SHA256WithRSAPSS,
	}, signer)
	require.NoError(t, err)

	tampered := append([]byte(nil), csrDER...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = ca.SignCSR(tampered)
	require.Error(t, err)
}

func TestSuccessiveIssuedSerialsAreUnique(t *testing.T) {
	ca, err := Open(filepath.Join(t.TempDir(), "ca-key.pem"), nil)
	require.NoError(t, err)

	signer, err := oracle.NewSoftware()
	require.NoError(t, err)
	csrDER, err := x509.CreateCertificateRequest(nil, &x509.CertificateRequest{
		Subject:            enroll.Subject,
		SignatureAlgorithm: x509.SHA256WithRSAPSS,
	}, signer)
	require.NoError(t, err)

	certADER, err := ca.SignCSR(csrDER)
	require.NoError(t, err)
	certBDER, err := ca.SignCSR(csrDER)
	require.NoError(t, err)

	certA, err := x509.ParseCertificate(certADER)
	require.NoError(t, err)
	certB, err := x509.ParseCertificate(certBDER)
	require.NoError(t, err)

	require.NotEqual(t, certA.SerialNumber, certB.SerialNumber)
}
