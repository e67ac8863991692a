// Package issuer implements the long-lived CA process: it holds a CA key
// pair and self-signed certificate, and answers enrollment requests by
// signing client CSRs into short-lived leaf certificates.
package issuer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/enroll"
	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// DefaultKeyPath is the fixed path the CA key pair is persisted to and
// loaded from across restarts.
const DefaultKeyPath = "privatekey.pem"

// Validity is the lifetime given to every issued leaf certificate.
const Validity = 365 * 24 * time.Hour

// Subject is the CA's own self-signed certificate subject.
var Subject = pkix.Name{
	Organization: []string{"Sec-PoC-CA"},
	CommonName:   "PoC CA",
}

// Issuer holds the CA key material and serves enrollment requests.
type Issuer struct {
	log     *zap.Logger
	key     *rsa.PrivateKey
	caCert  *x509.Certificate
	caDER   []byte
	serials atomic.Uint64
}

// Open loads the CA key pair from keyPath, generating and persisting a
// fresh RSA-2048 key if the file does not exist, then builds the
// self-signed CA certificate for this run.
func Open(keyPath string, log *zap.Logger) (*Issuer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	key, err := loadOrCreateKey(keyPath, log)
	if err != nil {
		return nil, err
	}

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return nil, tlserr.Issuerf(err, "generate CA serial number")
	}

	template := &x509.Certificate{
		SignatureAlgorithm:    x509.SHA256WithRSAPSS,
		SerialNumber:          serial,
		Subject:               Subject,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        false,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, tlserr.Issuerf(err, "create self-signed CA certificate")
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, tlserr.Issuerf(err, "parse self-signed CA certificate")
	}

	iss := &Issuer{log: log, key: key, caCert: caCert, caDER: caDER}
	// Seed the serial counter so issued leaf serials never collide with
	// the CA's own serial or with each other across the process lifetime.
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, tlserr.Issuerf(err, "seed serial counter")
	}
	iss.serials.Store(binary.BigEndian.Uint64(seed[:]))
	return iss, nil
}

func loadOrCreateKey(path string, log *zap.Logger) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("generating new CA key", zap.String("path", path))
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, tlserr.Issuerf(err, "generate CA key")
		}
		block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
		if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
			return nil, tlserr.Issuerf(err, "persist CA key")
		}
		return key, nil
	}
	if err != nil {
		return nil, tlserr.Issuerf(err, "read CA key file")
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, tlserr.Issuerf(nil, "no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, tlserr.Issuerf(err, "parse CA key")
	}
	return key, nil
}

// CACertificate returns the DER-encoded self-signed CA certificate.
func (iss *Issuer) CACertificate() []byte {
	return iss.caDER
}

// Serve accepts connections on listener until it is closed, handling each
// one with HandleConnection. A per-connection failure is logged and does
// not stop the loop.
func (iss *Issuer) Serve(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return tlserr.Transportf(err, "accept enrollment connection")
		}
		go func() {
			defer conn.Close()
			if err := iss.HandleConnection(conn); err != nil {
				iss.log.Warn("enrollment request failed", zap.Error(err))
			}
		}()
	}
}

// HandleConnection reads one length-prefixed CSR from conn, signs it, and
// writes back the DER-encoded leaf certificate.
func (iss *Issuer) HandleConnection(conn net.Conn) error {
	var lengthPrefix [enroll.LengthPrefixSize]byte
	if _, err := io.ReadFull(conn, lengthPrefix[:]); err != nil {
		return tlserr.Issuerf(err, "read CSR length prefix")
	}
	length := binary.BigEndian.Uint64(lengthPrefix[:])
	const maxCSRSize = 1 << 20
	if length > maxCSRSize {
		return tlserr.Issuerf(nil, "CSR length %d exceeds maximum %d", length, maxCSRSize)
	}
	csrDER := make([]byte, length)
	if _, err := io.ReadFull(conn, csrDER); err != nil {
		return tlserr.Issuerf(err, "read CSR body")
	}

	certDER, err := iss.SignCSR(csrDER)
	if err != nil {
		return err
	}
	if _, err := conn.Write(certDER); err != nil {
		return tlserr.Issuerf(err, "write issued certificate")
	}
	return nil
}

// SignCSR parses csrDER as a PKCS#10 request, validates its self-signature,
// and returns a DER-encoded leaf certificate under the CA key.
//
// Every issued serial comes from a monotonically incrementing,
// randomly-seeded counter rather than a fixed value, since a fixed serial
// would let two certificates for different subjects collide under the
// same issuer.
func (iss *Issuer) SignCSR(csrDER []byte) ([]byte, error) {
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, tlserr.Issuerf(err, "parse CSR")
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, tlserr.Issuerf(err, "CSR signature does not verify")
	}

	serial := new(big.Int).SetUint64(iss.serials.Add(1))
	template := &x509.Certificate{
		SignatureAlgorithm:    x509.SHA256WithRSAPSS,
		SerialNumber:          serial,
		Subject:               csr.Subject,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageKeyAgreement,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, iss.caCert, csr.PublicKey, iss.key)
	if err != nil {
		return nil, tlserr.Issuerf(err, "sign leaf certificate")
	}
	return certDER, nil
}
