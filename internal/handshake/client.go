// Package handshake drives the client side of a TLS 1.3 handshake:
// ClientHello through Finished, producing an application key schedule.
package handshake

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"net"

	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/keyschedule"
	"github.com/YellowViking/sec-poc/internal/oracle"
	"github.com/YellowViking/sec-poc/internal/tlserr"
	"github.com/YellowViking/sec-poc/internal/wire"
)

// certificateVerifyContextString is the fixed context string RFC 8446
// §4.4.3 defines for the client's CertificateVerify signing input,
// including its trailing NUL byte.
var certificateVerifyContextString = append([]byte("TLS 1.3, client CertificateVerify"), 0x00)

// Client drives one client-side TLS 1.3 handshake over conn.
type Client struct {
	conn net.Conn
	log  *zap.Logger

	signer        oracle.Signer
	clientCertDER []byte // nil if this handshake does not authenticate

	ks *keyschedule.HandshakeKeySchedule
	rr *wire.RecordReader
	rw *wire.RecordWriter
}

// NewClient builds a driver for a handshake over conn. clientCertDER may
// be nil; if the peer requests client authentication and no certificate
// was supplied, the handshake fails with a ProtocolError.
func NewClient(conn net.Conn, signer oracle.Signer, clientCertDER []byte, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		conn:          conn,
		log:           log,
		signer:        signer,
		clientCertDER: clientCertDER,
		rr:            wire.NewRecordReader(conn, log),
		rw:            wire.NewRecordWriter(conn, log),
	}
}

// Run executes the full handshake and returns the resulting application
// key schedule.
func (c *Client) Run() (*keyschedule.ApplicationKeySchedule, error) {
	ks, err := keyschedule.NewHandshakeKeySchedule()
	if err != nil {
		return nil, err
	}
	c.ks = ks

	if err := c.sendClientHello(); err != nil {
		return nil, err
	}
	if err := c.recvServerHello(); err != nil {
		return nil, err
	}
	if err := c.recvChangeCipherSpec(); err != nil {
		return nil, err
	}
	certRequested, err := c.recvEncryptedServerFlight()
	if err != nil {
		return nil, err
	}
	if certRequested {
		if c.clientCertDER == nil {
			return nil, tlserr.Protocolf("server requested client authentication but no client certificate is available")
		}
		if err := c.sendClientCertificate(); err != nil {
			return nil, err
		}
		if err := c.sendCertificateVerify(); err != nil {
			return nil, err
		}
	}
	return c.sendClientFinished()
}

func (c *Client) sendClientHello() error {
	var random [32]byte
	if _, err := rand.Read(random[:]); err != nil {
		return tlserr.Cryptof(err, "generate ClientHello random")
	}
	body := wire.BuildClientHello(wire.ClientHelloParams{
		Random:         random,
		X25519KeyShare: c.ks.ClientPublicKey(),
	})
	wrapped := wire.WrapHandshake(wire.HandshakeTypeClientHello, body)
	c.ks.AddTranscript(wrapped)
	return c.rw.WriteRecord(wire.ContentTypeHandshake, wrapped)
}

func (c *Client) recvServerHello() error {
	ct, body, err := c.rr.ReadRecord()
	if err != nil {
		return err
	}
	if ct != wire.ContentTypeHandshake {
		return tlserr.Protocolf("expected handshake record for ServerHello, got %v", ct)
	}
	msg, err := wire.ReadOneHandshakeMessage(body)
	if err != nil {
		return err
	}
	if msg.Type != wire.HandshakeTypeServerHello {
		return tlserr.Protocolf("expected server_hello, got %v", msg.Type)
	}
	c.ks.AddTranscript(msg.Raw)

	sh, err := wire.ParseServerHello(msg.Body)
	if err != nil {
		return err
	}
	return c.ks.UpdateHandshakeSecret(sh.X25519KeyShare)
}

func (c *Client) recvChangeCipherSpec() error {
	ct, _, err := c.rr.ReadRecord()
	if err != nil {
		return err
	}
	if ct != wire.ContentTypeChangeCipherSpec {
		return tlserr.Protocolf("expected change_cipher_spec, got %v", ct)
	}
	return nil
}

// recvEncryptedServerFlight reads and decrypts the single record this
// implementation expects to carry EncryptedExtensions, an optional
// CertificateRequest, Certificate, CertificateVerify and the server's
// Finished, in that order (RFC 8446 permits these to span multiple
// records; this driver does not coalesce across record boundaries — see
// the design notes). It returns whether the server requested client
// certificate authentication.
func (c *Client) recvEncryptedServerFlight() (bool, error) {
	ct, ciphertext, err := c.rr.ReadRecord()
	if err != nil {
		return false, err
	}
	if ct != wire.ContentTypeApplicationData {
		return false, tlserr.Protocolf("expected encrypted handshake record, got %v", ct)
	}
	if len(ciphertext) < 17 {
		return false, tlserr.Protocolf("encrypted record shorter than tag+content-type (%d bytes)", len(ciphertext))
	}

	header := recordHeader(ct, len(ciphertext))
	plaintext, err := c.ks.ServerReadCipher().Open(header, ciphertext)
	if err != nil {
		return false, err
	}

	innerType, msgs, err := wire.SplitHandshakeMessages(plaintext)
	if err != nil {
		return false, err
	}
	if innerType != wire.ContentTypeHandshake {
		return false, tlserr.Protocolf("expected handshake content in encrypted record, got %v", innerType)
	}
	if len(msgs) == 0 {
		return false, tlserr.Protocolf("encrypted handshake record carried no messages")
	}

	idx := 0
	next := func() (wire.HandshakeMessage, bool) {
		if idx >= len(msgs) {
			return wire.HandshakeMessage{}, false
		}
		m := msgs[idx]
		idx++
		return m, true
	}

	msg, ok := next()
	if !ok || msg.Type != wire.HandshakeTypeEncryptedExtensions {
		return false, tlserr.Protocolf("expected encrypted_extensions first, got %v", msg.Type)
	}
	c.ks.AddTranscript(msg.Raw)

	msg, ok = next()
	if !ok {
		return false, tlserr.Protocolf("encrypted record ended before Certificate")
	}
	certRequested := false
	if msg.Type == wire.HandshakeTypeCertificateRequest {
		certRequested = true
		c.ks.AddTranscript(msg.Raw)
		msg, ok = next()
		if !ok {
			return false, tlserr.Protocolf("encrypted record ended before Certificate")
		}
	}
	if msg.Type != wire.HandshakeTypeCertificate {
		return false, tlserr.Protocolf("expected certificate, got %v", msg.Type)
	}
	c.ks.AddTranscript(msg.Raw)
	cert, err := wire.ParseCertificate(msg.Body)
	if err != nil {
		return false, err
	}
	// Chain and CertificateVerify validation against a trust anchor is
	// explicitly out of scope for this implementation; only structural
	// DER-parseability is checked here.
	for _, entry := range cert.Entries {
		if _, err := parseX509(entry.CertData); err != nil {
			return false, tlserr.Parsef("server certificate does not DER-parse: %v", err)
		}
	}

	msg, ok = next()
	if !ok || msg.Type != wire.HandshakeTypeCertificateVerify {
		return false, tlserr.Protocolf("expected certificate_verify, got %v", msg.Type)
	}
	c.ks.AddTranscript(msg.Raw)
	if _, err := wire.ParseCertificateVerify(msg.Body); err != nil {
		return false, err
	}

	msg, ok = next()
	if !ok || msg.Type != wire.HandshakeTypeFinished {
		return false, tlserr.Protocolf("expected finished, got %v", msg.Type)
	}
	if idx != len(msgs) {
		return false, tlserr.Protocolf("unexpected trailing messages after server finished")
	}
	// Server Finished's verify_data is parsed but not checked against
	// ServerVerifyData: this client does not verify the server's Finished
	// message.
	if _, err := wire.ParseFinished(msg.Body); err != nil {
		return false, err
	}
	c.ks.AddTranscript(msg.Raw)
	c.ks.OnServerFinished()

	return certRequested, nil
}

func (c *Client) sendClientCertificate() error {
	body := wire.BuildCertificate(c.clientCertDER)
	return c.encryptAndSend(wire.HandshakeTypeCertificate, body)
}

func (c *Client) sendCertificateVerify() error {
	signingInput := make([]byte, 0, 64+len(certificateVerifyContextString)+32)
	signingInput = append(signingInput, bytes.Repeat([]byte{0x20}, 64)...)
	signingInput = append(signingInput, certificateVerifyContextString...)
	signingInput = append(signingInput, c.ks.TranscriptHash()...)

	sig, err := signMessage(c.signer, signingInput)
	if err != nil {
		return err
	}
	body := wire.BuildCertificateVerify(sig)
	return c.encryptAndSend(wire.HandshakeTypeCertificateVerify, body)
}

func (c *Client) sendClientFinished() (*keyschedule.ApplicationKeySchedule, error) {
	verifyData := c.ks.ClientVerifyData()
	body := wire.BuildFinished(verifyData)
	if err := c.encryptAndSend(wire.HandshakeTypeFinished, body); err != nil {
		return nil, err
	}
	return c.ks.IntoApplicationKeySchedule()
}

// SendApplicationData seals data as one application-data record under the
// application key schedule's client write cipher and writes it to the
// peer. Run must have completed successfully before this is called.
func (c *Client) SendApplicationData(app *keyschedule.ApplicationKeySchedule, data []byte) error {
	inner := wire.WrapInnerPlaintext(wire.ContentTypeApplicationData, data)
	cipherLen := len(inner) + app.ClientWriteCipher().Overhead()
	header := recordHeader(wire.ContentTypeApplicationData, cipherLen)
	ciphertext, err := app.ClientWriteCipher().Seal(header, inner)
	if err != nil {
		return err
	}
	return c.rw.WriteRecord(wire.ContentTypeApplicationData, ciphertext)
}

// RecvApplicationData reads one application-data record and opens it under
// the application key schedule's server read cipher.
func (c *Client) RecvApplicationData(app *keyschedule.ApplicationKeySchedule) ([]byte, error) {
	ct, ciphertext, err := c.rr.ReadRecord()
	if err != nil {
		return nil, err
	}
	if ct != wire.ContentTypeApplicationData {
		return nil, tlserr.Protocolf("expected application_data record, got %v", ct)
	}
	header := recordHeader(ct, len(ciphertext))
	plaintext, err := app.ServerReadCipher().Open(header, ciphertext)
	if err != nil {
		return nil, err
	}
	innerType, content, err := wire.UnwrapInnerPlaintext(plaintext)
	if err != nil {
		return nil, err
	}
	if innerType != wire.ContentTypeApplicationData {
		return nil, tlserr.Protocolf("expected application_data content, got %v", innerType)
	}
	return content, nil
}

// encryptAndSend wraps body in a handshake header, encrypts it as a single
// application-data record under the handshake write cipher, and folds the
// plaintext wrapped message into the transcript — the same ordering the
// driver uses for every handshake message it sends or receives: the
// transcript always carries plaintext handshake bytes, never ciphertext.
func (c *Client) encryptAndSend(ht wire.HandshakeType, body []byte) error {
	wrapped := wire.WrapHandshake(ht, body)
	inner := append(append([]byte(nil), wrapped...), byte(wire.ContentTypeHandshake))
	cipherLen := len(inner) + c.ks.ClientWriteCipher().Overhead()
	header := recordHeader(wire.ContentTypeApplicationData, cipherLen)

	ciphertext, err := c.ks.ClientWriteCipher().Seal(header, inner)
	if err != nil {
		return err
	}
	if err := c.rw.WriteRecord(wire.ContentTypeApplicationData, ciphertext); err != nil {
		return err
	}
	c.ks.AddTranscript(wrapped)
	return nil
}

func recordHeader(ct wire.ContentType, length int) []byte {
	return []byte{
		byte(ct),
		byte(wire.LegacyVersionTLS12 >> 8), byte(wire.LegacyVersionTLS12),
		byte(length >> 8), byte(length),
	}
}

// signMessage hashes msg with SHA-256 and asks the oracle for an
// RSASSA-PSS-RSAE-SHA256 signature over the digest.
func signMessage(signer oracle.Signer, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	sig, err := signer.Sign(rand.Reader, digest[:], opts)
	if err != nil {
		return nil, tlserr.Signerf(err, "CertificateVerify signature")
	}
	return sig, nil
}

// parseX509 DER-parses a certificate; the driver uses this only to check
// that a server-presented chain entry is structurally well-formed, not to
// validate it against a trust anchor.
func parseX509(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}
