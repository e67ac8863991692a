package handshake

import (
	"bytes"
	"crypto/rand"
	"net"

	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/keyschedule"
	"github.com/YellowViking/sec-poc/internal/oracle"
	"github.com/YellowViking/sec-poc/internal/tlserr"
	"github.com/YellowViking/sec-poc/internal/wire"
)

// Server drives the server side of a TLS 1.3 handshake against a single
// connection. It exists so this repository's own test suite can exercise
// Client end-to-end without depending on an external TLS stack; the spec
// treats a production demo server's TLS termination as an external
// collaborator, but a minimal same-package counterpart is in scope for
// testing the client and key schedule from both directions.
type Server struct {
	conn net.Conn
	log  *zap.Logger

	signer            oracle.Signer
	certDER           []byte
	requireClientAuth bool

	ks *keyschedule.HandshakeKeySchedule
	rr *wire.RecordReader
	rw *wire.RecordWriter
}

// NewServer builds a driver that authenticates itself with certDER/signer
// and, if requireClientAuth is set, requests and requires a client
// certificate in return.
func NewServer(conn net.Conn, signer oracle.Signer, certDER []byte, requireClientAuth bool, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		conn:              conn,
		log:               log,
		signer:            signer,
		certDER:           certDER,
		requireClientAuth: requireClientAuth,
		rr:                wire.NewRecordReader(conn, log),
		rw:                wire.NewRecordWriter(conn, log),
	}
}

// Run executes one handshake and returns the resulting application key
// schedule.
func (s *Server) Run() (*keyschedule.ApplicationKeySchedule, error) {
	ks, err := keyschedule.NewHandshakeKeySchedule()
	if err != nil {
		return nil, err
	}
	s.ks = ks

	clientKeyShare, err := s.recvClientHello()
	if err != nil {
		return nil, err
	}
	if err := s.sendServerHello(); err != nil {
		return nil, err
	}
	if err := s.ks.UpdateHandshakeSecret(clientKeyShare); err != nil {
		return nil, err
	}
	if err := s.sendChangeCipherSpec(); err != nil {
		return nil, err
	}
	if err := s.sendEncryptedFlight(); err != nil {
		return nil, err
	}
	return s.recvClientFlight()
}

func (s *Server) recvClientHello() ([]byte, error) {
	ct, body, err := s.rr.ReadRecord()
	if err != nil {
		return nil, err
	}
	if ct != wire.ContentTypeHandshake {
		return nil, tlserr.Protocolf("expected handshake record for ClientHello, got %v", ct)
	}
	msg, err := wire.ReadOneHandshakeMessage(body)
	if err != nil {
		return nil, err
	}
	if msg.Type != wire.HandshakeTypeClientHello {
		return nil, tlserr.Protocolf("expected client_hello, got %v", msg.Type)
	}
	s.ks.AddTranscript(msg.Raw)

	ch, err := wire.ParseClientHelloKeyShare(msg.Body)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Server) sendServerHello() error {
	var random [32]byte
	if _, err := rand.Read(random[:]); err != nil {
		return tlserr.Cryptof(err, "generate ServerHello random")
	}
	body := wire.BuildServerHello(random, s.ks.LocalPublicKey())
	wrapped := wire.WrapHandshake(wire.HandshakeTypeServerHello, body)
	s.ks.AddTranscript(wrapped)
	return s.rw.WriteRecord(wire.ContentTypeHandshake, wrapped)
}

func (s *Server) sendChangeCipherSpec() error {
	return s.rw.WriteRecord(wire.ContentTypeChangeCipherSpec, []byte{0x01})
}

// sendEncryptedFlight sends EncryptedExtensions, an optional
// CertificateRequest, Certificate, CertificateVerify and Finished as one
// encrypted record, mirroring the single-record simplification this
// implementation's client side expects.
func (s *Server) sendEncryptedFlight() error {
	var plaintext []byte
	add := func(ht wire.HandshakeType, body []byte) {
		wrapped := wire.WrapHandshake(ht, body)
		s.ks.AddTranscript(wrapped)
		plaintext = append(plaintext, wrapped...)
	}

	add(wire.HandshakeTypeEncryptedExtensions, wire.BuildEncryptedExtensions())
	if s.requireClientAuth {
		add(wire.HandshakeTypeCertificateRequest, wire.BuildCertificateRequest())
	}
	add(wire.HandshakeTypeCertificate, wire.BuildCertificate(s.certDER))

	signingInput := make([]byte, 0, 64+len(certificateVerifyContextString)+32)
	signingInput = append(signingInput, bytes.Repeat([]byte{0x20}, 64)...)
	signingInput = append(signingInput, certificateVerifyContextString...)
	signingInput = append(signingInput, s.ks.TranscriptHash()...)
	sig, err := signMessage(s.signer, signingInput)
	if err != nil {
		return err
	}
	add(wire.HandshakeTypeCertificateVerify, wire.BuildCertificateVerify(sig))

	verifyData := s.ks.ServerVerifyData()
	finishedWrapped := wire.WrapHandshake(wire.HandshakeTypeFinished, wire.BuildFinished(verifyData))
	s.ks.AddTranscript(finishedWrapped)
	plaintext = append(plaintext, finishedWrapped...)
	s.ks.OnServerFinished()

	inner := append(plaintext, byte(wire.ContentTypeHandshake))
	cipherLen := len(inner) + s.ks.ServerWriteCipher().Overhead()
	header := recordHeader(wire.ContentTypeApplicationData, cipherLen)
	ciphertext, err := s.ks.ServerWriteCipher().Seal(header, inner)
	if err != nil {
		return err
	}
	return s.rw.WriteRecord(wire.ContentTypeApplicationData, ciphertext)
}

// recvClientFlight reads the client's authentication messages, one per
// encrypted record, mirroring the driver's own per-message send pattern
// (see Client.encryptAndSend).
func (s *Server) recvClientFlight() (*keyschedule.ApplicationKeySchedule, error) {
	if !s.requireClientAuth {
		return s.recvClientFinishedOnly()
	}

	certMsg, err := s.recvOneEncryptedMessage()
	if err != nil {
		return nil, err
	}
	if certMsg.Type != wire.HandshakeTypeCertificate {
		return nil, tlserr.Protocolf("expected client certificate, got %v", certMsg.Type)
	}
	s.ks.AddTranscript(certMsg.Raw)

	verifyMsg, err := s.recvOneEncryptedMessage()
	if err != nil {
		return nil, err
	}
	if verifyMsg.Type != wire.HandshakeTypeCertificateVerify {
		return nil, tlserr.Protocolf("expected client certificate_verify, got %v", verifyMsg.Type)
	}
	s.ks.AddTranscript(verifyMsg.Raw)

	finishedMsg, err := s.recvOneEncryptedMessage()
	if err != nil {
		return nil, err
	}
	if finishedMsg.Type != wire.HandshakeTypeFinished {
		return nil, tlserr.Protocolf("expected client finished, got %v", finishedMsg.Type)
	}
	verifyData, err := wire.ParseFinished(finishedMsg.Body)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(verifyData, s.ks.ClientVerifyData()) {
		return nil, tlserr.Protocolf("client Finished verify_data mismatch")
	}
	s.ks.AddTranscript(finishedMsg.Raw)
	return s.ks.IntoApplicationKeySchedule()
}

// SendApplicationData seals data as one application-data record under the
// application key schedule's server write cipher and writes it to the
// peer. Run must have completed successfully before this is called.
func (s *Server) SendApplicationData(app *keyschedule.ApplicationKeySchedule, data []byte) error {
	inner := wire.WrapInnerPlaintext(wire.ContentTypeApplicationData, data)
	cipherLen := len(inner) + app.ServerWriteCipher().Overhead()
	header := recordHeader(wire.ContentTypeApplicationData, cipherLen)
	ciphertext, err := app.ServerWriteCipher().Seal(header, inner)
	if err != nil {
		return err
	}
	return s.rw.WriteRecord(wire.ContentTypeApplicationData, ciphertext)
}

// RecvApplicationData reads one application-data record and opens it under
// the application key schedule's client read cipher.
func (s *Server) RecvApplicationData(app *keyschedule.ApplicationKeySchedule) ([]byte, error) {
	ct, ciphertext, err := s.rr.ReadRecord()
	if err != nil {
		return nil, err
	}
	if ct != wire.ContentTypeApplicationData {
		return nil, tlserr.Protocolf("expected application_data record, got %v", ct)
	}
	header := recordHeader(ct, len(ciphertext))
	plaintext, err := app.ClientReadCipher().Open(header, ciphertext)
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

// recvOneEncryptedMessage reads one application-data record, decrypts it
// under the client's handshake write cipher, and returns its single
// handshake message.
func (s *Server) recvOneEncryptedMessage() (wire.HandshakeMessage, error) {
	ct, ciphertext, err := s.rr.ReadRecord()
	if err != nil {
		return wire.HandshakeMessage{}, err
	}
	if ct != wire.ContentTypeApplicationData {
		return wire.HandshakeMessage{}, tlserr.Protocolf("expected encrypted handshake record, got %v", ct)
	}
	header := recordHeader(ct, len(ciphertext))
	plaintext, err := s.ks.ClientReadCipher().Open(header, ciphertext)
	if err != nil {
		return wire.HandshakeMessage{}, err
	}
	innerType, msgs, err := wire.SplitHandshakeMessages(plaintext)
	if err != nil {
		return wire.HandshakeMessage{}, err
	}
	if innerType != wire.ContentTypeHandshake || len(msgs) != 1 {
		return wire.HandshakeMessage{}, tlserr.Protocolf("expected exactly one handshake message per client record")
	}
	return msgs[0], nil
}

func (s *Server) recvClientFinishedOnly() (*keyschedule.ApplicationKeySchedule, error) {
	msg, err := s.recvOneEncryptedMessage()
	if err != nil {
		return nil, err
	}
	if msg.Type != wire.HandshakeTypeFinished {
		return nil, tlserr.Protocolf("expected client finished, got %v", msg.Type)
	}
	verifyData, err := wire.ParseFinished(msg.Body)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(verifyData, s.ks.ClientVerifyData()) {
		return nil, tlserr.Protocolf("client Finished verify_data mismatch")
	}
	s.ks.AddTranscript(msg.Raw)
	return s.ks.IntoApplicationKeySchedule()
}
