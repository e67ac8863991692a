package keyschedule

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"hash"

	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// HandshakeKeySchedule holds the secrets and running transcript hash for
// the handshake phase of a connection: from the client's ephemeral key
// share through the peer's Finished message. Its ephemeral private key is
// consumed exactly once, by UpdateHandshakeSecret, to prevent the shared
// secret from ever being derived twice.
type HandshakeKeySchedule struct {
	transcript hash.Hash

	privateKey *ecdh.PrivateKey
	publicKey  *ecdh.PublicKey

	handshakeSecret []byte

	clientHandshakeTrafficSecret []byte
	serverHandshakeTrafficSecret []byte

	clientWriteCipher *AEADCipher
	serverWriteCipher *AEADCipher

	clientApplicationTrafficSecret []byte
	serverApplicationTrafficSecret []byte
}

// NewHandshakeKeySchedule generates a fresh X25519 ephemeral keypair and an
// empty running transcript hash.
func NewHandshakeKeySchedule() (*HandshakeKeySchedule, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, tlserr.KeyExchangef(err, "generate ephemeral X25519 key")
	}
	return &HandshakeKeySchedule{
		transcript: sha256.New(),
		privateKey: priv,
		publicKey:  priv.PublicKey(),
	}, nil
}

// ClientPublicKey returns the raw bytes to place in the ClientHello
// key_share extension.
func (h *HandshakeKeySchedule) ClientPublicKey() []byte {
	return h.publicKey.Bytes()
}

// LocalPublicKey returns this side's own ephemeral X25519 public key,
// whichever role holds it; a ServerHello's key_share carries the same
// bytes ClientPublicKey would return for a client-role schedule.
func (h *HandshakeKeySchedule) LocalPublicKey() []byte {
	return h.publicKey.Bytes()
}

// AddTranscript folds data into the running handshake transcript hash. It
// must be called with the exact bytes that would appear in the RFC 8446
// transcript: handshake message bodies without their record-layer framing.
func (h *HandshakeKeySchedule) AddTranscript(data []byte) {
	h.transcript.Write(data)
}

// TranscriptHash returns the current transcript hash without consuming it.
// hash.Hash.Sum appends the current digest without resetting the running
// state, so this can be called repeatedly as the transcript grows.
func (h *HandshakeKeySchedule) TranscriptHash() []byte {
	return h.transcript.Sum(nil)
}

// UpdateHandshakeSecret consumes the ephemeral private key by performing
// X25519 agreement with the server's public key share, then derives the
// handshake secret and both directions' handshake traffic secrets and
// write keys, in the order the TLS 1.3 key schedule requires: the
// handshake secret first, then the server and client handshake traffic
// secrets (computed against the transcript up to and including
// ServerHello), then their write keys and IVs.
//
// After this call the ephemeral private key is discarded; calling it twice
// is a programming error and returns a KeyExchangeError.
func (h *HandshakeKeySchedule) UpdateHandshakeSecret(serverPublicKey []byte) error {
	if h.privateKey == nil {
		return tlserr.KeyExchangef(nil, "ephemeral private key already consumed")
	}
	peer, err := ecdh.X25519().NewPublicKey(serverPublicKey)
	if err != nil {
		return tlserr.KeyExchangef(err, "invalid server key share")
	}
	sharedSecret, err := h.privateKey.ECDH(peer)
	if err != nil {
		return tlserr.KeyExchangef(err, "X25519 agreement failed")
	}
	h.privateKey = nil

	earlySecret := extract(zeroHash(hashSize), zeroHash(hashSize))
	derivedSecret := deriveEmptySecret(earlySecret)
	h.handshakeSecret = extract(derivedSecret, sharedSecret)

	transcriptHash := h.TranscriptHash()
	h.serverHandshakeTrafficSecret = deriveSecret(h.handshakeSecret, "s hs traffic", transcriptHash)
	h.clientHandshakeTrafficSecret = deriveSecret(h.handshakeSecret, "c hs traffic", transcriptHash)

	serverKey := expandLabel(h.serverHandshakeTrafficSecret, "key", nil, 16)
	serverIV := expandLabel(h.serverHandshakeTrafficSecret, "iv", nil, 12)
	clientKey := expandLabel(h.clientHandshakeTrafficSecret, "key", nil, 16)
	clientIV := expandLabel(h.clientHandshakeTrafficSecret, "iv", nil, 12)

	h.serverWriteCipher, err = NewAEADCipher(serverKey, serverIV)
	if err != nil {
		return err
	}
	h.clientWriteCipher, err = NewAEADCipher(clientKey, clientIV)
	if err != nil {
		return err
	}
	return nil
}

// ServerReadCipher decrypts records sent by the server during the
// handshake phase.
func (h *HandshakeKeySchedule) ServerReadCipher() *AEADCipher { return h.serverWriteCipher }

// ClientWriteCipher encrypts records this side sends during the handshake
// phase.
func (h *HandshakeKeySchedule) ClientWriteCipher() *AEADCipher { return h.clientWriteCipher }

// ServerWriteCipher encrypts records the server side sends during the
// handshake phase; it is the same cipher a client reads the server's
// traffic with, named from the server's point of view for server-role
// code.
func (h *HandshakeKeySchedule) ServerWriteCipher() *AEADCipher { return h.serverWriteCipher }

// ClientReadCipher decrypts records the server side receives from the
// client during the handshake phase; it is the same cipher a client
// writes its own traffic with, named from the server's point of view.
func (h *HandshakeKeySchedule) ClientReadCipher() *AEADCipher { return h.clientWriteCipher }

// VerifyData computes the Finished message's verify_data: an HMAC over the
// current transcript hash keyed by a "finished" secret expanded from the
// given traffic secret, per RFC 8446 §4.4.4.
func VerifyData(trafficSecret, transcriptHash []byte) []byte {
	finishedKey := expandLabel(trafficSecret, "finished", nil, hashSize)
	mac := hmac.New(sha256.New, finishedKey)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}

// ClientVerifyData returns the verify_data this client must send in its
// Finished message, computed over the current transcript hash.
func (h *HandshakeKeySchedule) ClientVerifyData() []byte {
	return VerifyData(h.clientHandshakeTrafficSecret, h.TranscriptHash())
}

// ServerVerifyData returns the verify_data expected in the server's
// Finished message.
func (h *HandshakeKeySchedule) ServerVerifyData() []byte {
	return VerifyData(h.serverHandshakeTrafficSecret, h.TranscriptHash())
}

// OnServerFinished derives the application traffic secrets once the
// server's Finished message has been folded into the transcript; it does
// not check that message's verify_data. It must be called with the transcript positioned exactly as
// RFC 8446 §7.1 specifies: after Finished (server) and, for a client that
// authenticates, before the client's own Certificate/CertificateVerify/
// Finished messages are added.
func (h *HandshakeKeySchedule) OnServerFinished() {
	derivedSecret := deriveEmptySecret(h.handshakeSecret)
	masterSecret := extract(derivedSecret, zeroHash(hashSize))
	transcriptHash := h.TranscriptHash()
	h.serverApplicationTrafficSecret = deriveSecret(masterSecret, "s ap traffic", transcriptHash)
	h.clientApplicationTrafficSecret = deriveSecret(masterSecret, "c ap traffic", transcriptHash)
}

// IntoApplicationKeySchedule consumes the handshake key schedule and
// returns the application key schedule derived from it. This is a
// one-way transform: the handshake schedule's secrets are not retained on
// the returned value, and calling any handshake-phase method on h after
// this point is a programming error.
func (h *HandshakeKeySchedule) IntoApplicationKeySchedule() (*ApplicationKeySchedule, error) {
	clientKey := expandLabel(h.clientApplicationTrafficSecret, "key", nil, 16)
	clientIV := expandLabel(h.clientApplicationTrafficSecret, "iv", nil, 12)
	serverKey := expandLabel(h.serverApplicationTrafficSecret, "key", nil, 16)
	serverIV := expandLabel(h.serverApplicationTrafficSecret, "iv", nil, 12)

	clientCipher, err := NewAEADCipher(clientKey, clientIV)
	if err != nil {
		return nil, err
	}
	serverCipher, err := NewAEADCipher(serverKey, serverIV)
	if err != nil {
		return nil, err
	}

	app := &ApplicationKeySchedule{
		clientApplicationTrafficSecret: h.clientApplicationTrafficSecret,
		serverApplicationTrafficSecret: h.serverApplicationTrafficSecret,
		clientWriteCipher:              clientCipher,
		serverReadCipher:               serverCipher,
	}
	*h = HandshakeKeySchedule{}
	return app, nil
}

// ApplicationKeySchedule holds the steady-state traffic keys used once the
// handshake has completed. It cannot be constructed directly; the only way
// to obtain one is HandshakeKeySchedule.IntoApplicationKeySchedule.
type ApplicationKeySchedule struct {
	clientApplicationTrafficSecret []byte
	serverApplicationTrafficSecret []byte

	clientWriteCipher *AEADCipher
	serverReadCipher  *AEADCipher
}

// ClientWriteCipher encrypts application data this side sends.
func (a *ApplicationKeySchedule) ClientWriteCipher() *AEADCipher { return a.clientWriteCipher }

// ServerReadCipher decrypts application data received from the server.
func (a *ApplicationKeySchedule) ServerReadCipher() *AEADCipher { return a.serverReadCipher }

// ServerWriteCipher encrypts application data the server side sends; the
// same cipher a client reads the server's traffic with.
func (a *ApplicationKeySchedule) ServerWriteCipher() *AEADCipher { return a.serverReadCipher }

// ClientReadCipher decrypts application data the server side receives
// from the client; the same cipher a client writes its own traffic with.
func (a *ApplicationKeySchedule) ClientReadCipher() *AEADCipher { return a.clientWriteCipher }
