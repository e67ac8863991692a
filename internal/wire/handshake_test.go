package wire

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func sequentialBytes32() [32]byte {
	var b [32]byte
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestBuildClientHelloWireFormat(t *testing.T) {
	random := sequentialBytes32()
	keyShare := sequentialBytes32()

	body := BuildClientHello(ClientHelloParams{Random: random, X25519KeyShare: keyShare[:]})
	wrapped := WrapHandshake(HandshakeTypeClientHello, body)

	require.Equal(t, byte(HandshakeTypeClientHello), wrapped[0])

	rest := wrapped[4:]
	require.Equal(t, []byte{0x03, 0x03}, rest[0:2]) // legacy_version
	require.Equal(t, random[:], rest[2:34])
	require.Equal(t, byte(0x00), rest[34]) // empty legacy_session_id
	require.Equal(t, []byte{0x00, 0x02, 0x13, 0x01}, rest[35:39])
	require.Equal(t, []byte{0x01, 0x00}, rest[39:41]) // compression: len 1, method 0

	require.Equal(t, []byte{0x00, 0x41}, rest[41:43]) // extensions block length: 65
	extensions := rest[43:]
	groupsExt := hex.EncodeToString([]byte{0x00, 0x0A, 0x00, 0x04, 0x00, 0x02, 0x00, 0x1D})
	require.Equal(t, groupsExt, hex.EncodeToString(extensions[0:8]))

	sigAlgsExt := []byte{0x00, 0x0D, 0x00, 0x04, 0x00, 0x02, 0x08, 0x04}
	require.Equal(t, sigAlgsExt, extensions[8:16])

	versionsExt := []byte{0x00, 0x2B, 0x00, 0x03, 0x02, 0x03, 0x04}
	require.Equal(t, versionsExt, extensions[16:23])

	keyShareExt := extensions[23:]
	require.Equal(t, []byte{0x00, 0x33}, keyShareExt[0:2])  // extension type key_share
	require.Equal(t, []byte{0x00, 0x26}, keyShareExt[2:4])  // extension_data length: 38
	require.Equal(t, []byte{0x00, 0x24}, keyShareExt[4:6])  // client_shares list length: 36
	require.Equal(t, []byte{0x00, 0x1D}, keyShareExt[6:8])  // group x25519
	require.Equal(t, []byte{0x00, 0x20}, keyShareExt[8:10]) // key_exchange length 32
	require.Equal(t, keyShare[:], keyShareExt[10:42])
}

func TestRecordHeaderAndClientHelloEndToEnd(t *testing.T) {
	random := sequentialBytes32()
	keyShare := sequentialBytes32()
	body := BuildClientHello(ClientHelloParams{Random: random, X25519KeyShare: keyShare[:]})
	wrapped := WrapHandshake(HandshakeTypeClientHello, body)

	var out bytes.Buffer
	require.NoError(t, NewRecordWriter(&out, nil).WriteRecord(ContentTypeHandshake, wrapped))
	hdr := out.Bytes()[:5]

	require.Equal(t, []byte{0x16, 0x03, 0x01}, hdr[0:3])
	require.Equal(t, []byte{byte(len(wrapped) >> 8), byte(len(wrapped))}, hdr[3:5])
	require.Equal(t, wrapped, out.Bytes()[5:])
	require.Equal(t, byte(0x01), wrapped[0])
}

func TestParseServerHelloRoundTrip(t *testing.T) {
	random := sequentialBytes32()
	keyShare := sequentialBytes32()
	body := BuildServerHello(random, keyShare[:])

	sh, err := ParseServerHello(body)
	require.NoError(t, err)
	require.Equal(t, random, sh.Random)
	require.Equal(t, TLSAES128GCMSHA256, sh.CipherSuite)
	require.Equal(t, keyShare[:], sh.X25519KeyShare)
}

func TestParseServerHelloRejectsHelloRetryRequest(t *testing.T) {
	body := BuildServerHello(helloRetryRequestRandom, bytesOf(32, 0x01))
	_, err := ParseServerHello(body)
	require.Error(t, err)
}

func TestParseClientHelloKeyShareRoundTrip(t *testing.T) {
	random := sequentialBytes32()
	keyShare := sequentialBytes32()
	body := BuildClientHello(ClientHelloParams{Random: random, X25519KeyShare: keyShare[:]})

	got, err := ParseClientHelloKeyShare(body)
	require.NoError(t, err)
	require.Equal(t, keyShare[:], got)
}

func TestCertificateRoundTrip(t *testing.T) {
	certDER := bytesOf(300, 0xAB)
	body := BuildCertificate(certDER)

	cert, err := ParseCertificate(body)
	require.NoError(t, err)
	require.Len(t, cert.Entries, 1)
	require.Equal(t, certDER, cert.Entries[0].CertData)
}

func TestCertificateVerifyRoundTrip(t *testing.T) {
	sig := bytesOf(256, 0xCD)
	body := BuildCertificateVerify(sig)

	cv, err := ParseCertificateVerify(body)
	require.NoError(t, err)
	require.Equal(t, RSAPSSRSAESHA256, cv.Scheme)
	require.Equal(t, sig, cv.Signature)
}

func TestFinishedRoundTrip(t *testing.T) {
	verifyData := bytesOf(32, 0xEF)
	body := BuildFinished(verifyData)

	got, err := ParseFinished(body)
	require.NoError(t, err)
	require.Equal(t, verifyData, got)
}

func TestSplitHandshakeMessagesStripsPaddingAndContentType(t *testing.T) {
	msg1 := WrapHandshake(HandshakeTypeEncryptedExtensions, BuildEncryptedExtensions())
	msg2 := WrapHandshake(HandshakeTypeFinished, BuildFinished(bytesOf(32, 0x01)))

	var blob []byte
	blob = append(blob, msg1...)
	blob = append(blob, msg2...)
	blob = append(blob, byte(ContentTypeHandshake))
	blob = append(blob, make([]byte, 4)...) // trailing zero padding

	ct, msgs, err := SplitHandshakeMessages(blob)
	require.NoError(t, err)
	require.Equal(t, ContentTypeHandshake, ct)
	require.Len(t, msgs, 2)
	require.Equal(t, HandshakeTypeEncryptedExtensions, msgs[0].Type)
	require.Equal(t, msg1, msgs[0].Raw)
	require.Equal(t, HandshakeTypeFinished, msgs[1].Type)
	require.Equal(t, msg2, msgs[1].Raw)
}

func TestReadOneHandshakeMessageRejectsTrailingBytes(t *testing.T) {
	msg := WrapHandshake(HandshakeTypeServerHello, []byte("body"))
	_, err := ReadOneHandshakeMessage(append(msg, 0xFF))
	require.Error(t, err)
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
