package wire

import (
	"encoding/binary"
	"io"

	"go.uber.org/zap"

	"github.com/YellowViking/sec-poc/internal/tlserr"
)

// MaxRecordLength is the largest TLSPlaintext/TLSCiphertext length this
// client will read, RFC 8446 §5.1's 2^14+256 ciphertext bound.
const MaxRecordLength = 16384 + 256

// RecordReader reads length-prefixed records off a stream connection.
type RecordReader struct {
	r   io.Reader
	log *zap.Logger
}

// NewRecordReader wraps r. A nil logger is replaced with a no-op logger.
func NewRecordReader(r io.Reader, log *zap.Logger) *RecordReader {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordReader{r: r, log: log}
}

// ReadRecord reads one record's 5-byte header followed by its body.
func (rr *RecordReader) ReadRecord() (ContentType, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(rr.r, hdr[:]); err != nil {
		return ContentTypeInvalid, nil, tlserr.Transportf(err, "read record header")
	}
	ct := ContentType(hdr[0])
	length := int(binary.BigEndian.Uint16(hdr[3:5]))
	if length > MaxRecordLength {
		return ContentTypeInvalid, nil, tlserr.Parsef("record length %d exceeds maximum %d", length, MaxRecordLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(rr.r, body); err != nil {
		return ContentTypeInvalid, nil, tlserr.Transportf(err, "read record body")
	}
	rr.log.Debug("read record", zap.Stringer("content_type", ct), zap.Int("length", length))
	return ct, body, nil
}

// WrapInnerPlaintext frames content as a TLSInnerPlaintext for the AEAD to
// seal: the content followed by its ContentType byte, with no padding.
func WrapInnerPlaintext(ct ContentType, content []byte) []byte {
	return append(append([]byte(nil), content...), byte(ct))
}

// UnwrapInnerPlaintext strips an AEAD-opened TLSInnerPlaintext's trailing
// zero padding and ContentType byte, returning the content type and the
// content itself.
func UnwrapInnerPlaintext(innerPlaintext []byte) (ContentType, []byte, error) {
	i := len(innerPlaintext)
	for i > 0 && innerPlaintext[i-1] == 0 {
		i--
	}
	if i == 0 {
		return ContentTypeInvalid, nil, tlserr.Protocolf("encrypted record has no content type byte")
	}
	return ContentType(innerPlaintext[i-1]), innerPlaintext[:i-1], nil
}

// RecordWriter writes length-prefixed records to a stream connection.
type RecordWriter struct {
	w   io.Writer
	log *zap.Logger
}

// NewRecordWriter wraps w. A nil logger is replaced with a no-op logger.
func NewRecordWriter(w io.Writer, log *zap.Logger) *RecordWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordWriter{w: w, log: log}
}

// WriteRecord writes one 5-byte header followed by data, with the legacy
// record version pinned to TLS 1.2 per RFC 8446 §5.1, except for a record
// carrying a ClientHello, which uses 0x0301 as §5.1 permits for the
// initial ClientHello.
func (rw *RecordWriter) WriteRecord(ct ContentType, data []byte) error {
	version := LegacyVersionTLS12
	if ct == ContentTypeHandshake && len(data) > 0 && HandshakeType(data[0]) == HandshakeTypeClientHello {
		version = 0x0301
	}
	var hdr [5]byte
	hdr[0] = byte(ct)
	binary.BigEndian.PutUint16(hdr[1:3], uint16(version))
	binary.BigEndian.PutUint16(hdr[3:5], uint16(len(data)))
	rw.log.Debug("write record", zap.Stringer("content_type", ct), zap.Int("length", len(data)))
	if _, err := rw.w.Write(hdr[:]); err != nil {
		return tlserr.Transportf(err, "write record header")
	}
	if _, err := rw.w.Write(data); err != nil {
		return tlserr.Transportf(err, "write record body")
	}
	return nil
}
