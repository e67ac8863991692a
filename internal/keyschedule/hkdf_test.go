package keyschedule

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveEmptySecretRFC8446DerivedConstant(t *testing.T) {
	earlySecret := extract(zeroHash(hashSize), zeroHash(hashSize))
	derived := deriveEmptySecret(earlySecret)

	want, err := hex.DecodeString("6F2615A108C702C5678F54FC9DBAB69716C076189C48250CEBEAC3576C3611BA")
	require.NoError(t, err)
	require.Equal(t, want, derived)
}

func TestHkdfLabelBytesEncoding(t *testing.T) {
	got := hkdfLabelBytes(32, "derived", []byte("ctx"))

	var want []byte
	want = append(want, 0x00, 0x20) // length = 32, big-endian u16
	label := "tls13 derived"
	want = append(want, byte(len(label)))
	want = append(want, label...)
	want = append(want, byte(len("ctx")))
	want = append(want, "ctx"...)

	require.Equal(t, want, got)
}

func TestExpandLabelDeterministic(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, hashSize)
	a := expandLabel(secret, "c hs traffic", []byte("context"), 32)
	b := expandLabel(secret, "c hs traffic", []byte("context"), 32)
	require.Equal(t, a, b)
}

func TestExpandLabelRespectsLength(t *testing.T) {
	secret := bytes.Repeat([]byte{0x01}, hashSize)
	for _, n := range []int{12, 16, 32} {
		out := expandLabel(secret, "key", nil, n)
		require.Len(t, out, n)
	}
}

func TestExpandLabelDistinctLabelsDiffer(t *testing.T) {
	secret := bytes.Repeat([]byte{0x07}, hashSize)
	key := expandLabel(secret, "key", nil, 16)
	iv := expandLabel(secret, "iv", nil, 16)
	require.NotEqual(t, key, iv)
}
