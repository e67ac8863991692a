package oracle

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSoftwareSignProducesVerifiablePSSSignature(t *testing.T) {
	s, err := NewSoftware()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("certificate_verify signing input"))
	sig, err := s.Sign(rand.Reader, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256})
	require.NoError(t, err)

	pub := s.Public().(*rsa.PublicKey)
	err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256})
	require.NoError(t, err)
}

func TestSoftwareSignMessageHashesBeforeSigning(t *testing.T) {
	s, err := NewSoftware()
	require.NoError(t, err)

	sig, err := s.SignMessage([]byte("arbitrary length message"))
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("arbitrary length message"))
	pub := s.Public().(*rsa.PublicKey)
	err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256})
	require.NoError(t, err)
}

func TestSoftwareAlgorithmIdentifierEncodesRSASSAPSS(t *testing.T) {
	s, err := NewSoftware()
	require.NoError(t, err)

	algID := s.AlgorithmIdentifier()
	require.True(t, algID.Algorithm.Equal(oidRSASSAPSS))

	var params rsaPSSParams
	_, err = asn1.Unmarshal(algID.Parameters.FullBytes, &params)
	require.NoError(t, err)
	require.True(t, params.Hash.Algorithm.Equal(oidSHA256))
	require.True(t, params.MGF.Algorithm.Equal(oidMGF1))
	require.Equal(t, 32, params.SaltLength)
}
