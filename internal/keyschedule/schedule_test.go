package keyschedule

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeKeyScheduleSymmetricBetweenPeers(t *testing.T) {
	client, err := NewHandshakeKeySchedule()
	require.NoError(t, err)
	server, err := NewHandshakeKeySchedule()
	require.NoError(t, err)

	transcript := []byte("client_hello || server_hello")
	client.AddTranscript(transcript)
	server.AddTranscript(transcript)

	clientPub := client.LocalPublicKey()
	serverPub := server.LocalPublicKey()

	require.NoError(t, client.UpdateHandshakeSecret(serverPub))
	require.NoError(t, server.UpdateHandshakeSecret(clientPub))

	require.Equal(t, client.handshakeSecret, server.handshakeSecret)
	require.Equal(t, client.ClientVerifyData(), server.ClientVerifyData())
	require.Equal(t, client.ServerVerifyData(), server.ServerVerifyData())
}

func TestUpdateHandshakeSecretConsumesEphemeralKeyOnce(t *testing.T) {
	client, err := NewHandshakeKeySchedule()
	require.NoError(t, err)
	server, err := NewHandshakeKeySchedule()
	require.NoError(t, err)

	require.NoError(t, client.UpdateHandshakeSecret(server.LocalPublicKey()))
	err = client.UpdateHandshakeSecret(server.LocalPublicKey())
	require.Error(t, err)
}

func TestApplicationKeysIndependentOfHandshakeKeys(t *testing.T) {
	client, err := NewHandshakeKeySchedule()
	require.NoError(t, err)
	server, err := NewHandshakeKeySchedule()
	require.NoError(t, err)

	clientPub := client.LocalPublicKey()
	serverPub := server.LocalPublicKey()
	require.NoError(t, client.UpdateHandshakeSecret(serverPub))
	require.NoError(t, server.UpdateHandshakeSecret(clientPub))

	handshakeClientSecret := client.clientHandshakeTrafficSecret
	handshakeServerSecret := client.serverHandshakeTrafficSecret

	client.OnServerFinished()
	appClientSecret := client.clientApplicationTrafficSecret
	appServerSecret := client.serverApplicationTrafficSecret

	require.NotEqual(t, handshakeClientSecret, appClientSecret)
	require.NotEqual(t, handshakeServerSecret, appServerSecret)

	app, err := client.IntoApplicationKeySchedule()
	require.NoError(t, err)
	require.NotNil(t, app.ClientWriteCipher())
	require.NotNil(t, app.ServerReadCipher())
}

func TestIntoApplicationKeyScheduleZeroesHandshakeSchedule(t *testing.T) {
	client, err := NewHandshakeKeySchedule()
	require.NoError(t, err)
	server, err := NewHandshakeKeySchedule()
	require.NoError(t, err)

	require.NoError(t, client.UpdateHandshakeSecret(server.LocalPublicKey()))
	client.OnServerFinished()

	_, err = client.IntoApplicationKeySchedule()
	require.NoError(t, err)

	require.Nil(t, client.handshakeSecret)
	require.Nil(t, client.clientApplicationTrafficSecret)
	require.Nil(t, client.serverApplicationTrafficSecret)
}

func TestVerifyDataMatchesHMACOfTranscriptHash(t *testing.T) {
	secret := []byte("a fixed traffic secret of arbitrary length")
	transcriptHash := make([]byte, hashSize)
	for i := range transcriptHash {
		transcriptHash[i] = byte(i)
	}

	finishedKey := expandLabel(secret, "finished", nil, hashSize)
	got := VerifyData(secret, transcriptHash)
	require.Len(t, got, hashSize)

	mac := hmac.New(sha256.New, finishedKey)
	mac.Write(transcriptHash)
	require.Equal(t, mac.Sum(nil), got)

	// Recomputing from the same secret and transcript hash must be
	// deterministic.
	again := VerifyData(secret, transcriptHash)
	require.Equal(t, got, again)
	require.NotEmpty(t, finishedKey)
}
