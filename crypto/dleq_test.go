package crypto

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLEQRoundTrip(t *testing.T) {
	secret := []byte("dleq-secret")

	k, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	A := k.PubKey()

	B_, _, err := BlindMessage(secret, nil)
	require.NoError(t, err)
	C_ := SignBlindedMessage(B_, k)

	e, s, err := GenerateDLEQ(k, B_, C_)
	require.NoError(t, err)

	assert.True(t, VerifyDLEQ(e, s, A, B_, C_))
}

func TestDLEQRejectsWrongSignature(t *testing.T) {
	secret := []byte("dleq-secret")

	k, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	A := k.PubKey()

	B_, _, err := BlindMessage(secret, nil)
	require.NoError(t, err)
	C_ := SignBlindedMessage(B_, k)

	e, s, err := GenerateDLEQ(k, B_, C_)
	require.NoError(t, err)

	wrongK, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	wrongC_ := SignBlindedMessage(B_, wrongK)

	assert.False(t, VerifyDLEQ(e, s, A, B_, wrongC_))
}
