package crypto

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToCurveDeterministic(t *testing.T) {
	secret := []byte("test_message")

	a := HashToCurve(secret)
	b := HashToCurve(secret)
	assert.True(t, a.IsEqual(b), "hash_to_curve must be deterministic for the same secret")
	assert.True(t, a.IsOnCurve())
}

func TestHashToCurveDistinctSecrets(t *testing.T) {
	a := HashToCurve([]byte("secret-one"))
	b := HashToCurve([]byte("secret-two"))
	assert.False(t, a.IsEqual(b))
}

func TestBDHKERoundTrip(t *testing.T) {
	secret := []byte("a bearer secret")

	k, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	K := k.PubKey()

	B_, r, err := BlindMessage(secret, nil)
	require.NoError(t, err)

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, K)

	assert.True(t, Verify(secret, k, C))
}

func TestBDHKERejectsWrongKey(t *testing.T) {
	secret := []byte("a bearer secret")

	k, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	B_, r, err := BlindMessage(secret, nil)
	require.NoError(t, err)

	C_ := SignBlindedMessage(B_, k)
	C := UnblindSignature(C_, r, other.PubKey())

	assert.False(t, Verify(secret, k, C))
}

func TestBlindMessageWithFixedFactor(t *testing.T) {
	secret := []byte("fixed-factor-secret")
	factor := make([]byte, 32)
	factor[31] = 7

	b1, r1, err := BlindMessage(secret, factor)
	require.NoError(t, err)
	b2, r2, err := BlindMessage(secret, factor)
	require.NoError(t, err)

	assert.True(t, b1.IsEqual(b2))
	assert.Equal(t, r1.Serialize(), r2.Serialize())
}
