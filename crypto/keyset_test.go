package crypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

func testMaster(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()
	entropy, err := bip39.NewEntropy(128)
	require.NoError(t, err)
	mnemonic, err := bip39.NewMnemonic(entropy)
	require.NoError(t, err)
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	return master
}

func TestUnitIndexFixedUnits(t *testing.T) {
	assert.Equal(t, uint32(0), UnitIndex("sat"))
	assert.Equal(t, uint32(1), UnitIndex("msat"))
	assert.Equal(t, uint32(2), UnitIndex("usd"))
	assert.Equal(t, uint32(3), UnitIndex("auth"))
}

func TestUnitIndexCustomDeterministic(t *testing.T) {
	a := UnitIndex("mycustomunit")
	b := UnitIndex("mycustomunit")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, UnitIndex("sat"))
}

func TestGenerateKeysetDerivesMaxOrderDenominations(t *testing.T) {
	master := testMaster(t)

	ks, err := GenerateKeyset(master, "sat", UnitIndex("sat"), 0, 0)
	require.NoError(t, err)
	assert.Len(t, ks.Keys, MaxOrder)
	assert.True(t, ks.Active)

	for amount := range ks.Keys {
		assert.Equal(t, amount&(amount-1), uint64(0), "amount %d must be a power of two", amount)
	}
}

func TestKeysetIdDeterministic(t *testing.T) {
	master := testMaster(t)

	ks1, err := GenerateKeyset(master, "sat", UnitIndex("sat"), 0, 0)
	require.NoError(t, err)
	ks2, err := GenerateKeyset(master, "sat", UnitIndex("sat"), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, ks1.Id, ks2.Id)
	assert.Len(t, ks1.Id, 16)
	assert.Equal(t, "00", ks1.Id[:2])
}

func TestKeysetIdChangesWithRotation(t *testing.T) {
	master := testMaster(t)

	ks1, err := GenerateKeyset(master, "sat", UnitIndex("sat"), 0, 0)
	require.NoError(t, err)
	ks2, err := GenerateKeyset(master, "sat", UnitIndex("sat"), 1, 0)
	require.NoError(t, err)

	assert.NotEqual(t, ks1.Id, ks2.Id)
}

func TestDualKeysetIds(t *testing.T) {
	master := testMaster(t)
	ks, err := GenerateKeyset(master, "sat", UnitIndex("sat"), 0, 0)
	require.NoError(t, err)

	v1, v2 := ks.Ids()
	assert.Equal(t, "00", v1[:2])
	assert.Equal(t, "01", v2[:2])
	assert.NotEqual(t, v1, v2)
}
