// Package nut13 implements deterministic secret derivation as defined in
// [NUT-13]: a wallet's secrets and blinding factors for a given keyset
// are derived from its seed and a monotonic counter, so a wallet can be
// fully restored from the seed phrase alone.
//
// [NUT-13]: https://github.com/cashubtc/nuts/blob/main/13.md
package nut13

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/blindmint/cashu/crypto"
)

// DeriveKeysetPath walks to the m/129372'/unitIndex'/rotationIndex' node
// (crypto.DeriveKeysetPath) that a keyset's deterministic secrets are
// derived under. The wallet passes crypto.KeysetDerivationIndex(id) as
// rotationIndex, since a fetched keyset does not carry the mint's own
// rotation index.
func DeriveKeysetPath(master *hdkeychain.ExtendedKey, unitIndex, rotationIndex uint32) (*hdkeychain.ExtendedKey, error) {
	return crypto.DeriveKeysetPath(master, unitIndex, rotationIndex)
}

func DeriveBlindingFactor(keysetPath *hdkeychain.ExtendedKey, counter uint32) (*secp256k1.PrivateKey, error) {
	// .../counter'
	counterPath, err := keysetPath.Derive(hdkeychain.HardenedKeyStart + counter)
	if err != nil {
		return nil, err
	}

	// .../counter'/1
	rDerivationPath, err := counterPath.Derive(1)
	if err != nil {
		return nil, err
	}

	rkey, err := rDerivationPath.ECPrivKey()
	if err != nil {
		return nil, err
	}

	return rkey, nil
}

func DeriveSecret(keysetPath *hdkeychain.ExtendedKey, counter uint32) (string, error) {
	// .../counter'
	counterPath, err := keysetPath.Derive(hdkeychain.HardenedKeyStart + counter)
	if err != nil {
		return "", err
	}

	// .../counter'/0
	secretDerivationPath, err := counterPath.Derive(0)
	if err != nil {
		return "", err
	}

	secretKey, err := secretDerivationPath.ECPrivKey()
	if err != nil {
		return "", err
	}

	secretBytes := secretKey.Serialize()
	secret := hex.EncodeToString(secretBytes)

	return secret, nil
}
