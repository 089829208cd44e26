package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut07"
	"github.com/blindmint/cashu/cashu/nuts/nut09"
	"github.com/blindmint/cashu/cashu/nuts/nut13"
	"github.com/blindmint/cashu/crypto"
)

// Restore rebuilds a wallet from mnemonic alone, walking each mint's
// keysets and requesting signatures (NUT-09) for batches of 100
// deterministically-derived (NUT-13) blinded messages until three
// consecutive batches come back empty, per mint per keyset.
func Restore(walletPath, mnemonic string, mintsToRestore []string) (uint64, error) {
	dbpath := filepath.Join(walletPath, "wallet.db")
	if _, err := os.Stat(dbpath); err == nil {
		return 0, errors.New("wallet already exists")
	}

	if err := os.MkdirAll(walletPath, 0700); err != nil {
		return 0, err
	}

	if !bip39.IsMnemonicValid(mnemonic) {
		return 0, errors.New("invalid mnemonic")
	}

	db, err := InitStorage(walletPath)
	if err != nil {
		return 0, fmt.Errorf("error restoring wallet: %v", err)
	}

	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return 0, err
	}
	db.SaveMnemonicSeed(mnemonic, seed)

	proofsRestored := cashu.Proofs{}

	for _, mint := range mintsToRestore {
		mintInfo, err := GetMintInfo(mint)
		if err != nil {
			return 0, fmt.Errorf("error getting info from mint: %v", err)
		}

		nut7, ok := mintInfo.Nuts[7].(map[string]interface{})
		nut9, ok2 := mintInfo.Nuts[9].(map[string]interface{})
		if !ok || !ok2 || nut7["supported"] != true || nut9["supported"] != true {
			fmt.Println("mint does not support the necessary operations to restore wallet")
			continue
		}

		keysetsResponse, err := GetAllKeysets(mint)
		if err != nil {
			return 0, err
		}

		for _, keyset := range keysetsResponse.Keysets {
			if keyset.Unit != cashu.Sat.String() {
				continue
			}
			if _, err := hex.DecodeString(keyset.Id); err != nil {
				continue
			}

			keysetKeys, err := GetKeysetKeys(mint, keyset.Id, keyset.Unit)
			if err != nil {
				return 0, err
			}

			walletKeyset := crypto.WalletKeyset{
				Id:                keyset.Id,
				MintURL:           mint,
				Unit:              keyset.Unit,
				Active:            keyset.Active,
				UnitIndex:         crypto.UnitIndex(keyset.Unit),
				DerivationPathIdx: crypto.KeysetDerivationIndex(keyset.Id),
				PublicKeys:        keysetKeys,
			}
			if err := db.SaveKeyset(&walletKeyset); err != nil {
				return 0, err
			}

			keysetPath, err := nut13.DeriveKeysetPath(masterKey, walletKeyset.UnitIndex, walletKeyset.DerivationPathIdx)
			if err != nil {
				return 0, err
			}

			var counter uint32 = 0
			emptyBatches := 0
			for emptyBatches < 3 {
				const batchSize = 100
				blindedMessages := make(cashu.BlindedMessages, batchSize)
				rs := make([]*secp256k1.PrivateKey, batchSize)
				secrets := make([]string, batchSize)

				for i := 0; i < batchSize; i++ {
					secret, err := nut13.DeriveSecret(keysetPath, counter)
					if err != nil {
						return 0, err
					}
					blindingFactor, err := nut13.DeriveBlindingFactor(keysetPath, counter)
					if err != nil {
						return 0, err
					}
					B_, r, err := crypto.BlindMessage([]byte(secret), blindingFactor.Serialize())
					if err != nil {
						return 0, err
					}

					blindedMessages[i] = cashu.NewBlindedMessage(keyset.Id, 0, B_)
					rs[i] = r
					secrets[i] = secret
					counter++
				}

				restoreRequest := nut09.PostRestoreRequest{Outputs: blindedMessages}
				restoreResponse, err := PostRestore(mint, restoreRequest)
				if err != nil {
					return 0, fmt.Errorf("error restoring signatures from mint '%v': %v", mint, err)
				}

				if len(restoreResponse.Signatures) == 0 {
					emptyBatches++
					continue
				}
				emptyBatches = 0

				Ys := make([]string, len(restoreResponse.Signatures))
				proofs := make(map[string]cashu.Proof, len(restoreResponse.Signatures))

				for i, signature := range restoreResponse.Signatures {
					K, ok := keysetKeys[signature.Amount]
					if !ok {
						return 0, errors.New("key not found")
					}

					C_bytes, err := hex.DecodeString(signature.C_)
					if err != nil {
						return 0, err
					}
					C_, err := secp256k1.ParsePubKey(C_bytes)
					if err != nil {
						return 0, err
					}
					C := crypto.UnblindSignature(C_, rs[i], K)

					Y := crypto.HashToCurve([]byte(secrets[i]))
					Yhex := hex.EncodeToString(Y.SerializeCompressed())
					Ys[i] = Yhex

					proofs[Yhex] = cashu.Proof{
						Amount: signature.Amount,
						Secret: secrets[i],
						C:      hex.EncodeToString(C.SerializeCompressed()),
						Id:     signature.Id,
					}
				}

				proofStateRequest := nut07.PostCheckStateRequest{Ys: Ys}
				proofStateResponse, err := PostCheckProofState(mint, proofStateRequest)
				if err != nil {
					return 0, err
				}

				var batchRestored cashu.Proofs
				for _, proofState := range proofStateResponse.States {
					if len(proofState.Witness) > 0 {
						continue
					}
					if proofState.State == nut07.Unspent {
						batchRestored = append(batchRestored, proofs[proofState.Y])
					}
				}

				if len(batchRestored) > 0 {
					if err := db.SaveProofs(batchRestored); err != nil {
						return 0, fmt.Errorf("error saving restored proofs: %v", err)
					}
					proofsRestored = append(proofsRestored, batchRestored...)
				}

				if err := db.IncrementKeysetCounter(keyset.Id, batchSize); err != nil {
					return 0, fmt.Errorf("error incrementing keyset counter: %v", err)
				}
			}
		}
	}

	return proofsRestored.Amount(), nil
}
