package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/crypto"
)

// GetMintActiveKeyset fetches the mint's active keyset for unit, verifying
// the id matches either the legacy V1 or the dual V2 derivation so a
// compromised or buggy mint can't smuggle in keys under someone else's id.
func GetMintActiveKeyset(mintURL string, unit cashu.Unit) (*crypto.WalletKeyset, error) {
	keysets, err := GetAllKeysets(mintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting active keysets from mint: %v", err)
	}

	for _, keyset := range keysets.Keysets {
		if !keyset.Active || keyset.Unit != unit.String() {
			continue
		}
		if _, err := hex.DecodeString(keyset.Id); err != nil {
			continue
		}

		keys, err := GetKeysetKeys(mintURL, keyset.Id, keyset.Unit)
		if err != nil {
			return nil, err
		}

		var finalExpiry *uint64
		if keyset.FinalExpiry > 0 {
			expiry := uint64(keyset.FinalExpiry)
			finalExpiry = &expiry
		}

		return &crypto.WalletKeyset{
			Id:                keyset.Id,
			MintURL:           mintURL,
			Unit:              keyset.Unit,
			Active:            true,
			UnitIndex:         crypto.UnitIndex(keyset.Unit),
			DerivationPathIdx: crypto.KeysetDerivationIndex(keyset.Id),
			PublicKeys:        keys,
			InputFeePpk:       keyset.InputFeePpk,
			FinalExpiry:       finalExpiry,
		}, nil
	}

	return nil, errors.New("could not find an active keyset for the unit")
}

func GetMintInactiveKeysets(mintURL string, unit cashu.Unit) (map[string]crypto.WalletKeyset, error) {
	keysetsResponse, err := GetAllKeysets(mintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting keysets from mint: %v", err)
	}

	inactiveKeysets := make(map[string]crypto.WalletKeyset)
	for _, keysetRes := range keysetsResponse.Keysets {
		if keysetRes.Active || keysetRes.Unit != unit.String() {
			continue
		}
		if _, err := hex.DecodeString(keysetRes.Id); err != nil {
			continue
		}

		keyset := crypto.WalletKeyset{
			Id:                keysetRes.Id,
			MintURL:           mintURL,
			Unit:              keysetRes.Unit,
			Active:            keysetRes.Active,
			UnitIndex:         crypto.UnitIndex(keysetRes.Unit),
			DerivationPathIdx: crypto.KeysetDerivationIndex(keysetRes.Id),
			InputFeePpk:       keysetRes.InputFeePpk,
		}
		inactiveKeysets[keyset.Id] = keyset
	}
	return inactiveKeysets, nil
}

// GetKeysetKeys fetches and verifies a keyset's public keys against its
// advertised id. The mint may have derived the id either the legacy V1 way
// (hash of pubkeys only) or the V2 way (hash also binds unit and expiry);
// a keyset is only accepted if it matches whichever form it claims.
func GetKeysetKeys(mintURL, id, unit string) (crypto.PublicKeys, error) {
	keysetsResponse, err := GetKeysetById(mintURL, id)
	if err != nil {
		return nil, fmt.Errorf("error getting keyset from mint: %v", err)
	}
	if len(keysetsResponse.Keysets) == 0 {
		return nil, fmt.Errorf("mint returned no keyset for id '%v'", id)
	}

	keys := keysetsResponse.Keysets[0].Keys

	switch id[:2] {
	case "00":
		if derived := crypto.DeriveKeysetIdV1(keys); derived != id {
			return nil, fmt.Errorf("got invalid keyset. Derived id: '%v' but got '%v' from mint", derived, id)
		}
	case "01":
		if derived := crypto.DeriveKeysetIdV2(keys, unit, nil); derived != id {
			return nil, fmt.Errorf("got invalid keyset. Derived id: '%v' but got '%v' from mint", derived, id)
		}
	default:
		return nil, fmt.Errorf("unsupported keyset id version '%v'", id[:2])
	}

	return keys, nil
}

// getActiveKeyset returns the active keyset for the mint passed.
// if mint is known and the latest active keyset has changed,
// it inactivates the previous active and saves the new active to db.
// For an unknown mint, the fetched active keyset is saved to db and the
// mint is registered with the wallet.
func (w *Wallet) getActiveKeyset(mintURL string) (*crypto.WalletKeyset, error) {
	mint, ok := w.mints[mintURL]
	if !ok {
		keyset, err := GetMintActiveKeyset(mintURL, w.unit)
		if err != nil {
			return nil, err
		}
		if err := w.db.SaveKeyset(keyset); err != nil {
			return nil, err
		}
		w.mints[mintURL] = walletMint{mintURL: mintURL, activeKeyset: *keyset,
			inactiveKeysets: make(map[string]crypto.WalletKeyset)}
		return keyset, nil
	}

	allKeysets, err := GetAllKeysets(mintURL)
	if err != nil {
		return nil, err
	}

	activeKeyset := mint.activeKeyset
	var activeInputFeePpk uint
	activeChanged := true
	for _, keyset := range allKeysets.Keysets {
		if keyset.Active && keyset.Id == activeKeyset.Id {
			activeChanged = false
			activeInputFeePpk = keyset.InputFeePpk
			break
		}
	}

	if activeChanged {
		activeKeyset.Active = false
		mint.inactiveKeysets[activeKeyset.Id] = activeKeyset
		if err := w.db.SaveKeyset(&activeKeyset); err != nil {
			return nil, err
		}

		for _, keyset := range allKeysets.Keysets {
			if _, err := hex.DecodeString(keyset.Id); err != nil {
				continue
			}
			if !keyset.Active || keyset.Unit != w.unit.String() {
				continue
			}

			if storedKeyset := w.db.GetKeyset(keyset.Id); storedKeyset != nil {
				storedKeyset.Active = true
				storedKeyset.InputFeePpk = keyset.InputFeePpk
				if err := w.db.SaveKeyset(storedKeyset); err != nil {
					return nil, err
				}
				activeKeyset = *storedKeyset
			} else {
				keys, err := GetKeysetKeys(mintURL, keyset.Id, keyset.Unit)
				if err != nil {
					return nil, err
				}
				activeKeyset = crypto.WalletKeyset{
					Id:                keyset.Id,
					MintURL:           mintURL,
					Unit:              keyset.Unit,
					Active:            true,
					UnitIndex:         crypto.UnitIndex(keyset.Unit),
					DerivationPathIdx: crypto.KeysetDerivationIndex(keyset.Id),
					PublicKeys:        keys,
					InputFeePpk:       keyset.InputFeePpk,
				}
				if err := w.db.SaveKeyset(&activeKeyset); err != nil {
					return nil, err
				}
			}

			mint.activeKeyset = activeKeyset
			delete(mint.inactiveKeysets, activeKeyset.Id)
			w.mints[mintURL] = mint
		}
	} else if activeInputFeePpk != activeKeyset.InputFeePpk {
		activeKeyset.InputFeePpk = activeInputFeePpk
		if err := w.db.SaveKeyset(&activeKeyset); err != nil {
			return nil, err
		}
		mint.activeKeyset = activeKeyset
		w.mints[mintURL] = mint
	}

	return &activeKeyset, nil
}
