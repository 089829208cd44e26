// This binary is executable documentation for the crypto package's
// keyset derivation; the mintctl and walletctl commands under cmd/ are
// the real entry points.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/crypto"
)

func main() {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		fmt.Println(err)
		return
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		fmt.Println(err)
		return
	}

	unit := cashu.Sat.String()
	keyset, err := crypto.GenerateKeyset(master, unit, crypto.UnitIndex(unit), 0, 0)
	if err != nil {
		fmt.Println(err)
		return
	}

	v1, v2 := keyset.Ids()
	fmt.Printf("keyset id (v1): %v\nkeyset id (v2): %v\n", v1, v2)

	jsonKeys, err := json.Marshal(keyset.PublicKeys())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s\n", jsonKeys)
}
