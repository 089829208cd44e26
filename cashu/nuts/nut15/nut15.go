package nut15

import (
	"errors"
	"fmt"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/wallet"
)

var (
	ErrSplitTooShort = errors.New("length of split too short")
)

// IsMppSupported reports whether the mint's info lists NUT-15 at all; the
// unit argument is not checked against the mint's NUT-15 methods.
func IsMppSupported(mint string, unit cashu.Unit) (bool, error) {
	mintInfo, err := wallet.GetMintInfo(mint)
	if err != nil {
		return false, fmt.Errorf("error getting info from mint: %v", err)
	}

	_, ok := mintInfo.Nuts[15]
	if ok {
		return true, nil
	}

	// TODO: removing this check for now. This format was added in a recent change so
	// it is not in the latest releases of other mints. Add when it's more widely implemented.
	// _, ok := mintInfo.Nuts[15].(map[string]interface{})
	// if !ok {
	// 	return false, nil
	// }

	// nut15Methods, ok := nut15["methods"].([]nut06.MethodSetting)
	// if !ok {
	// 	return false, nil
	// }
	//
	// for _, method := range nut15Methods {
	// 	if method.Unit == unit.String() {
	// 		return true, nil
	// 	}
	// }

	return false, nil
}
