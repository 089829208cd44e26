package wallet

// Config configures a wallet instance at load time, grounded in the
// teacher's cmd/nutw flag set: a wallet db path, the mint it talks to by
// default, and the unit it operates in.
type Config struct {
	WalletPath     string
	CurrentMintURL string
	Unit           string
}
