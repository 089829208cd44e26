package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// MaxOrder is the number of denominations derived per keyset: 2^0 .. 2^(MaxOrder-1).
const MaxOrder = 32

// purpose is the BIP32 purpose segment every keyset and deterministic
// secret path is rooted under.
const purpose = 129372

// fixedUnitIndices pins the well-known units to stable derivation indices
// so two mints never derive colliding keysets for sat/msat/usd/auth.
var fixedUnitIndices = map[string]uint32{
	"sat":  0,
	"msat": 1,
	"usd":  2,
	"auth": 3,
}

// UnitIndex returns the derivation index for a unit. Well-known units are
// hard-coded; any other unit string is hashed into an index above the
// fixed range. Callers deriving keysets for multiple custom units must
// reject a collision themselves (two distinct unit strings hashing to the
// same index) at load time — UnitIndex is pure and cannot see other units.
func UnitIndex(unit string) uint32 {
	if idx, ok := fixedUnitIndices[unit]; ok {
		return idx
	}
	h := sha256.Sum256([]byte(unit))
	const reserved = 100
	idx := binary.BigEndian.Uint32(h[:4]) % (hdkeychain.HardenedKeyStart - reserved)
	return idx + reserved
}

// KeysetDerivationIndex hashes a keyset id into a stable hardened-range
// rotation index. The wallet never learns a mint's internal rotation
// counter (NUT-02 doesn't carry it), so it roots each keyset's NUT-13
// secret derivation at an index derived from the id it was handed
// instead — distinct ids still land on distinct, reproducible subtrees.
func KeysetDerivationIndex(id string) uint32 {
	h := sha256.Sum256([]byte(id))
	return binary.BigEndian.Uint32(h[:4]) & (hdkeychain.HardenedKeyStart - 1)
}

type MintKeyset struct {
	Id                string
	Unit              string
	Active            bool
	UnitIndex         uint32
	DerivationPathIdx uint32
	Keys              map[uint64]KeyPair
	InputFeePpk       uint
	FinalExpiry       *uint64
}

type KeyPair struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
}

// DeriveKeysetPath walks m/129372'/unitIndex'/rotationIndex' — the node
// every denomination of one keyset is derived beneath.
func DeriveKeysetPath(master *hdkeychain.ExtendedKey, unitIndex, rotationIndex uint32) (*hdkeychain.ExtendedKey, error) {
	purposeKey, err := master.Derive(hdkeychain.HardenedKeyStart + purpose)
	if err != nil {
		return nil, err
	}

	unitKey, err := purposeKey.Derive(hdkeychain.HardenedKeyStart + unitIndex)
	if err != nil {
		return nil, err
	}

	rotationKey, err := unitKey.Derive(hdkeychain.HardenedKeyStart + rotationIndex)
	if err != nil {
		return nil, err
	}

	return rotationKey, nil
}

// GenerateKeyset derives MaxOrder denomination keypairs for one (unit,
// rotationIndex) keyset, each reached via .../amountIndex'/0 — the
// trailing non-hardened leaf is what the derivation path reserves for a
// keypair (leaf 1 is reserved, unused by this engine).
func GenerateKeyset(master *hdkeychain.ExtendedKey, unit string, unitIndex, rotationIndex uint32, inputFeePpk uint) (*MintKeyset, error) {
	keysetPath, err := DeriveKeysetPath(master, unitIndex, rotationIndex)
	if err != nil {
		return nil, err
	}

	keys := make(map[uint64]KeyPair, MaxOrder)
	pubkeys := make(PublicKeys, MaxOrder)
	for i := 0; i < MaxOrder; i++ {
		amount := uint64(1) << uint(i)

		amountKey, err := keysetPath.Derive(hdkeychain.HardenedKeyStart + uint32(i))
		if err != nil {
			return nil, err
		}
		leaf, err := amountKey.Derive(0)
		if err != nil {
			return nil, err
		}

		privKey, err := leaf.ECPrivKey()
		if err != nil {
			return nil, err
		}
		pubKey, err := leaf.ECPubKey()
		if err != nil {
			return nil, err
		}

		keys[amount] = KeyPair{PrivateKey: privKey, PublicKey: pubKey}
		pubkeys[amount] = pubKey
	}

	return &MintKeyset{
		Id:                DeriveKeysetIdV1(pubkeys),
		Unit:              unit,
		Active:            true,
		UnitIndex:         unitIndex,
		DerivationPathIdx: rotationIndex,
		Keys:              keys,
		InputFeePpk:       inputFeePpk,
	}, nil
}

type PublicKeys map[uint64]*secp256k1.PublicKey

func (pks PublicKeys) sorted() []uint64 {
	amounts := make([]uint64, 0, len(pks))
	for amount := range pks {
		amounts = append(amounts, amount)
	}
	slices.Sort(amounts)
	return amounts
}

func (pks PublicKeys) concatCompressed() []byte {
	amounts := pks.sorted()
	buf := make([]byte, 0, len(amounts)*33)
	for _, amount := range amounts {
		buf = append(buf, pks[amount].SerializeCompressed()...)
	}
	return buf
}

// DeriveKeysetIdV1 is the legacy 8-byte keyset ID: 0x00 || first 7 bytes
// of SHA256(pubkeys in ascending amount order).
func DeriveKeysetIdV1(keys PublicKeys) string {
	hash := sha256.Sum256(keys.concatCompressed())
	return "00" + hex.EncodeToString(hash[:])[:14]
}

// DeriveKeysetIdV2 additionally binds the ID to the unit and an optional
// expiry, so two otherwise-identical keysets for different units (or
// validity windows) never collide: 0x01 || first 7 bytes of
// SHA256(pubkeys || unit-ascii || optional expiry-LE64).
func DeriveKeysetIdV2(keys PublicKeys, unit string, finalExpiry *uint64) string {
	data := keys.concatCompressed()
	data = append(data, []byte(unit)...)
	if finalExpiry != nil {
		var expBytes [8]byte
		binary.LittleEndian.PutUint64(expBytes[:], *finalExpiry)
		data = append(data, expBytes[:]...)
	}
	hash := sha256.Sum256(data)
	return "01" + hex.EncodeToString(hash[:])[:14]
}

// Ids returns both the V1 and V2 identifiers for this keyset's public
// keys, for dual-ID exposure on the keys/keysets endpoints.
func (ks *MintKeyset) Ids() (v1, v2 string) {
	pubs := ks.PublicKeys()
	return DeriveKeysetIdV1(pubs), DeriveKeysetIdV2(pubs, ks.Unit, ks.FinalExpiry)
}

func (ks *MintKeyset) PublicKeys() PublicKeys {
	pubkeys := make(PublicKeys, len(ks.Keys))
	for amount, key := range ks.Keys {
		pubkeys[amount] = key.PublicKey
	}
	return pubkeys
}

// Custom marshaller to display keys sorted by amount (matches the wire
// format the /v1/keys endpoint promises).
func (pks PublicKeys) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, amount := range pks.sorted() {
		if i != 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%q", fmt.Sprint(amount), hex.EncodeToString(pks[amount].SerializeCompressed()))
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (pks PublicKeys) UnmarshalJSON(data []byte) error {
	var raw map[uint64]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for amount, key := range raw {
		keyBytes, err := hex.DecodeString(key)
		if err != nil {
			return err
		}
		publicKey, err := secp256k1.ParsePubKey(keyBytes)
		if err != nil {
			return fmt.Errorf("invalid public key: %v", err)
		}
		pks[amount] = publicKey
	}
	return nil
}

type keysetTemp struct {
	Id                string
	Unit              string
	Active            bool
	UnitIndex         uint32
	DerivationPathIdx uint32
	Keys              map[uint64]json.RawMessage
	InputFeePpk       uint
	FinalExpiry       *uint64
}

func (ks *MintKeyset) MarshalJSON() ([]byte, error) {
	keys := make(map[uint64]json.RawMessage, len(ks.Keys))
	for amount, kp := range ks.Keys {
		b, err := json.Marshal(&kp)
		if err != nil {
			return nil, err
		}
		keys[amount] = b
	}

	return json.Marshal(&keysetTemp{
		Id:                ks.Id,
		Unit:              ks.Unit,
		Active:            ks.Active,
		UnitIndex:         ks.UnitIndex,
		DerivationPathIdx: ks.DerivationPathIdx,
		Keys:              keys,
		InputFeePpk:       ks.InputFeePpk,
		FinalExpiry:       ks.FinalExpiry,
	})
}

func (ks *MintKeyset) UnmarshalJSON(data []byte) error {
	temp := &keysetTemp{}
	if err := json.Unmarshal(data, temp); err != nil {
		return err
	}

	ks.Id = temp.Id
	ks.Unit = temp.Unit
	ks.Active = temp.Active
	ks.UnitIndex = temp.UnitIndex
	ks.DerivationPathIdx = temp.DerivationPathIdx
	ks.InputFeePpk = temp.InputFeePpk
	ks.FinalExpiry = temp.FinalExpiry

	ks.Keys = make(map[uint64]KeyPair, len(temp.Keys))
	for amount, raw := range temp.Keys {
		var kp KeyPair
		if err := json.Unmarshal(raw, &kp); err != nil {
			return err
		}
		ks.Keys[amount] = kp
	}

	return nil
}

type keyPairTemp struct {
	PrivateKey []byte `json:"private_key"`
	PublicKey  []byte `json:"public_key"`
}

func (kp *KeyPair) MarshalJSON() ([]byte, error) {
	var privKey []byte
	if kp.PrivateKey != nil {
		privKey = kp.PrivateKey.Serialize()
	}
	return json.Marshal(&keyPairTemp{
		PrivateKey: privKey,
		PublicKey:  kp.PublicKey.SerializeCompressed(),
	})
}

func (kp *KeyPair) UnmarshalJSON(data []byte) error {
	aux := &keyPairTemp{}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.PrivateKey) > 0 {
		kp.PrivateKey = secp256k1.PrivKeyFromBytes(aux.PrivateKey)
	}

	pub, err := secp256k1.ParsePubKey(aux.PublicKey)
	if err != nil {
		return err
	}
	kp.PublicKey = pub

	return nil
}

// KeysetsMap groups a wallet's known keysets by the mint URL that issued
// them.
type KeysetsMap map[string][]WalletKeyset

// WalletKeyset is the wallet's local replica of a mint keyset: public
// keys only, plus the deterministic-secret counter (NUT-13).
type WalletKeyset struct {
	Id      string
	MintURL string
	Unit    string
	Active  bool
	// UnitIndex and DerivationPathIdx select the
	// m/129372'/unitIndex'/derivationPathIdx' node the wallet derives this
	// keyset's NUT-13 secrets and blinding factors under. The wallet fills
	// DerivationPathIdx from KeysetDerivationIndex(Id), not from the mint's
	// own rotation index, which a fetched keyset does not carry.
	UnitIndex         uint32
	DerivationPathIdx uint32
	PublicKeys        PublicKeys
	Counter           uint32
	InputFeePpk       uint
	FinalExpiry       *uint64
}

type walletKeysetTemp struct {
	Id                string
	MintURL           string
	Unit              string
	Active            bool
	UnitIndex         uint32
	DerivationPathIdx uint32
	PublicKeys        map[uint64][]byte
	Counter           uint32
	InputFeePpk       uint
	FinalExpiry       *uint64
}

func (wk *WalletKeyset) MarshalJSON() ([]byte, error) {
	pubkeys := make(map[uint64][]byte, len(wk.PublicKeys))
	for amount, key := range wk.PublicKeys {
		pubkeys[amount] = key.SerializeCompressed()
	}

	return json.Marshal(&walletKeysetTemp{
		Id:                wk.Id,
		MintURL:           wk.MintURL,
		Unit:              wk.Unit,
		Active:            wk.Active,
		UnitIndex:         wk.UnitIndex,
		DerivationPathIdx: wk.DerivationPathIdx,
		PublicKeys:        pubkeys,
		Counter:           wk.Counter,
		InputFeePpk:       wk.InputFeePpk,
		FinalExpiry:       wk.FinalExpiry,
	})
}

func (wk *WalletKeyset) UnmarshalJSON(data []byte) error {
	temp := &walletKeysetTemp{}
	if err := json.Unmarshal(data, temp); err != nil {
		return err
	}

	wk.Id = temp.Id
	wk.MintURL = temp.MintURL
	wk.Unit = temp.Unit
	wk.Active = temp.Active
	wk.UnitIndex = temp.UnitIndex
	wk.DerivationPathIdx = temp.DerivationPathIdx
	wk.Counter = temp.Counter
	wk.InputFeePpk = temp.InputFeePpk
	wk.FinalExpiry = temp.FinalExpiry

	wk.PublicKeys = make(PublicKeys, len(temp.PublicKeys))
	for amount, raw := range temp.PublicKeys {
		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return err
		}
		wk.PublicKeys[amount] = pub
	}

	return nil
}
