// Package nut11 implements P2PK spending conditions and the SIG_ALL
// input-coupling rule as defined in [NUT-11].
//
// [NUT-11]: https://github.com/cashubtc/nuts/blob/main/11.md
package nut11

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut10"
)

const (
	// supported tags
	SIGFLAG  = "sigflag"
	NSIGS    = "n_sigs"
	PUBKEYS  = "pubkeys"
	LOCKTIME = "locktime"
	REFUND   = "refund"

	// SIGFLAG types
	SIGINPUTS = "SIG_INPUTS"
	SIGALL    = "SIG_ALL"

	// Error code
	NUT11ErrCode cashu.CashuErrCode = 30001
)

type SigFlag int

const (
	SigInputs SigFlag = iota
	SigAll
	Unknown
)

// errors
var (
	InvalidTagErr            = cashu.Error{Detail: "invalid tag", Code: NUT11ErrCode}
	TooManyTagsErr           = cashu.Error{Detail: "too many tags", Code: NUT11ErrCode}
	NSigsMustBePositiveErr   = cashu.Error{Detail: "n_sigs must be a positive integer", Code: NUT11ErrCode}
	EmptyPubkeysErr          = cashu.Error{Detail: "pubkeys tag cannot be empty if n_sigs tag is present", Code: NUT11ErrCode}
	InvalidWitness           = cashu.Error{Detail: "invalid witness", Code: NUT11ErrCode}
	NoSignaturesErr          = cashu.Error{Detail: "no signatures in witness", Code: NUT11ErrCode}
	DuplicateSignaturesErr   = cashu.Error{Detail: "duplicate signatures in witness", Code: NUT11ErrCode}
	NotEnoughSignaturesErr   = cashu.Error{Detail: "not enough valid signatures provided", Code: NUT11ErrCode}
	AllSigAllFlagsErr        = cashu.Error{Detail: "all inputs must carry SIG_ALL once one does", Code: NUT11ErrCode}
	SigAllKindMismatchErr    = cashu.Error{Detail: "all SIG_ALL inputs must be the same secret kind", Code: NUT11ErrCode}
	SigAllDataMismatchErr    = cashu.Error{Detail: "all SIG_ALL inputs must have identical secret data", Code: NUT11ErrCode}
	SigAllTagsMismatchErr    = cashu.Error{Detail: "all SIG_ALL inputs must have identical tags", Code: NUT11ErrCode}
	SigAllKeysMustBeEqualErr = cashu.Error{Detail: "all public keys must be the same for SIG_ALL", Code: NUT11ErrCode}
	SigAllOnlySwap           = cashu.Error{Detail: "SIG_ALL can only be used in /swap operation", Code: NUT11ErrCode}
	NSigsMustBeEqualErr      = cashu.Error{Detail: "all n_sigs must be the same for SIG_ALL", Code: NUT11ErrCode}
)

type P2PKWitness struct {
	Signatures []string `json:"signatures"`
}

type P2PKTags struct {
	Sigflag  string
	NSigs    int
	Pubkeys  []*btcec.PublicKey
	Locktime int64
	Refund   []*btcec.PublicKey
}

// P2PKSecret returns a secret with a spending condition
// that will lock ecash to a public key
func P2PKSecret(pubkey string) (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(nonceBytes)

	secretData := nut10.WellKnownSecret{
		Nonce: nonce,
		Data:  pubkey,
	}

	return nut10.SerializeSecret(nut10.P2PK, secretData)
}

func ParseP2PKTags(tags [][]string) (*P2PKTags, error) {
	if len(tags) > 5 {
		return nil, TooManyTagsErr
	}

	p2pkTags := P2PKTags{}

	for _, tag := range tags {
		if len(tag) < 2 {
			return nil, InvalidTagErr
		}
		tagType := tag[0]
		switch tagType {
		case SIGFLAG:
			sigflagType := tag[1]
			if sigflagType == SIGINPUTS || sigflagType == SIGALL {
				p2pkTags.Sigflag = sigflagType
			} else {
				errmsg := fmt.Sprintf("invalid sigflag: %v", sigflagType)
				return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
			}
		case NSIGS:
			nstr := tag[1]
			nsig, err := strconv.ParseInt(nstr, 10, 8)
			if err != nil {
				errmsg := fmt.Sprintf("invalid n_sigs value: %v", err)
				return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
			}
			if nsig < 0 {
				return nil, NSigsMustBePositiveErr
			}
			p2pkTags.NSigs = int(nsig)
		case PUBKEYS:
			pubkeys := make([]*btcec.PublicKey, 0, len(tag)-1)
			for i := 1; i < len(tag); i++ {
				pubkey, err := ParsePublicKey(tag[i])
				if err != nil {
					return nil, err
				}
				pubkeys = append(pubkeys, pubkey)
			}
			p2pkTags.Pubkeys = pubkeys
		case LOCKTIME:
			locktimestr := tag[1]
			locktime, err := strconv.ParseInt(locktimestr, 10, 64)
			if err != nil {
				errmsg := fmt.Sprintf("invalid locktime: %v", err)
				return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
			}
			p2pkTags.Locktime = locktime
		case REFUND:
			refundKeys := make([]*btcec.PublicKey, 0, len(tag)-1)
			for i := 1; i < len(tag); i++ {
				pubkey, err := ParsePublicKey(tag[i])
				if err != nil {
					return nil, err
				}
				refundKeys = append(refundKeys, pubkey)
			}
			p2pkTags.Refund = refundKeys
		}
	}

	return &p2pkTags, nil
}

// SigAllMessage builds the message signed once in SIG_ALL mode: every
// input secret string, in order, followed by every output B_ hex
// string, in order.
func SigAllMessage(inputs cashu.Proofs, outputs cashu.BlindedMessages) []byte {
	var sb strings.Builder
	for _, proof := range inputs {
		sb.WriteString(proof.Secret)
	}
	for _, bm := range outputs {
		sb.WriteString(bm.B_)
	}
	return []byte(sb.String())
}

// SignSigAll signs the whole-transaction message and attaches the
// resulting witness to the first input only; one signature set covers
// every input in the transaction.
func SignSigAll(inputs cashu.Proofs, outputs cashu.BlindedMessages, signingKey *btcec.PrivateKey) (cashu.Proofs, error) {
	msg := SigAllMessage(inputs, outputs)
	hash := sha256.Sum256(msg)
	signature, err := schnorr.Sign(signingKey, hash[:])
	if err != nil {
		return nil, err
	}

	witness := P2PKWitness{Signatures: []string{hex.EncodeToString(signature.Serialize())}}
	witnessBytes, err := json.Marshal(witness)
	if err != nil {
		return nil, err
	}

	signed := make(cashu.Proofs, len(inputs))
	copy(signed, inputs)
	signed[0].Witness = string(witnessBytes)
	return signed, nil
}

func AddSignatureToInputs(inputs cashu.Proofs, signingKey *btcec.PrivateKey) (cashu.Proofs, error) {
	for i, proof := range inputs {
		hash := sha256.Sum256([]byte(proof.Secret))
		signature, err := schnorr.Sign(signingKey, hash[:])
		if err != nil {
			return nil, err
		}
		signatureBytes := signature.Serialize()

		p2pkWitness := P2PKWitness{
			Signatures: []string{hex.EncodeToString(signatureBytes)},
		}

		witness, err := json.Marshal(p2pkWitness)
		if err != nil {
			return nil, err
		}
		proof.Witness = string(witness)
		inputs[i] = proof
	}

	return inputs, nil
}

func AddSignatureToOutputs(
	outputs cashu.BlindedMessages,
	signingKey *btcec.PrivateKey,
) (cashu.BlindedMessages, error) {
	for i, output := range outputs {
		msgToSign, err := hex.DecodeString(output.B_)
		if err != nil {
			return nil, err
		}

		hash := sha256.Sum256(msgToSign)
		signature, err := schnorr.Sign(signingKey, hash[:])
		if err != nil {
			return nil, err
		}
		signatureBytes := signature.Serialize()

		p2pkWitness := P2PKWitness{
			Signatures: []string{hex.EncodeToString(signatureBytes)},
		}

		witness, err := json.Marshal(p2pkWitness)
		if err != nil {
			return nil, err
		}
		output.Witness = string(witness)
		outputs[i] = output
	}

	return outputs, nil
}

// PublicKeys returns a list of public keys that can sign
// a P2PK locked proof
func PublicKeys(secret nut10.WellKnownSecret) ([]*btcec.PublicKey, error) {
	p2pkTags, err := ParseP2PKTags(secret.Tags)
	if err != nil {
		return nil, err
	}

	pubkey, err := ParsePublicKey(secret.Data)
	if err != nil {
		return nil, err
	}
	pubkeys := append([]*btcec.PublicKey{pubkey}, p2pkTags.Pubkeys...)
	return pubkeys, nil
}

func IsSecretP2PK(proof cashu.Proof) bool {
	return nut10.SecretType(proof) == nut10.P2PK
}

// ProofsSigAll returns true if at least one of the proofs
// in the list has a SIG_ALL flag
func ProofsSigAll(proofs cashu.Proofs) bool {
	for _, proof := range proofs {
		secret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			continue
		}
		if IsSigAll(secret) {
			return true
		}
	}
	return false
}

func IsSigAll(secret nut10.WellKnownSecret) bool {
	for _, tag := range secret.Tags {
		if len(tag) == 2 {
			if tag[0] == SIGFLAG && tag[1] == SIGALL {
				return true
			}
		}
	}
	return false
}

// VerifySigAllCoupling enforces the NUT-11 SIG_ALL rule: once any input
// secret carries sigflag=SIG_ALL, every input in the transaction must be
// the same NUT-10 kind, carry SIG_ALL, and have identical data and tags.
// A heterogeneous mix (e.g. P2PK alongside HTLC) is rejected as a kind
// mismatch, never silently accepted.
func VerifySigAllCoupling(proofs cashu.Proofs) error {
	if len(proofs) == 0 {
		return nil
	}

	firstKind := nut10.SecretType(proofs[0])
	firstSecret, err := nut10.DeserializeSecret(proofs[0].Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), NUT11ErrCode)
	}

	for _, proof := range proofs[1:] {
		kind := nut10.SecretType(proof)
		if kind != firstKind {
			return SigAllKindMismatchErr
		}

		secret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), NUT11ErrCode)
		}
		if !IsSigAll(secret) {
			return AllSigAllFlagsErr
		}
		if secret.Data != firstSecret.Data {
			return SigAllDataMismatchErr
		}
		if !tagsEqual(secret.Tags, firstSecret.Tags) {
			return SigAllTagsMismatchErr
		}
	}

	return nil
}

func tagsEqual(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !slices.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// VerifySigAllTransaction verifies the single signature set on the
// first input against the whole-transaction message, using the
// spending conditions carried by that first input's secret.
func VerifySigAllTransaction(proofs cashu.Proofs, outputs cashu.BlindedMessages) error {
	if err := VerifySigAllCoupling(proofs); err != nil {
		return err
	}

	secret, err := nut10.DeserializeSecret(proofs[0].Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), NUT11ErrCode)
	}

	var witness P2PKWitness
	if err := json.Unmarshal([]byte(proofs[0].Witness), &witness); err != nil || len(witness.Signatures) < 1 {
		return InvalidWitness
	}

	keys, signaturesRequired, err := SpendingKeys(secret)
	if err != nil {
		return err
	}

	msg := SigAllMessage(proofs, outputs)
	hash := sha256.Sum256(msg)
	if !HasValidSignatures(hash[:], witness.Signatures, signaturesRequired, keys) {
		return NotEnoughSignaturesErr
	}

	return nil
}

// SpendingKeys returns the set of keys allowed to spend a P2PK secret
// before its locktime, and how many signatures are required.
func SpendingKeys(secret nut10.WellKnownSecret) ([]*btcec.PublicKey, int, error) {
	tags, err := ParseP2PKTags(secret.Tags)
	if err != nil {
		return nil, 0, err
	}

	pubkey, err := ParsePublicKey(secret.Data)
	if err != nil {
		return nil, 0, err
	}
	keys := []*btcec.PublicKey{pubkey}

	signaturesRequired := 1
	if tags.NSigs > 0 {
		signaturesRequired = tags.NSigs
		if len(tags.Pubkeys) == 0 {
			return nil, 0, EmptyPubkeysErr
		}
		keys = append(keys, tags.Pubkeys...)
	}

	return keys, signaturesRequired, nil
}

func CanSign(secret nut10.WellKnownSecret, key *btcec.PrivateKey) bool {
	publicKey, err := ParsePublicKey(secret.Data)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(publicKey.SerializeCompressed(), key.PubKey().SerializeCompressed())
}

func DuplicateSignatures(signatures []string) bool {
	seen := make(map[string]bool, len(signatures))
	for _, sig := range signatures {
		if seen[sig] {
			return true
		}
		seen[sig] = true
	}
	return false
}

// HasValidSignatures counts distinct valid signatures over hash from
// the given signature list against pubkeys (each pubkey usable at most
// once) and reports whether at least Nsigs were valid.
func HasValidSignatures(hash []byte, signatures []string, Nsigs int, pubkeys []*btcec.PublicKey) bool {
	pubkeysCopy := make([]*btcec.PublicKey, len(pubkeys))
	copy(pubkeysCopy, pubkeys)

	validSignatures := 0
	for _, signature := range signatures {
		sig, err := ParseSignature(signature)
		if err != nil {
			continue
		}

		for i, pubkey := range pubkeysCopy {
			if sig.Verify(hash, pubkey) {
				validSignatures++
				pubkeysCopy = slices.Delete(pubkeysCopy, i, i+1)
				break
			}
		}
	}

	return validSignatures >= Nsigs
}

func ParsePublicKey(key string) (*btcec.PublicKey, error) {
	hexPubkey, err := hex.DecodeString(key)
	if err != nil {
		errmsg := fmt.Sprintf("invalid public key: %v", err)
		return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
	}
	pubkey, err := btcec.ParsePubKey(hexPubkey)
	if err != nil {
		errmsg := fmt.Sprintf("invalid public key: %v", err)
		return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
	}
	return pubkey, nil
}

func ParseSignature(signature string) (*schnorr.Signature, error) {
	hexSig, err := hex.DecodeString(signature)
	if err != nil {
		errmsg := fmt.Sprintf("invalid signature: %v", err)
		return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
	}
	sig, err := schnorr.ParseSignature(hexSig)
	if err != nil {
		errmsg := fmt.Sprintf("invalid signature: %v", err)
		return nil, cashu.BuildCashuError(errmsg, NUT11ErrCode)
	}

	return sig, nil
}
