package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// dleqDomain tags the Fiat-Shamir challenge so a DLEQ challenge hash can
// never be mistaken for a hash computed for another purpose.
const dleqDomain = "DLEQ"

// GenerateDLEQ produces a non-interactive proof (NUT-12) that the mint
// signed B_ with the same private key k whose public key is published for
// this denomination, without revealing k. It proves log_G(K) == log_B_(C_).
func GenerateDLEQ(k *secp256k1.PrivateKey, B_, C_ *secp256k1.PublicKey) (e, s *secp256k1.PrivateKey, err error) {
	p, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}

	R1 := p.PubKey()
	R2 := scalarMult(&p.Key, B_)
	K := k.PubKey()

	e = challengeScalar(R1, R2, K, C_)

	var sVal secp256k1.ModNScalar
	sVal.Set(&e.Key)
	sVal.Mul(&k.Key)
	sVal.Add(&p.Key)
	sBytes := sVal.Bytes()
	s = secp256k1.PrivKeyFromBytes(sBytes[:])

	return e, s, nil
}

// VerifyDLEQ checks a proof produced by GenerateDLEQ against the mint's
// public key A for the denomination and the blinded message/signature
// pair it was issued for.
func VerifyDLEQ(e, s *secp256k1.PrivateKey, A, B_, C_ *secp256k1.PublicKey) bool {
	sG := s.PubKey()
	eA := scalarMult(&e.Key, A)
	R1 := addPoints(sG, negatePoint(eA))

	sB_ := scalarMult(&s.Key, B_)
	eC_ := scalarMult(&e.Key, C_)
	R2 := addPoints(sB_, negatePoint(eC_))

	candidate := challengeScalar(R1, R2, A, C_)
	return candidate.Key.Equals(&e.Key)
}

func challengeScalar(points ...*secp256k1.PublicKey) *secp256k1.PrivateKey {
	h := sha256.New()
	h.Write([]byte(dleqDomain))
	for _, p := range points {
		h.Write(p.SerializeCompressed())
	}
	return secp256k1.PrivKeyFromBytes(h.Sum(nil))
}

func negatePoint(p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var pj secp256k1.JacobianPoint
	p.AsJacobian(&pj)
	pj.Y.Negate(1)
	pj.Y.Normalize()
	pj.ToAffine()
	return secp256k1.NewPublicKey(&pj.X, &pj.Y)
}
