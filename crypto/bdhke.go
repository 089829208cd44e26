package crypto

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// domainSeparator is prepended to every hash_to_curve input so a point
// derived from a secret can never collide with a point meant for an
// unrelated purpose.
const domainSeparator = "Secp256k1_HashToCurve_Cashu_"

// HashToCurve maps an arbitrary secret to a point on the curve whose
// discrete log nobody knows. It iterates a little-endian counter,
// appended to the domain-separated message, until the SHA256 digest
// decompresses to a valid point. Deterministic; fails only with
// negligible probability.
func HashToCurve(secret []byte) *secp256k1.PublicKey {
	msg := make([]byte, 0, len(domainSeparator)+len(secret)+4)
	msg = append(msg, domainSeparator...)
	msg = append(msg, secret...)

	var counter uint32
	for {
		attempt := append(msg, le32(counter)...)
		hash := sha256.Sum256(attempt)
		pkBytes := append([]byte{0x02}, hash[:]...)
		if point, err := secp256k1.ParsePubKey(pkBytes); err == nil {
			return point
		}
		counter++
	}
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// BlindMessage computes B_ = Y + r*G. If blindingFactor is nil, a fresh
// one is sampled.
func BlindMessage(secret []byte, blindingFactor []byte) (*secp256k1.PublicKey, *secp256k1.PrivateKey, error) {
	var r *secp256k1.PrivateKey
	if blindingFactor == nil {
		var err error
		r, err = secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, err
		}
	} else {
		r = secp256k1.PrivKeyFromBytes(blindingFactor)
	}

	var yPoint, rPoint, blinded secp256k1.JacobianPoint
	Y := HashToCurve(secret)
	Y.AsJacobian(&yPoint)
	r.PubKey().AsJacobian(&rPoint)

	secp256k1.AddNonConst(&yPoint, &rPoint, &blinded)
	blinded.ToAffine()
	B_ := secp256k1.NewPublicKey(&blinded.X, &blinded.Y)

	return B_, r, nil
}

// SignBlindedMessage computes C_ = k*B_ for the mint's per-denomination key k.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var bPoint, result secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)

	secp256k1.ScalarMultNonConst(&k.Key, &bPoint, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// UnblindSignature computes C = C_ - r*K.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var kPoint, rkPoint, cPoint, result secp256k1.JacobianPoint
	K.AsJacobian(&kPoint)

	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	secp256k1.ScalarMultNonConst(&rNeg, &kPoint, &rkPoint)

	C_.AsJacobian(&cPoint)
	secp256k1.AddNonConst(&cPoint, &rkPoint, &result)
	result.ToAffine()

	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// Verify checks that k*hash_to_curve(secret) == C.
func Verify(secret []byte, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) bool {
	var yPoint, result secp256k1.JacobianPoint
	Y := HashToCurve(secret)
	Y.AsJacobian(&yPoint)

	secp256k1.ScalarMultNonConst(&k.Key, &yPoint, &result)
	result.ToAffine()
	candidate := secp256k1.NewPublicKey(&result.X, &result.Y)

	return C.IsEqual(candidate)
}

// addPoints is a small helper the DLEQ code reuses to keep the Jacobian
// add/scalar-mult dance in one place.
func addPoints(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	var aj, bj, rj secp256k1.JacobianPoint
	a.AsJacobian(&aj)
	b.AsJacobian(&bj)
	secp256k1.AddNonConst(&aj, &bj, &rj)
	rj.ToAffine()
	return secp256k1.NewPublicKey(&rj.X, &rj.Y)
}

func scalarMult(k *secp256k1.ModNScalar, p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var pj, rj secp256k1.JacobianPoint
	p.AsJacobian(&pj)
	secp256k1.ScalarMultNonConst(k, &pj, &rj)
	rj.ToAffine()
	return secp256k1.NewPublicKey(&rj.X, &rj.Y)
}
