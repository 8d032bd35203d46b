package keys

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// Parameters of the secp256k1 curve. The group order also serves as the prime
// modulus of the secret-sharing field, so that any in-value fits in a single
// field element.
var (
	Secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
)

// Curve returns the secp256k1 elliptic.Curve, using btcsuite's golang
// implementation.
func Curve() elliptic.Curve {
	return btcec.S256()
}
