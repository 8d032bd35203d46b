package vss

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rondonetworks/rondo/src/crypto/keys"
)

// shareSize is the byte length of a share value, one field element of the
// secp256k1 group order.
const shareSize = 32

// Share is one piece of a split secret. Index is the x-coordinate at which
// the sharing polynomial was evaluated, starting at 1.
type Share struct {
	Index int
	Value []byte
}

// Bytes encodes the share as a single byte slice: one index byte followed by
// the 32-byte value.
func (s *Share) Bytes() []byte {
	buf := make([]byte, 1+shareSize)
	buf[0] = byte(s.Index)
	copy(buf[1:], s.Value)
	return buf
}

// ShareFromBytes decodes a share produced by Bytes.
func ShareFromBytes(data []byte) (*Share, error) {
	if len(data) != 1+shareSize {
		return nil, fmt.Errorf("wrong share length: got %d, want %d", len(data), 1+shareSize)
	}
	return &Share{
		Index: int(data[0]),
		Value: append([]byte{}, data[1:]...),
	}, nil
}

// Split shares the secret between total participants such that any threshold
// of them can reconstruct it. The secret, interpreted as a big-endian integer,
// must be smaller than the secp256k1 group order.
func Split(secret []byte, total, threshold int) ([]*Share, error) {
	if threshold < 1 || threshold > total {
		return nil, fmt.Errorf("invalid threshold %d for %d participants", threshold, total)
	}
	if total > 255 {
		return nil, fmt.Errorf("too many participants: %d", total)
	}

	s := new(big.Int).SetBytes(secret)
	if s.Cmp(keys.Secp256k1N) >= 0 {
		return nil, fmt.Errorf("secret does not fit in the sharing field")
	}

	// random polynomial of degree threshold-1 with the secret as the constant
	// term
	coeffs := make([]*big.Int, threshold)
	coeffs[0] = s
	for i := 1; i < threshold; i++ {
		c, err := rand.Int(rand.Reader, keys.Secp256k1N)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	shares := make([]*Share, total)
	for x := 1; x <= total; x++ {
		shares[x-1] = &Share{
			Index: x,
			Value: pad32(evalPolynomial(coeffs, int64(x)).Bytes()),
		}
	}

	return shares, nil
}

// Combine reconstructs the secret from at least threshold distinct shares by
// Lagrange interpolation at zero. The caller is responsible for checking the
// reconstructed value against the published commitment.
func Combine(shares []*Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("no shares to combine")
	}

	seen := map[int]bool{}
	for _, sh := range shares {
		if sh.Index < 1 || sh.Index > 255 {
			return nil, fmt.Errorf("invalid share index %d", sh.Index)
		}
		if seen[sh.Index] {
			return nil, fmt.Errorf("duplicate share index %d", sh.Index)
		}
		seen[sh.Index] = true
	}

	secret := new(big.Int)

	for i, shi := range shares {
		num := big.NewInt(1)
		den := big.NewInt(1)

		xi := big.NewInt(int64(shi.Index))
		for j, shj := range shares {
			if i == j {
				continue
			}
			xj := big.NewInt(int64(shj.Index))

			num.Mul(num, xj)
			num.Mod(num, keys.Secp256k1N)

			diff := new(big.Int).Sub(xj, xi)
			den.Mul(den, diff)
			den.Mod(den, keys.Secp256k1N)
		}

		den.ModInverse(den, keys.Secp256k1N)

		term := new(big.Int).SetBytes(shi.Value)
		term.Mul(term, num)
		term.Mod(term, keys.Secp256k1N)
		term.Mul(term, den)
		term.Mod(term, keys.Secp256k1N)

		secret.Add(secret, term)
		secret.Mod(secret, keys.Secp256k1N)
	}

	return pad32(secret.Bytes()), nil
}

// evalPolynomial evaluates the polynomial at x with Horner's method, modulo
// the group order.
func evalPolynomial(coeffs []*big.Int, x int64) *big.Int {
	bx := big.NewInt(x)
	res := new(big.Int)
	for i := len(coeffs) - 1; i >= 0; i-- {
		res.Mul(res, bx)
		res.Add(res, coeffs[i])
		res.Mod(res, keys.Secp256k1N)
	}
	return res
}

func pad32(b []byte) []byte {
	if len(b) >= shareSize {
		return b
	}
	padded := make([]byte, shareSize)
	copy(padded[shareSize-len(b):], b)
	return padded
}
