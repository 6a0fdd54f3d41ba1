// Package nonce splits a raw account-abstraction nonce into its grouping key
// and monotonic value. ERC-4337 entrypoints treat the nonce as a 2d value:
// the upper 192 bits select an independent sequence (the key) and the lower
// 64 bits count within it. Chains whose entrypoint predates 2d nonces use the
// whole nonce as the value under key zero.
package nonce

import "math/big"

// Codec splits a raw nonce into (key, value). Implementations are pure; the
// lifecycle manager is configured with one codec per process.
type Codec interface {
	Split(raw *big.Int) (key *big.Int, value *big.Int)
}

var (
	valueBits = uint(64)
	valueMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), valueBits), big.NewInt(1))
)

// Key192 is the ERC-4337 2d nonce layout: key = raw >> 64, value = low 64 bits.
type Key192 struct{}

func (Key192) Split(raw *big.Int) (*big.Int, *big.Int) {
	key := new(big.Int).Rsh(raw, valueBits)
	value := new(big.Int).And(raw, valueMask)
	return key, value
}

// Raw keeps the whole nonce as the value under key zero, for entrypoints
// without parallel nonce sequences.
type Raw struct{}

func (Raw) Split(raw *big.Int) (*big.Int, *big.Int) {
	return big.NewInt(0), new(big.Int).Set(raw)
}
