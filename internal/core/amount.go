package core

import (
	"fmt"
	"math/big"
)

// AMG is the asset minting granularity unit. All ledger counters are kept in
// AMG; underlying base amounts (UBA) and collateral wei are big integers.
type AMG = uint64

// addAMG panics on overflow. Ledger arithmetic going out of range means a
// caller sequencing bug, not a recoverable condition.
func addAMG(a, b AMG) AMG {
	s := a + b
	if s < a {
		panic(fmt.Sprintf("core: AMG overflow: %d + %d", a, b))
	}
	return s
}

// subAMG panics on underflow for the same reason.
func subAMG(a, b AMG) AMG {
	if b > a {
		panic(fmt.Sprintf("core: AMG underflow: %d - %d", a, b))
	}
	return a - b
}

func minAMG(a, b AMG) AMG {
	if a < b {
		return a
	}
	return b
}

// bigUint64 converts a non-negative big.Int known to fit 64 bits.
func bigUint64(v *big.Int) uint64 {
	if !v.IsUint64() {
		panic(fmt.Sprintf("core: value does not fit uint64: %s", v))
	}
	return v.Uint64()
}

// minBig returns the smaller of a and b (no aliasing, fresh value).
func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// mulDivBips computes value * bips / 10000 with floor division.
func mulDivBips(value *big.Int, bips uint32) *big.Int {
	r := new(big.Int).Mul(value, big.NewInt(int64(bips)))
	return r.Quo(r, big.NewInt(MaxBIPS))
}
