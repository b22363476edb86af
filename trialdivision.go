package primegen

import "math/big"

// The fixed primes used for trial division. Together these eliminate the
// large majority of composite candidates before any modular exponentiation
// is paid for.
var (
	smallPrimes = [...]uint64{2, 3, 5, 7, 11}
	// 2 * 3 * 5 * 7 * 11
	smallPrimesProduct = big.NewInt(2310)

	three = big.NewInt(3)
)

// hasSmallFactor reports whether n is divisible by one of the smallPrimes.
// A single big.Int reduction against the product of the set replaces five
// separate divisions; the remainder fits a uint64 so the per-prime checks
// are cheap.
func hasSmallFactor(n *big.Int) bool {
	m := new(big.Int).Mod(n, smallPrimesProduct).Uint64()
	for _, p := range smallPrimes {
		if m%p == 0 {
			return true
		}
	}
	return false
}
