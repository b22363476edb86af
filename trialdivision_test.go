package primegen

import (
	"fmt"
	"math/big"
	"testing"
)

// Every multiple of a small prime must be flagged, including multiples far
// beyond the uint64 range.
func TestHasSmallFactor_Multiples(t *testing.T) {
	t.Parallel()
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	if !ok {
		t.Fatal("Failed to parse test constant")
	}
	for _, p := range smallPrimes {
		for _, k := range []int64{1, 2, 17, 1000003} {
			n := new(big.Int).Mul(big.NewInt(int64(p)), big.NewInt(k))
			if !hasSmallFactor(n) {
				t.Errorf("Expected %v (=%d*%d) to have a small factor", n, p, k)
			}
		}
		n := new(big.Int).Mul(huge, big.NewInt(int64(p)))
		if !hasSmallFactor(n) {
			t.Errorf("Expected %v to have a small factor of %d", n, p)
		}
	}
}

// Numbers coprime to the whole small prime set must be deferred to the
// witness loop.
func TestHasSmallFactor_Coprime(t *testing.T) {
	t.Parallel()
	for _, n := range []int64{13, 17, 19, 23, 29, 97, 101, 169, 221, 1000003} {
		if hasSmallFactor(big.NewInt(n)) {
			t.Errorf("Expected %d to have no small factor", n)
		}
	}
}

// Exhaustive agreement with naive divisibility over a contiguous range.
func TestHasSmallFactor_MatchesNaive(t *testing.T) {
	t.Parallel()
	for n := int64(13); n < 5000; n++ {
		expected := n%2 == 0 || n%3 == 0 || n%5 == 0 || n%7 == 0 || n%11 == 0
		if actual := hasSmallFactor(big.NewInt(n)); actual != expected {
			t.Errorf("Checking n=%d: expected %t got %t", n, expected, actual)
		}
	}
}

func BenchmarkHasSmallFactor(b *testing.B) {
	for _, bits := range []int{64, 256, 1024} {
		n := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		n.Add(n, big.NewInt(1))
		b.Run(fmt.Sprintf("bits=%d", bits), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = hasSmallFactor(n)
			}
		})
	}
}
