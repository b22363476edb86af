package primegen

import (
	"fmt"
	"io"
	"math/big"
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// IsProbablyPrime classifies a candidate. Candidates of 3 or less are prime
// by convention, divisibility by one of the smallPrimes is an immediate
// composite verdict, and anything else is decided by a Miller-Rabin witness
// loop of the given number of rounds using src as the source of witness
// bases. The probability that a composite survives the witness loop is at
// most 4^-rounds. An error is only returned when src fails.
func IsProbablyPrime(src io.Reader, n *big.Int, rounds int) (bool, error) {
	if n.Cmp(three) <= 0 {
		return true, nil
	}
	if hasSmallFactor(n) {
		return false, nil
	}
	return witnessLoop(src, n, rounds)
}

// decompose factors n-1 as 2^r * d with d odd, by repeated halving. The loop
// is deliberately iterative; candidates can be hundreds of bits wide.
func decompose(n *big.Int) (uint, *big.Int) {
	d := new(big.Int).Sub(n, one)
	var r uint
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		r++
	}
	return r, d
}

// randomWitness draws a uniformly random base a with 2 <= a <= n-2 by
// rejection sampling integers of one bit less than n's width. Rejection keeps
// the distribution uniform over the valid range whatever the discard rate.
func randomWitness(src io.Reader, n, nMinusOne *big.Int) (*big.Int, error) {
	bits := n.BitLen() - 1
	size := (bits + 7) / 8
	mask := byte(0xff >> (8*size - bits))
	buf := make([]byte, size)
	a := new(big.Int)
	for {
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, fmt.Errorf("failed to read %d random bytes for witness: %w", size, err)
		}
		buf[0] &= mask
		a.SetBytes(buf)
		if a.Cmp(two) >= 0 && a.Cmp(nMinusOne) < 0 {
			return a, nil
		}
	}
}

// witnessLoop runs the Miller-Rabin rounds for an odd n > 3. Each round draws
// a fresh base a and computes x = a^d mod n; the round passes when x is 1 or
// n-1, or when one of up to r-1 squarings of x reaches n-1. A round that
// exhausts its squarings proves n composite and short-circuits the remaining
// rounds.
func witnessLoop(src io.Reader, n *big.Int, rounds int) (bool, error) {
	logger := Logger.V(2).WithValues("n", n, "rounds", rounds)
	r, d := decompose(n)
	nMinusOne := new(big.Int).Sub(n, one)
	x := new(big.Int)
	for i := 0; i < rounds; i++ {
		a, err := randomWitness(src, n, nMinusOne)
		if err != nil {
			return false, err
		}
		x.Exp(a, d, n)
		if x.Cmp(one) == 0 || x.Cmp(nMinusOne) == 0 {
			continue
		}
		passed := false
		for j := uint(1); j < r; j++ {
			x.Mul(x, x)
			x.Mod(x, n)
			if x.Cmp(nMinusOne) == 0 {
				passed = true
				break
			}
		}
		if !passed {
			logger.Info("Witness proved candidate composite", "round", i)
			return false, nil
		}
	}
	return true, nil
}
