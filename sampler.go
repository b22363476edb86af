package primegen

import (
	"fmt"
	"io"
	"math/big"
)

// RandomCandidate draws bitLength/8 bytes from src and interprets them as an
// unsigned big-endian magnitude. The most significant bit is deliberately not
// forced, so the returned integer's actual bit length may be less than
// bitLength; callers that advertise "N-bit" primes should document the bound
// as <= N.
func RandomCandidate(src io.Reader, bitLength int) (*big.Int, error) {
	logger := Logger.V(2).WithValues("bitLength", bitLength)
	buf := make([]byte, bitLength/8)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d random bytes: %w", len(buf), err)
	}
	candidate := new(big.Int).SetBytes(buf)
	logger.Info("Sampled candidate", "actualBitLength", candidate.BitLen())
	return candidate, nil
}
