package primegen

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"testing"
)

// A candidate is the unsigned interpretation of exactly bitLength/8 bytes
// from the source, with no adjustment of the most significant bit.
func TestRandomCandidate_Deterministic(t *testing.T) {
	t.Parallel()
	raw := []byte{0x00, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde}
	candidate, err := RandomCandidate(bytes.NewReader(raw), 64)
	if err != nil {
		t.Errorf("RandomCandidate returned an error: %v", err)
	}
	expected := new(big.Int).SetBytes(raw)
	if candidate.Cmp(expected) != 0 {
		t.Errorf("Expected %v got %v", expected, candidate)
	}
	// The leading zero byte must carry through to a shorter bit length.
	if candidate.BitLen() > 56 {
		t.Errorf("Expected bit length <= 56, got %d", candidate.BitLen())
	}
}

// Sampled candidates never exceed the requested width, are never negative,
// and may be narrower because the top bit is left to chance.
func TestRandomCandidate_BitLengthBound(t *testing.T) {
	for _, bitLength := range []int{32, 64, 128, 256} {
		bitLength := bitLength
		t.Run(fmt.Sprintf("bitLength=%d", bitLength), func(t *testing.T) {
			t.Parallel()
			for i := 0; i < 100; i++ {
				candidate, err := RandomCandidate(rand.Reader, bitLength)
				if err != nil {
					t.Errorf("RandomCandidate returned an error: %v", err)
				}
				if candidate.Sign() < 0 {
					t.Errorf("Candidate %v is negative", candidate)
				}
				if candidate.BitLen() > bitLength {
					t.Errorf("Candidate bit length %d exceeds %d", candidate.BitLen(), bitLength)
				}
			}
		})
	}
}

// An exhausted source is an error, not a short candidate.
func TestRandomCandidate_ShortRead(t *testing.T) {
	t.Parallel()
	if _, err := RandomCandidate(bytes.NewReader([]byte{0x01, 0x02}), 64); err == nil {
		t.Error("Expected an error from a short source, got nil")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source failed")
}

func TestRandomCandidate_SourceError(t *testing.T) {
	t.Parallel()
	if _, err := RandomCandidate(errReader{}, 32); err == nil {
		t.Error("Expected an error from a failing source, got nil")
	}
}
