// Package primegen implements a concurrent random-prime discovery engine.
// Candidates of a requested bit width are drawn from a cryptographically
// secure source, obvious composites are rejected by trial division against a
// small fixed prime set, and survivors are classified by a Miller-Rabin
// witness loop. A pool of workers repeats this until a requested number of
// probable primes has been found.
//
// The primes produced are demonstration grade; the witness loop bounds the
// probability of a false probable-prime verdict by 4^-rounds, which is not a
// substitute for a certified generator.
package primegen

import (
	"errors"
	"math/big"
	"time"

	"github.com/go-logr/logr"
)

const (
	// The number of Miller-Rabin witness rounds applied to a candidate when
	// SearchConfig does not specify a value.
	DefaultWitnessRounds = 10
	// The smallest candidate width accepted by a Searcher.
	MinBitLength = 32
)

var (
	// Logger is the logr sink used by this package; default is a no-op
	// logger. Assign a real implementation to get library logs.
	Logger = logr.Discard()

	// ErrInvalidBitLength is returned when a bit length is not a multiple
	// of 8, or is smaller than MinBitLength.
	ErrInvalidBitLength = errors.New("bit length must be a multiple of 8 and >= 32")
	// ErrInvalidTargetCount is returned when the requested number of primes
	// is not positive.
	ErrInvalidTargetCount = errors.New("target count must be >= 1")
	// ErrInvalidWitnessRounds is returned when the witness round count is
	// negative.
	ErrInvalidWitnessRounds = errors.New("witness rounds must be >= 0")
)

// SearchConfig carries the validated parameters of a prime search. The zero
// value is not usable; callers populate BitLength and TargetCount, and may
// leave WitnessRounds at zero to accept DefaultWitnessRounds.
type SearchConfig struct {
	// The width, in bits, of sampled candidates. Must be a multiple of 8
	// and at least MinBitLength. Note that sampled candidates do not have
	// their most significant bit forced, so the discovered primes have a
	// bit length <= BitLength, not necessarily == BitLength.
	BitLength int
	// The exact number of probable primes to report.
	TargetCount int
	// The number of Miller-Rabin rounds per candidate; zero selects
	// DefaultWitnessRounds.
	WitnessRounds int
}

// Validate returns an error describing the first invalid field, or nil. The
// engine calls this defensively; command-line validation is expected to have
// rejected bad values long before a SearchConfig is built.
func (c SearchConfig) Validate() error {
	if c.BitLength < MinBitLength || c.BitLength%8 != 0 {
		return ErrInvalidBitLength
	}
	if c.TargetCount < 1 {
		return ErrInvalidTargetCount
	}
	if c.WitnessRounds < 0 {
		return ErrInvalidWitnessRounds
	}
	return nil
}

// rounds returns the effective witness round count.
func (c SearchConfig) rounds() int {
	if c.WitnessRounds == 0 {
		return DefaultWitnessRounds
	}
	return c.WitnessRounds
}

// PrimeResult pairs a discovered probable prime with its 1-based sequence
// number. Sequence numbers reflect real-time discovery order, not numeric
// order; which prime receives which number is scheduling dependent.
type PrimeResult struct {
	SequenceNumber int
	Prime          *big.Int
}

// SearchReport is the outcome of a completed search: the discovered primes in
// emission order, and the wall-clock duration from the start of the parallel
// phase to the point the target count was reached.
type SearchReport struct {
	Primes  []PrimeResult
	Elapsed time.Duration
}
