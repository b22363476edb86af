package primegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
)

// verifyReport applies the structural checks shared by the coordinator
// scenarios: exact count, sequence numbers 1..N in emission order, parity,
// freedom from small factors, and the bit length bound. Prime values are
// scheduling dependent and are never asserted directly.
func verifyReport(t *testing.T, report *SearchReport, config SearchConfig) {
	t.Helper()
	if report == nil {
		t.Fatal("Report is nil")
	}
	if len(report.Primes) != config.TargetCount {
		t.Errorf("Expected %d primes, got %d", config.TargetCount, len(report.Primes))
	}
	for i, result := range report.Primes {
		if result.SequenceNumber != i+1 {
			t.Errorf("Result %d: expected sequence number %d got %d", i, i+1, result.SequenceNumber)
		}
		if result.Prime == nil {
			t.Fatalf("Result %d: prime is nil", i)
		}
		if result.Prime.BitLen() == 0 || result.Prime.BitLen() > config.BitLength {
			t.Errorf("Result %d: bit length %d outside (0, %d]", i, result.Prime.BitLen(), config.BitLength)
		}
		if result.Prime.Cmp(three) > 0 {
			if result.Prime.Bit(0) == 0 {
				t.Errorf("Result %d: emitted an even candidate %v", i, result.Prime)
			}
			if hasSmallFactor(result.Prime) {
				t.Errorf("Result %d: emitted %v with a small factor", i, result.Prime)
			}
		}
		prime, err := IsProbablyPrime(rand.Reader, result.Prime, DefaultWitnessRounds)
		if err != nil {
			t.Errorf("Result %d: IsProbablyPrime returned an error: %v", i, err)
		}
		if !prime {
			t.Errorf("Result %d: emitted composite %v", i, result.Prime)
		}
	}
}

// A 32-bit search for a single prime emits exactly one result.
func TestSearch_SingleResult(t *testing.T) {
	t.Parallel()
	config := SearchConfig{BitLength: 32, TargetCount: 1}
	report, err := NewSearcher().Search(context.Background(), config)
	if err != nil {
		t.Errorf("Search returned an error: %v", err)
	}
	verifyReport(t, report, config)
}

// A 64-bit search for five primes emits sequence numbers 1..5 in order, and
// nothing after the fifth.
func TestSearch_FiveResults(t *testing.T) {
	t.Parallel()
	config := SearchConfig{BitLength: 64, TargetCount: 5}
	report, err := NewSearcher().Search(context.Background(), config)
	if err != nil {
		t.Errorf("Search returned an error: %v", err)
	}
	verifyReport(t, report, config)
	if report.Elapsed <= 0 {
		t.Errorf("Expected a positive elapsed duration, got %v", report.Elapsed)
	}
}

// The exact-count guarantee must hold whatever the pool size.
func TestSearch_WorkerCounts(t *testing.T) {
	for _, workers := range []int{1, 2, 8, 32} {
		workers := workers
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			config := SearchConfig{BitLength: 64, TargetCount: 3}
			report, err := NewSearcher(WithWorkers(workers)).Search(context.Background(), config)
			if err != nil {
				t.Errorf("Search returned an error: %v", err)
			}
			verifyReport(t, report, config)
		})
	}
}

// The handler observes every confirmed prime, in emission order, before
// Search returns.
func TestSearch_Handler(t *testing.T) {
	t.Parallel()
	var seen []PrimeResult
	searcher := NewSearcher(WithHandler(func(result PrimeResult) {
		seen = append(seen, result)
	}))
	config := SearchConfig{BitLength: 64, TargetCount: 4}
	report, err := searcher.Search(context.Background(), config)
	if err != nil {
		t.Errorf("Search returned an error: %v", err)
	}
	if len(seen) != len(report.Primes) {
		t.Fatalf("Handler observed %d results, report has %d", len(seen), len(report.Primes))
	}
	for i, result := range seen {
		if result.SequenceNumber != report.Primes[i].SequenceNumber {
			t.Errorf("Handler result %d: sequence %d does not match report %d", i, result.SequenceNumber, report.Primes[i].SequenceNumber)
		}
		if result.Prime.Cmp(report.Primes[i].Prime) != 0 {
			t.Errorf("Handler result %d: prime does not match report", i)
		}
	}
}

// Invalid configurations are rejected up front rather than silently searched.
func TestSearch_InvalidConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		config   SearchConfig
		expected error
	}{
		{"zero bit length", SearchConfig{BitLength: 0, TargetCount: 1}, ErrInvalidBitLength},
		{"below minimum", SearchConfig{BitLength: 24, TargetCount: 1}, ErrInvalidBitLength},
		{"not a multiple of 8", SearchConfig{BitLength: 36, TargetCount: 1}, ErrInvalidBitLength},
		{"zero count", SearchConfig{BitLength: 64, TargetCount: 0}, ErrInvalidTargetCount},
		{"negative count", SearchConfig{BitLength: 64, TargetCount: -5}, ErrInvalidTargetCount},
		{"negative rounds", SearchConfig{BitLength: 64, TargetCount: 1, WitnessRounds: -1}, ErrInvalidWitnessRounds},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSearcher().Search(context.Background(), tt.config); !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}

// Cancelling the context abandons the search with the context error.
func TestSearch_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSearcher().Search(ctx, SearchConfig{BitLength: 64, TargetCount: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// A failing entropy source surfaces as an error from Search.
func TestSearch_SourceError(t *testing.T) {
	t.Parallel()
	searcher := NewSearcher(WithRandom(errReader{}), WithWorkers(1))
	if _, err := searcher.Search(context.Background(), SearchConfig{BitLength: 64, TargetCount: 1}); err == nil {
		t.Error("Expected an error from a failing source, got nil")
	}
}

func BenchmarkSearch(b *testing.B) {
	for _, bits := range []int{32, 64, 128} {
		config := SearchConfig{BitLength: bits, TargetCount: 1}
		b.Run(fmt.Sprintf("bits=%d", bits), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := NewSearcher().Search(context.Background(), config); err != nil {
					b.Fatalf("Search returned an error: %v", err)
				}
			}
		})
	}
}
