package primegen

import (
	"context"
	"crypto/rand"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Searcher coordinates a pool of workers that sample, filter, and test
// candidates until the configured number of probable primes has been found.
type Searcher struct {
	// The source of candidate and witness bytes. The default, crypto/rand
	// Reader, is safe for concurrent use; a replacement must be too, or the
	// Searcher must be restricted to a single worker.
	random io.Reader
	// The number of concurrent workers.
	workers int
	// An optional callback invoked as each prime is confirmed, in sequence
	// order, before Search returns. The callback runs inside the emission
	// critical section and should be brief.
	handler func(PrimeResult)
}

// SearcherOption defines the function signature for Searcher options.
type SearcherOption func(*Searcher)

// NewSearcher creates a Searcher with a crypto/rand source and one worker per
// available CPU, then applies any options.
func NewSearcher(options ...SearcherOption) *Searcher {
	searcher := &Searcher{
		random:  rand.Reader,
		workers: runtime.NumCPU(),
	}
	for _, option := range options {
		option(searcher)
	}
	return searcher
}

// WithRandom replaces the source of random bytes. The reader must be safe for
// concurrent use unless the worker count is 1.
func WithRandom(random io.Reader) SearcherOption {
	return func(s *Searcher) {
		if random != nil {
			s.random = random
		}
	}
}

// WithWorkers sets the worker pool size; values below 1 are ignored.
func WithWorkers(workers int) SearcherOption {
	return func(s *Searcher) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithHandler registers a callback that observes each confirmed prime as it
// is emitted.
func WithHandler(handler func(PrimeResult)) SearcherOption {
	return func(s *Searcher) {
		s.handler = handler
	}
}

// Search runs the worker pool until exactly config.TargetCount probable
// primes have been confirmed, and returns them numbered 1..TargetCount in
// discovery order along with the elapsed wall-clock time of the parallel
// phase. Cancelling ctx before the target is met abandons the search and
// returns the context error.
func (s *Searcher) Search(ctx context.Context, config SearchConfig) (*SearchReport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := Logger.V(1).WithValues("bitLength", config.BitLength, "targetCount", config.TargetCount, "workers", s.workers)
	logger.Info("Search: enter")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &SearchReport{
		Primes: make([]PrimeResult, 0, config.TargetCount),
	}
	// state guards the confirmed count, the emitted results, and the
	// decision to cancel; a single critical section keeps two workers from
	// racing to emit a result past the target.
	var state sync.Mutex
	sequence := 1
	start := time.Now()

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		group.Go(func() error {
			return s.runWorker(ctx, cancel, config, report, &state, &sequence, start)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	// Workers also drain on external cancellation; only a full report
	// counts as success.
	if len(report.Primes) < config.TargetCount {
		return nil, ctx.Err()
	}
	logger.Info("Search: exit", "elapsed", report.Elapsed)
	return report, nil
}

// runWorker loops {sample, filter, test} until cancellation. A confirmed
// prime is handed to the critical section for numbering and emission; a
// worker that confirms a prime after cancellation was signalled discards it
// silently.
func (s *Searcher) runWorker(ctx context.Context, cancel context.CancelFunc, config SearchConfig, report *SearchReport, state *sync.Mutex, sequence *int, start time.Time) error {
	rounds := config.rounds()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		candidate, err := RandomCandidate(s.random, config.BitLength)
		if err != nil {
			return err
		}
		prime, err := IsProbablyPrime(s.random, candidate, rounds)
		if err != nil {
			return err
		}
		if !prime {
			continue
		}
		state.Lock()
		if ctx.Err() != nil {
			state.Unlock()
			continue
		}
		result := PrimeResult{
			SequenceNumber: *sequence,
			Prime:          candidate,
		}
		report.Primes = append(report.Primes, result)
		if s.handler != nil {
			s.handler(result)
		}
		*sequence++
		if *sequence > config.TargetCount {
			report.Elapsed = time.Since(start)
			cancel()
		}
		state.Unlock()
	}
}

// FindPrimes is a convenience wrapper that runs a default Searcher for
// callers that do not need options.
func FindPrimes(ctx context.Context, config SearchConfig) (*SearchReport, error) {
	return NewSearcher().Search(ctx, config)
}
