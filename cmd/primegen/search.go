package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/memes/primegen"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	SearchServiceName = "search"
	RoundsFlagName    = "rounds"
	WorkersFlagName   = "workers"
)

// Implements the search sub-command which runs the concurrent prime search
// locally and prints each probable prime as it is confirmed.
func NewSearchCmd() (*cobra.Command, error) {
	searchCmd := &cobra.Command{
		Use:   SearchServiceName + " bits [count]",
		Short: "Find random probable primes of the given bit width",
		Long: `Runs the concurrent prime search on this machine.

The bits argument is the candidate width in bits and must be a multiple of 8 that is at least 32. The optional count argument is the number of primes to find, default 1. Because candidates are sampled without forcing the top bit, the discovered primes can be slightly narrower than requested. Metrics and traces will be sent to an OpenTelemetry collection endpoint, if specified.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: searchMain,
	}
	searchCmd.PersistentFlags().IntP(RoundsFlagName, "r", primegen.DefaultWitnessRounds, "The number of Miller-Rabin witness rounds per candidate")
	searchCmd.PersistentFlags().IntP(WorkersFlagName, "w", 0, "The number of concurrent workers; default is the number of CPUs")
	if err := viper.BindPFlag(RoundsFlagName, searchCmd.PersistentFlags().Lookup(RoundsFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", RoundsFlagName, err)
	}
	if err := viper.BindPFlag(WorkersFlagName, searchCmd.PersistentFlags().Lookup(WorkersFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", WorkersFlagName, err)
	}
	return searchCmd, nil
}

// parseSearchArgs validates the positional arguments; the engine assumes its
// configuration has been vetted here.
func parseSearchArgs(args []string) (primegen.SearchConfig, error) {
	var config primegen.SearchConfig
	bits, err := strconv.Atoi(args[0])
	if err != nil {
		return config, fmt.Errorf("failed to parse bits argument %q: %w", args[0], err)
	}
	if bits < primegen.MinBitLength || bits%8 != 0 {
		return config, fmt.Errorf("bits argument must be a multiple of 8 and at least %d, got %d: %w", primegen.MinBitLength, bits, primegen.ErrInvalidBitLength)
	}
	count := 1
	if len(args) > 1 {
		if count, err = strconv.Atoi(args[1]); err != nil {
			return config, fmt.Errorf("failed to parse count argument %q: %w", args[1], err)
		}
		if count < 1 {
			return config, fmt.Errorf("count argument must be at least 1, got %d: %w", count, primegen.ErrInvalidTargetCount)
		}
	}
	config = primegen.SearchConfig{
		BitLength:     bits,
		TargetCount:   count,
		WitnessRounds: viper.GetInt(RoundsFlagName),
	}
	return config, nil
}

// Search sub-command entrypoint.
func searchMain(cmd *cobra.Command, args []string) error {
	config, err := parseSearchArgs(args)
	if err != nil {
		return err
	}
	logger := logger.V(1).WithValues("bits", config.BitLength, "count", config.TargetCount, "rounds", config.WitnessRounds)
	ctx := context.Background()
	logger.V(0).Info("Preparing telemetry")
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(viper.GetFloat64(OpenTelemetrySamplingRatioFlagName)))
	shutdown, err := initTelemetry(ctx, SearchServiceName, sampler)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	logger.V(0).Info("Starting search")
	primegen.Logger = logger
	searcher := primegen.NewSearcher(
		primegen.WithWorkers(viper.GetInt(WorkersFlagName)),
		primegen.WithHandler(func(result primegen.PrimeResult) {
			fmt.Printf("%d: %s\n", result.SequenceNumber, result.Prime) //nolint:forbidigo // This is a deliberate choice
		}),
	)
	report, err := searcher.Search(ctx, config)
	if err != nil {
		return fmt.Errorf("prime search failed: %w", err)
	}
	fmt.Printf("Found %d probable prime(s) in %s\n", len(report.Primes), report.Elapsed) //nolint:forbidigo // This is a deliberate choice
	return nil
}
