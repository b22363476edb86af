// Package server implements an HTTP JSON service that exposes the prime
// search engine, with optional OpenTelemetry metrics and traces.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/memes/primegen"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	// The default name to use when using OpenTelemetry components.
	OpenTelemetryPackageIdentifier = "pkg.server"
	// The largest candidate width the service will search for; wider
	// requests are rejected rather than allowed to monopolize the worker
	// pool.
	DefaultMaxBitLength = 4096
	// The largest number of primes a single request may ask for.
	MaxTargetCount = 100
)

var (
	ErrBitLengthTooLarge = fmt.Errorf("bit length is too large, must be <= %d", DefaultMaxBitLength)
	ErrCountTooLarge     = fmt.Errorf("count is too large, must be <= %d", MaxTargetCount)
)

// Metadata describes the service instance answering a request; it is echoed
// in every response so that load-balanced deployments can be told apart.
type Metadata struct {
	Identity    string            `json:"identity,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// PrimeValue is a single discovered prime. The value is rendered as a decimal
// string because arbitrary-precision integers do not survive JSON numbers.
type PrimeValue struct {
	Sequence int    `json:"sequence"`
	Value    string `json:"value"`
}

// SearchResponse is the JSON body returned for a successful search.
type SearchResponse struct {
	BitLength  int          `json:"bitLength"`
	Count      int          `json:"count"`
	Primes     []PrimeValue `json:"primes"`
	DurationMs int64        `json:"durationMs"`
	Metadata   *Metadata    `json:"metadata,omitempty"`
}

// ErrorResponse is the JSON body returned for a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type PrimeServer struct {
	// The logr.Logger implementation to use
	logger logr.Logger
	// The search engine answering requests
	searcher *primegen.Searcher
	// Holds the instance specific metadata that will be returned in responses
	metadata *Metadata
	// The widest candidate accepted by this instance
	maxBitLength int
	// A histogram for search durations
	searchMs metric.Int64Histogram
	// A counter for searches that returned an error
	searchErrors metric.Int64Counter
	// A counter for primes found on behalf of clients
	primesFound metric.Int64Counter
}

// Defines the function signature for PrimeServer options.
type PrimeServerOption func(*PrimeServer)

// Create a new PrimeServer and apply any options.
func NewPrimeServer(options ...PrimeServerOption) (*PrimeServer, error) {
	var hostname string
	if host, err := os.Hostname(); err == nil {
		hostname = host
	} else {
		hostname = "unknown"
	}
	server := &PrimeServer{
		logger:   logr.Discard(),
		searcher: primegen.NewSearcher(),
		metadata: &Metadata{
			Identity:    hostname,
			Tags:        []string{},
			Annotations: map[string]string{},
		},
		maxBitLength: DefaultMaxBitLength,
	}
	for _, option := range options {
		option(server)
	}
	var err error
	server.searchMs, err = otel.Meter(OpenTelemetryPackageIdentifier).Int64Histogram(
		OpenTelemetryPackageIdentifier+".search_duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of prime searches"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating searchMs Histogram: %w", err)
	}
	server.searchErrors, err = otel.Meter(OpenTelemetryPackageIdentifier).Int64Counter(
		OpenTelemetryPackageIdentifier+".search_errors",
		metric.WithDescription("The count of searches that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating searchErrors Counter: %w", err)
	}
	server.primesFound, err = otel.Meter(OpenTelemetryPackageIdentifier).Int64Counter(
		OpenTelemetryPackageIdentifier+".primes_found",
		metric.WithDescription("The count of probable primes found for clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating primesFound Counter: %w", err)
	}
	return server, nil
}

// Use the supplied logger for the server and primegen packages.
func WithLogger(logger logr.Logger) PrimeServerOption {
	return func(s *PrimeServer) {
		s.logger = logger
		primegen.Logger = logger
	}
}

// Use the supplied Searcher instead of a default instance.
func WithSearcher(searcher *primegen.Searcher) PrimeServerOption {
	return func(s *PrimeServer) {
		if searcher != nil {
			s.searcher = searcher
		}
	}
}

// Add the string tags to the server's metadata.
func WithTags(tags []string) PrimeServerOption {
	return func(s *PrimeServer) {
		if tags != nil {
			s.metadata.Tags = append(s.metadata.Tags, tags...)
		}
	}
}

// Add the key-value annotations to the server's metadata.
func WithAnnotations(annotations map[string]string) PrimeServerOption {
	return func(s *PrimeServer) {
		for k, v := range annotations {
			s.metadata.Annotations[k] = v
		}
	}
}

// Set the widest candidate this instance will search for.
func WithMaxBitLength(maxBitLength int) PrimeServerOption {
	return func(s *PrimeServer) {
		if maxBitLength >= primegen.MinBitLength {
			s.maxBitLength = maxBitLength
		}
	}
}

// NewHandler returns the http.Handler for the service: the search endpoint at
// /api/v1/primes/{bits}, a health check at /healthz, and OpenTelemetry HTTP
// instrumentation around both.
func (s *PrimeServer) NewHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	if err := mux.HandlePath("GET", "/api/v1/primes/{bits}", s.searchHandler); err != nil {
		return nil, fmt.Errorf("failed to register /api/v1/primes handler: %w", err)
	}
	if err := mux.HandlePath("GET", "/healthz",
		func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
			fmt.Fprint(w, "OK")
		},
	); err != nil {
		return nil, fmt.Errorf("failed to register /healthz handler: %w", err)
	}
	return otelhttp.NewHandler(mux,
		OpenTelemetryPackageIdentifier+"/Handler",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	), nil
}

// searchHandler implements GET /api/v1/primes/{bits}?count=N&rounds=K.
func (s *PrimeServer) searchHandler(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	logger := s.logger.WithValues("bits", pathParams["bits"])
	logger.Info("searchHandler: enter")
	config, err := s.parseSearchRequest(r, pathParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	attributes := []attribute.KeyValue{
		attribute.Int(OpenTelemetryPackageIdentifier+".bit_length", config.BitLength),
		attribute.Int(OpenTelemetryPackageIdentifier+".target_count", config.TargetCount),
	}
	ctx, span := otel.Tracer(OpenTelemetryPackageIdentifier).Start(r.Context(), OpenTelemetryPackageIdentifier+"/Search")
	defer span.End()
	span.SetAttributes(attributes...)
	ts := time.Now()
	report, err := s.searcher.Search(ctx, config)
	s.searchMs.Record(ctx, time.Since(ts).Milliseconds(), metric.WithAttributes(attributes...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.searchErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
		status := http.StatusInternalServerError
		if errors.Is(err, primegen.ErrInvalidBitLength) || errors.Is(err, primegen.ErrInvalidTargetCount) || errors.Is(err, primegen.ErrInvalidWitnessRounds) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	s.primesFound.Add(ctx, int64(len(report.Primes)), metric.WithAttributes(attributes...))
	response := SearchResponse{
		BitLength:  config.BitLength,
		Count:      len(report.Primes),
		Primes:     make([]PrimeValue, 0, len(report.Primes)),
		DurationMs: report.Elapsed.Milliseconds(),
		Metadata:   s.metadata,
	}
	for _, result := range report.Primes {
		response.Primes = append(response.Primes, PrimeValue{
			Sequence: result.SequenceNumber,
			Value:    result.Prime.String(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error(err, "Writing search response raised an error; continuing")
	}
	logger.Info("searchHandler: exit", "count", response.Count, "durationMs", response.DurationMs)
}

// parseSearchRequest builds a SearchConfig from the path and query
// parameters, applying the server's own bounds on top of the engine's
// validation.
func (s *PrimeServer) parseSearchRequest(r *http.Request, pathParams map[string]string) (primegen.SearchConfig, error) {
	var config primegen.SearchConfig
	bits, err := strconv.Atoi(pathParams["bits"])
	if err != nil {
		return config, fmt.Errorf("failed to parse bits path parameter: %w", err)
	}
	if bits > s.maxBitLength {
		return config, ErrBitLengthTooLarge
	}
	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		if count, err = strconv.Atoi(raw); err != nil {
			return config, fmt.Errorf("failed to parse count query parameter: %w", err)
		}
	}
	if count > MaxTargetCount {
		return config, ErrCountTooLarge
	}
	rounds := 0
	if raw := r.URL.Query().Get("rounds"); raw != "" {
		if rounds, err = strconv.Atoi(raw); err != nil {
			return config, fmt.Errorf("failed to parse rounds query parameter: %w", err)
		}
	}
	config = primegen.SearchConfig{
		BitLength:     bits,
		TargetCount:   count,
		WitnessRounds: rounds,
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// writeError sends a JSON error body with the given HTTP status.
func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}
