package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memes/primegen"
	"github.com/memes/primegen/pkg/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	ServerServiceName       = "server"
	DefaultListenAddress    = ":8080"
	DefaultMaxConnections   = 64
	AddressFlagName         = "address"
	MaxConnectionsFlagName  = "max-connections"
	LabelFlagName           = "label"
	MaxBitLengthFlagName    = "max-bits"
	ServerShutdownGraceTime = 30 * time.Second
)

// Implements the server sub-command.
func NewServerCmd() (*cobra.Command, error) {
	serverCmd := &cobra.Command{
		Use:   ServerServiceName,
		Short: "Run an HTTP service to find random probable primes",
		Long: `Launches an HTTP JSON service that runs concurrent prime searches on behalf of clients.

Each request names a candidate bit width and an optional count of primes to find. Metrics and traces will be sent to an OpenTelemetry collection endpoint, if specified.`,
		RunE: serverMain,
	}
	serverCmd.PersistentFlags().StringP(AddressFlagName, "a", DefaultListenAddress, "Address to listen for HTTP prime search requests")
	serverCmd.PersistentFlags().Int(MaxConnectionsFlagName, DefaultMaxConnections, "The maximum number of simultaneous HTTP connections to accept")
	serverCmd.PersistentFlags().StringToStringP(LabelFlagName, "l", nil, "An optional label key=value to add to response metadata; can be repeated")
	serverCmd.PersistentFlags().Int(MaxBitLengthFlagName, server.DefaultMaxBitLength, "The widest candidate bit length the service will accept")
	if err := viper.BindPFlag(AddressFlagName, serverCmd.PersistentFlags().Lookup(AddressFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", AddressFlagName, err)
	}
	if err := viper.BindPFlag(MaxConnectionsFlagName, serverCmd.PersistentFlags().Lookup(MaxConnectionsFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", MaxConnectionsFlagName, err)
	}
	if err := viper.BindPFlag(LabelFlagName, serverCmd.PersistentFlags().Lookup(LabelFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", LabelFlagName, err)
	}
	if err := viper.BindPFlag(MaxBitLengthFlagName, serverCmd.PersistentFlags().Lookup(MaxBitLengthFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", MaxBitLengthFlagName, err)
	}
	return serverCmd, nil
}

// Server sub-command entrypoint. This function will launch the HTTP prime
// search service and block until it is signalled to stop.
func serverMain(cmd *cobra.Command, args []string) error {
	address := viper.GetString(AddressFlagName)
	maxConnections := viper.GetInt(MaxConnectionsFlagName)
	logger := logger.V(1).WithValues(AddressFlagName, address, MaxConnectionsFlagName, maxConnections)
	ctx := context.Background()
	logger.V(0).Info("Preparing telemetry")
	shutdownTelemetry, err := initTelemetry(ctx, ServerServiceName, sdktrace.AlwaysSample())
	if err != nil {
		return err
	}

	logger.V(0).Info("Preparing services")
	primeServer, err := server.NewPrimeServer(
		server.WithLogger(logger),
		server.WithAnnotations(viper.GetStringMapString(LabelFlagName)),
		server.WithMaxBitLength(viper.GetInt(MaxBitLengthFlagName)),
		server.WithSearcher(primegen.NewSearcher()),
	)
	if err != nil {
		return fmt.Errorf("failed to create prime server: %w", err)
	}
	handler, err := primeServer.NewHandler()
	if err != nil {
		return err
	}
	tlsConf, err := newTLSConfig(viper.GetString(TLSCertFlagName), viper.GetString(TLSKeyFlagName), nil, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	httpServer := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.V(0).Info("Starting HTTP service")
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to start HTTP listener: %w", err)
		}
		if maxConnections > 0 {
			listener = netutil.LimitListener(listener, maxConnections)
		}
		if len(tlsConf.Certificates) > 0 {
			httpServer.TLSConfig = tlsConf
			err = httpServer.ServeTLS(listener, "", "")
		} else {
			err = httpServer.Serve(listener)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("httpServer listener returned an error: %w", err)
		}
		return nil
	})

	select {
	case <-interrupt:
		break
	case <-ctx.Done():
		break
	}
	logger.V(0).Info("Shutting down on signal")
	cancel()
	shutdownCtx, shutdown := context.WithTimeout(context.Background(), ServerShutdownGraceTime)
	defer shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Failed to shutdown HTTP service cleanly")
	}
	shutdownTelemetry(shutdownCtx)
	return g.Wait() //nolint:wrapcheck
}
