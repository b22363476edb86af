package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/zerologr"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	AppName                            = "primegen"
	PackageName                        = "github.com/memes/primegen/cmd/primegen"
	DefaultOTLPTraceSamplingRatio      = 0.5
	VerboseFlagName                    = "verbose"
	PrettyFlagName                     = "pretty"
	OpenTelemetryTargetFlagName        = "otlp-target"
	OpenTelemetrySamplingRatioFlagName = "otlp-sampling-ratio"
	InsecureFlagName                   = "otlp-insecure"
	CACertFlagName                     = "cacert"
	TLSCertFlagName                    = "cert"
	TLSKeyFlagName                     = "key"
)

// Version is updated from git tags during build.
var version = "unspecified"

func NewRootCmd() (*cobra.Command, error) {
	cobra.OnInitialize(initConfig)
	rootCmd := &cobra.Command{
		Use:     AppName,
		Version: version,
		Short:   "Find random probable primes of a requested bit width",
		Long:    `Provides a CLI and HTTP service demo for concurrent discovery of random probable primes using a Miller-Rabin witness loop.`,
	}
	rootCmd.PersistentFlags().CountP(VerboseFlagName, "v", "Enable verbose logging; can be repeated to increase verbosity")
	rootCmd.PersistentFlags().BoolP(PrettyFlagName, "p", false, "Disables structured JSON logging to stdout, making it easier to read")
	rootCmd.PersistentFlags().String(OpenTelemetryTargetFlagName, "", "An optional OpenTelemetry collection target that will receive metrics and traces")
	rootCmd.PersistentFlags().Float64(OpenTelemetrySamplingRatioFlagName, DefaultOTLPTraceSamplingRatio, "Set the OpenTelemetry trace sampling ratio")
	rootCmd.PersistentFlags().Bool(InsecureFlagName, false, "Disable remote TLS verification for OpenTelemetry target")
	rootCmd.PersistentFlags().StringArray(CACertFlagName, nil, "An optional CA certificate to use for remote TLS verification; can be repeated")
	rootCmd.PersistentFlags().String(TLSCertFlagName, "", "An optional TLS certificate to use")
	rootCmd.PersistentFlags().String(TLSKeyFlagName, "", "An optional TLS private key to use")
	if err := viper.BindPFlag(VerboseFlagName, rootCmd.PersistentFlags().Lookup(VerboseFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", VerboseFlagName, err)
	}
	if err := viper.BindPFlag(PrettyFlagName, rootCmd.PersistentFlags().Lookup(PrettyFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", PrettyFlagName, err)
	}
	if err := viper.BindPFlag(OpenTelemetryTargetFlagName, rootCmd.PersistentFlags().Lookup(OpenTelemetryTargetFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", OpenTelemetryTargetFlagName, err)
	}
	if err := viper.BindPFlag(OpenTelemetrySamplingRatioFlagName, rootCmd.PersistentFlags().Lookup(OpenTelemetrySamplingRatioFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", OpenTelemetrySamplingRatioFlagName, err)
	}
	if err := viper.BindPFlag(InsecureFlagName, rootCmd.PersistentFlags().Lookup(InsecureFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", InsecureFlagName, err)
	}
	if err := viper.BindPFlag(CACertFlagName, rootCmd.PersistentFlags().Lookup(CACertFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", CACertFlagName, err)
	}
	if err := viper.BindPFlag(TLSCertFlagName, rootCmd.PersistentFlags().Lookup(TLSCertFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", TLSCertFlagName, err)
	}
	if err := viper.BindPFlag(TLSKeyFlagName, rootCmd.PersistentFlags().Lookup(TLSKeyFlagName)); err != nil {
		return nil, fmt.Errorf("failed to bind %s pflag: %w", TLSKeyFlagName, err)
	}
	searchCmd, err := NewSearchCmd()
	if err != nil {
		return nil, err
	}
	serverCmd, err := NewServerCmd()
	if err != nil {
		return nil, err
	}
	rootCmd.AddCommand(searchCmd, serverCmd)
	return rootCmd, nil
}

// Determine the outcome of command line flags, environment variables, and an
// optional configuration file to perform initialization of the application. An
// appropriate zerolog will be assigned as the default logr sink.
func initConfig() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zl := zerolog.New(os.Stderr).With().Caller().Timestamp().Logger()
	viper.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetConfigName("." + AppName)
	viper.SetEnvPrefix(AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	verbosity := viper.GetInt(VerboseFlagName)
	switch {
	case verbosity > 2:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case verbosity == 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case verbosity == 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
	if viper.GetBool(PrettyFlagName) {
		zl = zl.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	logger = zerologr.New(&zl)
	if err == nil {
		return
	}
	var cfgNotFound viper.ConfigFileNotFoundError
	if !errors.As(err, &cfgNotFound) {
		logger.Error(err, "Error reading configuration file")
	}
}
