package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/zerologr"
	"github.com/memes/dhprime"
	"github.com/memes/dhprime/pkg/search"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName                       = "dhprime"
	PackageName                   = "github.com/memes/dhprime/cmd/dhprime"
	DefaultOTLPTraceSamplingRatio = 0.5
	VerboseFlagName               = "verbose"
	PrettyFlagName                = "pretty"
	IterationsFlagName            = "iterations"
	OpenTelemetryTargetFlagName   = "otlp-target"
	InsecureFlagName              = "otlp-insecure"
	AuthorityFlagName             = "otlp-authority"
	SamplingRatioFlagName         = "otlp-sampling-ratio"
	CACertFlagName                = "cacert"
	TLSCertFlagName               = "cert"
	TLSKeyFlagName                = "key"
)

// Version is updated from git tags during build.
var version = "unspecified"

func NewRootCmd() (*cobra.Command, error) {
	cobra.OnInitialize(initConfig)
	rootCmd := &cobra.Command{
		Use:     AppName,
		Version: version,
		Short:   "Test arbitrary-precision integers for primality",
		Long: `Decides whether large integers are probably prime using Miller-Rabin and an exact perfect square check.

Commands can test values locally, search for random or safe primes suitable for Diffie-Hellman moduli, or run and query a gRPC/REST primality service.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().CountP(VerboseFlagName, "v", "Enable verbose logging; can be repeated to increase verbosity")
	rootCmd.PersistentFlags().BoolP(PrettyFlagName, "p", false, "Disables structured JSON logging to stdout, making it easier to read")
	rootCmd.PersistentFlags().IntP(IterationsFlagName, "i", dhprime.DefaultIterations, "The number of Miller-Rabin rounds to use; values less than 1 use the default")
	rootCmd.PersistentFlags().String(OpenTelemetryTargetFlagName, "", "An optional OpenTelemetry collection target that will receive metrics and traces")
	rootCmd.PersistentFlags().Bool(InsecureFlagName, false, "Disable TLS for the OpenTelemetry target")
	rootCmd.PersistentFlags().String(AuthorityFlagName, "", "Set the authoritative name of the OpenTelemetry target for TLS verification, overriding hostname")
	rootCmd.PersistentFlags().Float64(SamplingRatioFlagName, DefaultOTLPTraceSamplingRatio, "Set the OpenTelemetry trace sampling ratio")
	rootCmd.PersistentFlags().StringArray(CACertFlagName, nil, "An optional CA certificate to use for remote TLS verification; can be repeated")
	rootCmd.PersistentFlags().String(TLSCertFlagName, "", "An optional TLS certificate to use")
	rootCmd.PersistentFlags().String(TLSKeyFlagName, "", "An optional TLS private key to use")
	if err := bindFlags(rootCmd.PersistentFlags().Lookup,
		VerboseFlagName,
		PrettyFlagName,
		IterationsFlagName,
		OpenTelemetryTargetFlagName,
		InsecureFlagName,
		AuthorityFlagName,
		SamplingRatioFlagName,
		CACertFlagName,
		TLSCertFlagName,
		TLSKeyFlagName,
	); err != nil {
		return nil, err
	}
	serverCmd, err := NewServerCmd()
	if err != nil {
		return nil, err
	}
	rootCmd.AddCommand(
		NewCheckCmd(),
		NewJacobiCmd(),
		NewSearchCmd(),
		serverCmd,
		NewClientCmd(),
	)
	return rootCmd, nil
}

// Bind the named flags to viper keys of the same name. Sub-commands that share
// a flag name call this from PreRunE so the executing command's flag wins.
func bindFlags(lookup func(string) *pflag.Flag, names ...string) error {
	for _, name := range names {
		if err := viper.BindPFlag(name, lookup(name)); err != nil {
			return fmt.Errorf("failed to bind %s pflag: %w", name, err)
		}
	}
	return nil
}

// Returns a PreRunE function that binds the command's local flags.
func bindLocalFlags(names ...string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd.Flags().Lookup, names...)
	}
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
	dhprime.SetLogger(logger)
	search.SetLogger(logger)
	if err == nil {
		return
	}
	var cfgNotFound viper.ConfigFileNotFoundError
	if !errors.As(err, &cfgNotFound) {
		logger.Error(err, "Error reading configuration file")
	}
}
