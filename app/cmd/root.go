package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.elastic.co/apm"
	"go.elastic.co/apm/transport"

	"github.com/lloydmeta/reqindex/internal/config"
	"github.com/lloydmeta/reqindex/internal/infra/server"
	workerconfig "github.com/lloydmeta/reqindex/worker/config"
)

var (
	configFile string
	workerId   workerconfig.WorkerId
	appConfig  config.App
	logFile    *os.File

	defaultConfigPaths = []string{
		".",
		"./config",
		"/app/config",
	}
	rootCmd = &cobra.Command{
		Use:   "reqindex",
		Short: "reqindex keeps request search indices in sync with items.",
		Long:  `reqindex consumes inventory item updates and rewrites the search index of every circulation request that references the item`,
		Run: func(cmd *cobra.Command, args []string) {
			components, err := server.NewComponents(&appConfig)
			if err != nil {
				log.Fatal().Err(err).Send()
			} else {
				components.Run()
			}
		},
	}
)

// Executes the root command, which is to run the synchronizer
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Send()
		closeLogFile()
	}
	defer closeLogFile()
}

func init() {
	cobra.OnInitialize(initConfig, configureLogging, configureApm)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (by default, looks in [%v] for 'reqindex.yaml')", defaultConfigPaths))
	rootCmd.PersistentFlags().Var(&workerId, "worker-id", "What to use as the worker id (client id towards Kafka)")
}

// initConfig reads the application config and sets it globally
func initConfig() {
	viper.AllowEmptyEnv(true)
	if configFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("reqindex")
		for _, p := range defaultConfigPaths {
			viper.AddConfigPath(p)
		}
	}

	// Bind the config value to the flag
	_ = viper.BindPFlag("reqindex.sync.worker.id", rootCmd.PersistentFlags().Lookup("worker-id"))

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Info().Msgf("Using config file: %v", viper.ConfigFileUsed())
	} else {
		log.Fatal().Err(err).Msg("Failed to read the config file")
	}

	// Unmarshal it, UnmarshalKey doesn't play well with Env vars, hence
	// the top level wrapping in order to do namespacing in the config file
	var t config.TopLevel
	err := viper.Unmarshal(&t)

	if err != nil {
		log.Error().Err(err).Send()
		closeLogFile()
		os.Exit(1)
	}
	appConfig = t.Reqindex.Sync

	if err := appConfig.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid config")
		closeLogFile()
		os.Exit(1)
	}
}

// configureLogging points the global logger at the configured output and level. Every line
// carries the module and environment it was written by.
func configureLogging() {
	settings := loggingSettingsFrom(appConfig.Logging)
	var writeTo io.Writer = os.Stderr
	if settings.file != nil {
		f, err := os.OpenFile(*settings.file, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal().Err(err).Str("file", *settings.file).Msg("Failed to open log file for writing.")
		}
		logFile = f
		writeTo = f
	}
	if !settings.json {
		writeTo = zerolog.ConsoleWriter{Out: writeTo}
	}
	log.Logger = withDefaultFields(zerolog.New(writeTo).With().Timestamp().Logger(), appConfig)
	zerolog.SetGlobalLevel(settings.level)
}

type loggingSettings struct {
	json  bool
	file  *string
	level zerolog.Level
}

func loggingSettingsFrom(conf *config.Logging) loggingSettings {
	settings := loggingSettings{level: zerolog.InfoLevel}
	if conf == nil {
		return settings
	}
	if conf.Json != nil {
		settings.json = *conf.Json
	}
	settings.file = conf.File
	if conf.Level != nil {
		if parsed, err := zerolog.ParseLevel(*conf.Level); err != nil {
			log.Warn().
				Str("configured_level", *conf.Level).
				Str("will_use_level", settings.level.String()).
				Msg("Invalid level configured, ignoring")
		} else {
			settings.level = parsed
		}
	}
	return settings
}

func withDefaultFields(logger zerolog.Logger, conf config.App) zerolog.Logger {
	ctx := logger.With()
	if len(conf.Module.Name) > 0 {
		ctx = ctx.Str("module", conf.Module.Name)
	}
	if len(conf.Module.Version) > 0 {
		ctx = ctx.Str("module_version", conf.Module.Version)
	}
	if len(conf.Environment) > 0 {
		ctx = ctx.Str("environment", conf.Environment)
	}
	return ctx.Logger()
}

func closeLogFile() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// configureApm exports the APM agent's env vars and re-creates the global tracer from them.
// Env vars already set win over the module defaults but not over the config file.
func configureApm() {
	for k, v := range apmEnv(appConfig) {
		if err := os.Setenv(k, v); err != nil {
			log.Fatal().Err(err).Str("env_var", k).Send()
		}
	}
	apmTransport, err := transport.NewHTTPTransport()
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	tracer, err := apm.NewTracerOptions(apm.TracerOptions{Transport: apmTransport})
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	apm.DefaultTracer.Close()
	apm.DefaultTracer = tracer
}

// apmEnv returns the APM env vars to set
func apmEnv(conf config.App) map[string]string {
	env := map[string]string{}
	defaults := map[string]string{
		"ELASTIC_APM_SERVICE_NAME":    "reqindex",
		"ELASTIC_APM_SERVICE_VERSION": conf.Module.Version,
		"ELASTIC_APM_ENVIRONMENT":     conf.Environment,
	}
	for k, v := range defaults {
		if len(v) > 0 && len(os.Getenv(k)) == 0 {
			env[k] = v
		}
	}
	if conf.ApmClient != nil {
		log.Info().Interface("apm_conf", *conf.ApmClient).Msg("Configuring APM based on config file values")
		if conf.ApmClient.Address != nil {
			env["ELASTIC_APM_SERVER_URL"] = *conf.ApmClient.Address
		}
		if conf.ApmClient.SecretToken != nil {
			env["ELASTIC_APM_SECRET_TOKEN"] = *conf.ApmClient.SecretToken
		}
	}
	return env
}
