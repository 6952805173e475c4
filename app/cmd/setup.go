package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	"github.com/lloydmeta/reqindex/internal/infra/server"
)

var checkOnly bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run reqindex setup",
	Long:  "Prepares request storage for the configured tenants: the requests index template on Elasticsearch, or the per-tenant tables on SQLite",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		storage := buildStorage()
		defer func() {
			if err := storage.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close storage")
			}
		}()

		if checkOnly {
			if err := storage.Setup.Check(ctx); err != nil {
				log.Fatal().Err(err).Msg("Setup incomplete")
			}
			log.Info().Msg("Setup is complete")
			return
		}
		log.Info().Str("backend", string(appConfig.Storage.Backend)).Msg("Setting up storage")
		if err := storage.Setup.RunIfNeeded(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to set up storage")
		}
	},
}

func buildStorage() *server.Storage {
	tenants, err := tenant.IdsFromStrings(appConfig.Tenants)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tenants configured")
	}
	storage, err := server.NewStorage(&appConfig, tenants)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not build storage")
	}
	return storage
}

func init() {
	setupCmd.Flags().BoolVar(&checkOnly, "check", false, "Only check whether setup has been done")
	rootCmd.AddCommand(setupCmd)
}
