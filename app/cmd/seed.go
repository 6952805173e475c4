package cmd

import (
	"context"
	"encoding/json"
	"io/ioutil"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/reqindex/internal/domain/metadata"
	"github.com/lloydmeta/reqindex/internal/domain/request"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
)

var (
	seedTenant string
	seedFile   string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed requests",
	Long:  "Creates the requests found in a JSON file (a single request document or an array of them) in the storage of a tenant",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		tenantId, err := tenant.IdFromString(seedTenant)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid tenant")
		}
		data, err := ioutil.ReadFile(seedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", seedFile).Msg("Could not read seed file")
		}
		requests, err := parseSeed(data)
		if err != nil {
			log.Fatal().Err(err).Str("file", seedFile).Msg("Could not parse seed file")
		}

		storage := buildStorage()
		defer func() {
			if err := storage.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close storage")
			}
		}()
		if err := storage.Setup.Check(ctx); err != nil {
			log.Fatal().Err(err).Msg("Storage is not set up")
		}
		service, err := storage.Requests.Get(*tenantId)
		if err != nil {
			log.Fatal().Err(err).Msg("Tenant is not configured")
		}

		for i := range requests {
			created, err := service.Create(ctx, &requests[i])
			if err != nil {
				log.Error().Err(err).Str("request_id", string(requests[i].ID)).Msg("Failed to create request")
				continue
			}
			log.Info().
				Str("request_id", string(created.ID)).
				Str("item_id", string(created.ItemID)).
				Msg("Created request")
		}
	},
}

// parseSeed reads either one request document or an array of them
func parseSeed(data []byte) ([]request.Request, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		docs = []json.RawMessage{data}
	}
	requests := make([]request.Request, 0, len(docs))
	for _, doc := range docs {
		r, err := request.UnmarshalDocument(doc, metadata.Version{})
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, nil
}

func init() {
	seedCmd.Flags().StringVar(&seedTenant, "tenant", "", "Tenant to create the requests for")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "JSON file holding the request documents")
	_ = seedCmd.MarkFlagRequired("tenant")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}
