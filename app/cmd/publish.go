package cmd

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/reqindex/internal/domain/event"
	"github.com/lloydmeta/reqindex/internal/infra/kafka"
)

var (
	publishTenant  string
	publishFile    string
	publishTimeout time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an item notification",
	Long:  "Reads an item notification envelope from a file and publishes it on the item topic of its tenant. Handy for smoke testing a deployment.",
	Run: func(cmd *cobra.Command, args []string) {
		body, err := ioutil.ReadFile(publishFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", publishFile).Msg("Could not read notification file")
		}
		headers := map[string]string{}
		if len(publishTenant) > 0 {
			headers[event.TenantHeader] = publishTenant
		}
		// What cannot be decoded would only be discarded on the other end
		notification, err := event.Decode(body, headers)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid notification")
		}

		publisher := kafka.NewPublisher(appConfig)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close publisher")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		topic, err := publisher.Publish(ctx, notification)
		if err != nil {
			log.Fatal().Err(err).Str("topic", topic).Msg("Failed to publish")
		}
		log.Info().
			Str("topic", topic).
			Str("tenant", string(notification.Tenant)).
			Str("item_id", string(notification.ItemId())).
			Msg("Published")
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishTenant, "tenant", "", "Tenant to publish for, when the envelope does not name one")
	publishCmd.Flags().StringVarP(&publishFile, "file", "f", "", "JSON file holding the notification envelope")
	publishCmd.Flags().DurationVar(&publishTimeout, "timeout", 10*time.Second, "How long to wait for the broker to acknowledge")
	_ = publishCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(publishCmd)
}
