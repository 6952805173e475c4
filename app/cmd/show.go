package cmd

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showAsYaml bool

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
	showConfigCmd.Flags().BoolVar(&showAsYaml, "yaml", false, "Render as YAML instead of JSON")
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show information",
	Long:  `Sometimes you just need to know more`,
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config",
	Long:  `Renders the config that we end up using`,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := renderConfig(showAsYaml)
		if err != nil {
			log.Fatal().Err(err).Msg("Error rendering config")
		} else {
			log.Info().Msg(out)
		}
	},
}

func renderConfig(asYaml bool) (string, error) {
	if asYaml {
		out, err := yaml.Marshal(&appConfig)
		return string(out), err
	}
	out, err := json.MarshalIndent(&appConfig, "", "  ")
	return string(out), err
}
