package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"vagueness/config"
	"vagueness/logging"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vagueness",
	Short: "Find vague language in technical documents",
	Long: `Flags vague phrases in tenders and specifications and suggests precise
rewrites grounded in an indexed corpus of standards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
		return nil
	},
}

func init() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal("Error loading .env file: ", err)
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
