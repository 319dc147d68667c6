package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

func main() {
	setupLogger(config.LogConfig{Level: "info"})

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		cfg        *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "pdf-rag",
		Short:         "Ask questions about your PDF documents",
		Long:          "Ingests PDFs into a vector store and answers questions over them with an OpenAI-compatible LLM, as an HTTP service or from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()

			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log)
			if err := cfg.Validate(); err != nil {
				log.Error().Err(err).Msg("Invalid config")
				return err
			}
			log.Debug().Str("path", configPath).Msg("Loaded config")
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configFilePath, "Path to the yaml config file")

	getConfig := func() *config.Config { return cfg }
	rootCmd.AddCommand(createServeCommand(getConfig))
	rootCmd.AddCommand(createIngestCommand(getConfig))
	rootCmd.AddCommand(createAskCommand(getConfig))
	rootCmd.AddCommand(createDocumentsCommand(getConfig))
	return rootCmd
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
