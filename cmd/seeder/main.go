package main

import (
	"flag"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/tksoft/bankgrow"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg bankgrow.Config
	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()
	cfgfl, err := os.Open(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error opening config file")
	}
	if err = yaml.NewDecoder(cfgfl).Decode(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("error decoding config file")
	}

	lh, err := bankgrow.NewLocalHelper(&cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting local helper")
	}
	if _, err = lh.InitDB(); err != nil {
		logger.Fatal().Err(err).Msg("error initializing database")
	}

	node, err := snowflake.NewNode(111)
	if err != nil {
		logger.Fatal().Err(err).Msg("error creating snowflake node")
	}
	samples := map[string][2]string{
		node.Generate().String(): {"100.00", "150.00"},
		node.Generate().String(): {"140.00", "150.00"},
		node.Generate().String(): {"0.00", "50.00"},
	}
	if err = lh.SeedAccounts(samples); err != nil {
		logger.Fatal().Err(err).Msg("error seeding accounts")
	}
	logger.Info().Int("accounts", len(samples)).Msg("database seeded")
}
