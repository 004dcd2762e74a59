// Package main runs the ledger API to manage wallets, balances and money transfers.
package main

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/go-petr/pet-ledger/cmd/httpserver"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"

	_ "github.com/lib/pq"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	var db *sql.DB
	if config.DBDriver != httpserver.DriverMemory {
		db, err = dbpkg.Setup(config.DBDriver, config.DBSource)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot connect to database")
		}
		defer db.Close()
	}

	server, err := httpserver.New(context.Background(), db, logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}
	defer server.Close()

	logger.Info().
		Str("log_store", config.LogStore).
		Str("cache", config.CacheDriver).
		Str("events", config.EventsDriver).
		Msg("LEDGER API SERVER HAS STARTED")

	err = server.Engine.Run(config.ServerAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}
