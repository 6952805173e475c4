package server

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/reqindex/internal/infra/elasticsearch/index"
	sqliterequest "github.com/lloydmeta/reqindex/internal/infra/sqlite/request"
)

// Setup abstracts away:
//
// 1. Setting up the request storage for running the synchronizer
// 2. Checking that things are set up
type Setup interface {

	// Check returns an error if all the necessary setup is not complete
	Check(ctx context.Context) error

	// RunIfNeeded attempts to run the subroutines necessary, no more no less
	RunIfNeeded(ctx context.Context) error
}

type esSetup struct {
	templateSetup index.TemplatesSetup
}

func (e *esSetup) Check(ctx context.Context) error {
	return e.templateSetup.Check(ctx)
}

func (e *esSetup) RunIfNeeded(ctx context.Context) error {
	if err := e.templateSetup.Check(ctx); err != nil {
		if _, templateNotFound := err.(index.TemplatesNotInstalled); templateNotFound {
			log.Info().Msg("Setting up Index templates")
			if err := e.templateSetup.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to install index templates")
				return err
			}
		} else {
			return err
		}
	}
	log.Info().Msg("Setup complete")
	return nil
}

type sqliteSetup struct {
	tablesSetup sqliterequest.TablesSetup
}

func (s *sqliteSetup) Check(ctx context.Context) error {
	return s.tablesSetup.Check(ctx)
}

func (s *sqliteSetup) RunIfNeeded(ctx context.Context) error {
	if err := s.tablesSetup.Check(ctx); err != nil {
		if _, tablesNotFound := err.(sqliterequest.TablesNotCreated); tablesNotFound {
			log.Info().Msg("Creating request tables")
			if err := s.tablesSetup.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to create request tables")
				return err
			}
		} else {
			return err
		}
	}
	log.Info().Msg("Setup complete")
	return nil
}
