package request

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	"github.com/lloydmeta/reqindex/internal/infra/sqlite/common"
)

// TablesSetup creates the per-tenant request tables
type TablesSetup struct {
	db      *sql.DB
	tenants []tenant.Id
}

func NewTablesSetup(db *sql.DB, tenants []tenant.Id) TablesSetup {
	return TablesSetup{db: db, tenants: tenants}
}

// Run creates whatever tables and indices are missing
func (s *TablesSetup) Run(ctx context.Context) error {
	for _, t := range s.tenants {
		table := BuildTableName(t)
		log.Info().Str("table", table).Msg("Creating table")
		statements := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
				id TEXT PRIMARY KEY,
				item_id TEXT NOT NULL,
				jsonb TEXT NOT NULL,
				version INTEGER NOT NULL
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (item_id)`, table+"_item_id_idx", table),
		}
		for _, statement := range statements {
			if _, err := s.db.ExecContext(ctx, statement); err != nil {
				return common.SqliteErr{Underlying: err}
			}
		}
	}
	return nil
}

// Check returns TablesNotCreated if any tenant's table is missing
func (s *TablesSetup) Check(ctx context.Context) error {
	var missing []string
	for _, t := range s.tenants {
		table := BuildTableName(t)
		var name string
		err := s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			missing = append(missing, table)
		case err != nil:
			return common.SqliteErr{Underlying: err}
		}
	}
	if len(missing) > 0 {
		return TablesNotCreated{NotCreated: missing}
	}
	return nil
}

type TablesNotCreated struct {
	NotCreated []string
}

func (e TablesNotCreated) Error() string {
	return fmt.Sprintf("One or more request tables were not created. Please run the setup command to create them [%v]", e.NotCreated)
}
