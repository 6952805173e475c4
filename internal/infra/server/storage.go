package server

import (
	"fmt"

	"github.com/lloydmeta/reqindex/internal/config"
	"github.com/lloydmeta/reqindex/internal/domain/request"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	escommon "github.com/lloydmeta/reqindex/internal/infra/elasticsearch/common"
	esrequest "github.com/lloydmeta/reqindex/internal/infra/elasticsearch/request"
	"github.com/lloydmeta/reqindex/internal/infra/elasticsearch/index"
	sqlitecommon "github.com/lloydmeta/reqindex/internal/infra/sqlite/common"
	sqliterequest "github.com/lloydmeta/reqindex/internal/infra/sqlite/request"
)

// Storage holds a request.Service for every served tenant, on the configured backend, along
// with the Setup of that backend
type Storage struct {
	Requests *tenant.Registry[request.Service]
	Setup    Setup
	close    func() error
}

// NewStorage builds the request Services of every tenant. Nothing is checked against the
// backend yet; use Setup for that.
func NewStorage(conf *config.App, tenants []tenant.Id) (*Storage, error) {
	switch conf.Storage.Backend {
	case config.ElasticsearchBackend:
		return newEsStorage(conf, tenants)
	case config.SqliteBackend:
		return newSqliteStorage(conf, tenants)
	default:
		return nil, fmt.Errorf("unsupported storage backend [%s]", conf.Storage.Backend)
	}
}

func newEsStorage(conf *config.App, tenants []tenant.Id) (*Storage, error) {
	if conf.Storage.Elasticsearch == nil {
		return nil, config.MissingBackendConfig{Backend: conf.Storage.Backend}
	}
	esConf := *conf.Storage.Elasticsearch
	esClient, err := escommon.NewClient(esConf)
	if err != nil {
		return nil, err
	}
	requests, err := tenant.NewRegistry(tenants, func(t tenant.Id) (request.Service, error) {
		return esrequest.NewService(esClient, t, esConf), nil
	})
	if err != nil {
		return nil, err
	}
	return &Storage{
		Requests: requests,
		Setup:    &esSetup{templateSetup: index.DefaultTemplateSetup(esClient)},
		close:    func() error { return nil },
	}, nil
}

func newSqliteStorage(conf *config.App, tenants []tenant.Id) (*Storage, error) {
	if conf.Storage.Sqlite == nil {
		return nil, config.MissingBackendConfig{Backend: conf.Storage.Backend}
	}
	db, err := sqlitecommon.Open(*conf.Storage.Sqlite)
	if err != nil {
		return nil, err
	}
	requests, err := tenant.NewRegistry(tenants, func(t tenant.Id) (request.Service, error) {
		return sqliterequest.NewService(db, t), nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Storage{
		Requests: requests,
		Setup:    &sqliteSetup{tablesSetup: sqliterequest.NewTablesSetup(db, tenants)},
		close:    db.Close,
	}, nil
}

// Close releases whatever the backend holds on to
func (s *Storage) Close() error {
	return s.close()
}
