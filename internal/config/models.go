package config

import (
	"fmt"
	"time"

	"gopkg.in/go-playground/validator.v9"

	workerconfig "github.com/lloydmeta/reqindex/worker/config"
)

// TopLevel namespaces the config file; see the example config
type TopLevel struct {
	Reqindex struct {
		Sync App `json:"sync" mapstructure:"sync"`
	} `json:"reqindex" mapstructure:"reqindex"`
}

type App struct {
	// Deployment environment, the first segment of topic names
	Environment  string              `json:"environment" yaml:"environment" mapstructure:"environment" validate:"required"`
	Module       Module              `json:"module" yaml:"module" mapstructure:"module"`
	Tenants      []string            `json:"tenants" yaml:"tenants" mapstructure:"tenants" validate:"min=1,dive,required"`
	Kafka        Kafka               `json:"kafka" yaml:"kafka" mapstructure:"kafka"`
	Storage      Storage             `json:"storage" yaml:"storage" mapstructure:"storage"`
	Synchronizer Synchronizer        `json:"synchronizer" yaml:"synchronizer" mapstructure:"synchronizer"`
	Worker       workerconfig.Worker `json:"worker" yaml:"worker" mapstructure:"worker"`
	Stats        Stats               `json:"stats" yaml:"stats" mapstructure:"stats"`
	ApmClient    *ApmClient          `json:"apm,omitempty" yaml:"apm,omitempty" mapstructure:"apm"`
	Logging      *Logging            `json:"logging,omitempty" yaml:"logging,omitempty" mapstructure:"logging"`
}

// Module identifies the deployed module; consumer groups are derived from it
type Module struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Version string `json:"version" yaml:"version" mapstructure:"version" validate:"required"`
}

type Logging struct {
	Json  *bool   `json:"json,omitempty" yaml:"json,omitempty" mapstructure:"json"`
	File  *string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
	Level *string `json:"level,omitempty" yaml:"level,omitempty" mapstructure:"level"`
}

type Kafka struct {
	Brokers []string `json:"brokers" yaml:"brokers" mapstructure:"brokers" validate:"min=1,dive,required"`
	// Where a consumer group with no committed offset starts from: "earliest" or "latest"
	StartOffset string        `json:"start_offset" yaml:"start_offset" mapstructure:"start_offset" validate:"omitempty,oneof=earliest latest"`
	MinBytes    int           `json:"min_bytes" yaml:"min_bytes" mapstructure:"min_bytes" validate:"min=0"`
	MaxBytes    int           `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes" validate:"min=0"`
	MaxWait     time.Duration `json:"max_wait" yaml:"max_wait" mapstructure:"max_wait"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

type StorageBackend string

const (
	ElasticsearchBackend StorageBackend = "elasticsearch"
	SqliteBackend        StorageBackend = "sqlite"
)

type Storage struct {
	Backend       StorageBackend       `json:"backend" yaml:"backend" mapstructure:"backend" validate:"oneof=elasticsearch sqlite"`
	Elasticsearch *ElasticsearchClient `json:"elasticsearch,omitempty" yaml:"elasticsearch,omitempty" mapstructure:"elasticsearch"`
	Sqlite        *Sqlite              `json:"sqlite,omitempty" yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

type ElasticsearchClient struct {
	Addresses []string       `json:"addresses" yaml:"addresses" mapstructure:"addresses" validate:"min=1"`
	User      *BasicAuthUser `json:"user,omitempty" yaml:"user,omitempty" mapstructure:"user"`
	// Page size when scrolling through the requests of an item
	ScrollSize uint          `json:"scroll_size" yaml:"scroll_size" mapstructure:"scroll_size" validate:"min=1"`
	ScrollTtl  time.Duration `json:"scroll_ttl" yaml:"scroll_ttl" mapstructure:"scroll_ttl"`
	// Refresh policy for writes: "", "true" or "wait_for"
	Refresh string `json:"refresh,omitempty" yaml:"refresh,omitempty" mapstructure:"refresh" validate:"omitempty,oneof=true false wait_for"`
}

type Sqlite struct {
	// Data source name as understood by modernc.org/sqlite, e.g. file:/data/requests.db
	DSN          string `json:"dsn" yaml:"dsn" mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"min=0"`
}

type ApmClient struct {
	Address     *string `json:"address,omitempty" yaml:"address,omitempty" mapstructure:"address"`
	SecretToken *string `json:"secret_token,omitempty" yaml:"secret_token,omitempty" mapstructure:"secret_token"`
}

type BasicAuthUser struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
}

type Synchronizer struct {
	VersionConflictRetryTimes uint `json:"version_conflict_retry_times" yaml:"version_conflict_retry_times" mapstructure:"version_conflict_retry_times"`
	WriteConcurrency          uint `json:"write_concurrency" yaml:"write_concurrency" mapstructure:"write_concurrency"`
}

type Stats struct {
	// Cron spec for logging synchronisation stats, e.g. "@every 1m"; empty turns reporting off
	ReportSchedule string `json:"report_schedule" yaml:"report_schedule" mapstructure:"report_schedule"`
}

// Validate checks the App config against its validation tags, and that the selected storage
// backend is configured
func (a *App) Validate() error {
	if err := validator.New().Struct(a); err != nil {
		return err
	}
	switch {
	case a.Storage.Backend == ElasticsearchBackend && a.Storage.Elasticsearch == nil:
		return MissingBackendConfig{Backend: a.Storage.Backend}
	case a.Storage.Backend == SqliteBackend && a.Storage.Sqlite == nil:
		return MissingBackendConfig{Backend: a.Storage.Backend}
	}
	return nil
}

// MissingBackendConfig is returned when the selected storage backend has no config
type MissingBackendConfig struct {
	Backend StorageBackend
}

func (e MissingBackendConfig) Error() string {
	return fmt.Sprintf("Storage backend [%s] selected but not configured", e.Backend)
}
