// Package store persists extracted documents and field resolutions and
// serves similar-vehicle lookups.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Store defines the persistence interface of the resolver. The resolution
// core only reads through it; writes come from the CLI and the server.
type Store interface {
	// Reads used by the pipeline
	LookupSimilar(ctx context.Context, vehicleMake, vehicleModel string, limit int) ([]model.VehicleRecord, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)

	// Writes
	SaveDocument(ctx context.Context, doc *model.Document) error
	SaveResolution(ctx context.Context, documentID string, res model.FieldResolution) error
	ListResolutions(ctx context.Context, documentID string) ([]model.FieldResolution, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "pgx":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case DriverSQLite, "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "listing-resolver.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
