package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	make           TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	pdf_text       TEXT NOT NULL DEFAULT '',
	extracted_data JSONB NOT NULL DEFAULT '{}',
	enriched_data  JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS field_resolutions (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	field_name   TEXT NOT NULL,
	value        JSONB,
	confidence   INTEGER NOT NULL,
	reasoning    TEXT NOT NULL DEFAULT '',
	sources      JSONB NOT NULL DEFAULT '[]',
	needs_review BOOLEAN NOT NULL DEFAULT false,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, field_name)
);

CREATE INDEX IF NOT EXISTS idx_documents_make_model ON documents(lower(make), lower(model));
CREATE INDEX IF NOT EXISTS idx_field_resolutions_document ON field_resolutions(document_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LookupSimilar(ctx context.Context, vehicleMake, vehicleModel string, limit int) ([]model.VehicleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, make, model, extracted_data FROM documents
		 WHERE lower(make) = lower($1) AND lower(model) = lower($2)
		 ORDER BY created_at DESC LIMIT $3`,
		vehicleMake, vehicleModel, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lookup similar %s %s", vehicleMake, vehicleModel)
	}
	defer rows.Close()

	var out []model.VehicleRecord
	for rows.Next() {
		var rec model.VehicleRecord
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.Make, &rec.Model, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan similar")
		}
		if rec.Fields, err = decodeFields(data); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode document %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate similar")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	var extracted, enriched []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, make, model, pdf_text, extracted_data, enriched_data, created_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Make, &doc.Model, &doc.PDFText, &extracted, &enriched, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	if err := decodeDocument(&doc, extracted, enriched); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode document %s", id)
	}
	return &doc, nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, doc *model.Document) error {
	prepareDocument(doc)
	extracted, enriched, err := encodeDocument(doc)
	if err != nil {
		return eris.Wrap(err, "postgres: encode document")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, make, model, pdf_text, extracted_data, enriched_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   make = EXCLUDED.make, model = EXCLUDED.model, pdf_text = EXCLUDED.pdf_text,
		   extracted_data = EXCLUDED.extracted_data, enriched_data = EXCLUDED.enriched_data`,
		doc.ID, doc.Make, doc.Model, doc.PDFText, extracted, enriched, doc.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save document %s", doc.ID)
}

func (s *PostgresStore) SaveResolution(ctx context.Context, documentID string, res model.FieldResolution) error {
	value, sources, err := encodeResolution(res)
	if err != nil {
		return eris.Wrap(err, "postgres: encode resolution")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO field_resolutions (id, document_id, field_name, value, confidence, reasoning, sources, needs_review, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (document_id, field_name) DO UPDATE SET
		   value = EXCLUDED.value, confidence = EXCLUDED.confidence, reasoning = EXCLUDED.reasoning,
		   sources = EXCLUDED.sources, needs_review = EXCLUDED.needs_review, updated_at = EXCLUDED.updated_at`,
		uuid.NewString(), documentID, res.FieldName, value, res.Confidence, res.Reasoning, sources, res.NeedsReview, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save resolution %s/%s", documentID, res.FieldName)
}

func (s *PostgresStore) ListResolutions(ctx context.Context, documentID string) ([]model.FieldResolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field_name, value, confidence, reasoning, sources, needs_review FROM field_resolutions
		 WHERE document_id = $1 ORDER BY field_name`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list resolutions %s", documentID)
	}
	defer rows.Close()

	out := []model.FieldResolution{}
	for rows.Next() {
		var res model.FieldResolution
		var value, sources []byte
		if err := rows.Scan(&res.FieldName, &value, &res.Confidence, &res.Reasoning, &sources, &res.NeedsReview); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		if err := decodeResolution(&res, value, sources); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode resolution %s", res.FieldName)
		}
		out = append(out, res)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate resolutions")
}

// helpers shared by both backends

func prepareDocument(doc *model.Document) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
}

func encodeDocument(doc *model.Document) ([]byte, []byte, error) {
	extracted, err := json.Marshal(doc.ExtractedData)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal extracted data")
	}
	enriched, err := json.Marshal(doc.EnrichedData)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal enriched data")
	}
	return extracted, enriched, nil
}

func decodeDocument(doc *model.Document, extracted, enriched []byte) error {
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &doc.ExtractedData); err != nil {
			return eris.Wrap(err, "unmarshal extracted data")
		}
	}
	if len(enriched) > 0 {
		if err := json.Unmarshal(enriched, &doc.EnrichedData); err != nil {
			return eris.Wrap(err, "unmarshal enriched data")
		}
	}
	return nil
}

func decodeFields(extracted []byte) (map[string]any, error) {
	var data model.ExtractedData
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &data); err != nil {
			return nil, err
		}
	}
	fields := data.Fields()
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func encodeResolution(res model.FieldResolution) ([]byte, []byte, error) {
	value, err := json.Marshal(res.Value)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal value")
	}
	srcs := res.Sources
	if srcs == nil {
		srcs = []string{}
	}
	sources, err := json.Marshal(srcs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal sources")
	}
	return value, sources, nil
}

func decodeResolution(res *model.FieldResolution, value, sources []byte) error {
	if len(value) > 0 {
		if err := json.Unmarshal(value, &res.Value); err != nil {
			return eris.Wrap(err, "unmarshal value")
		}
	}
	res.Sources = []string{}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &res.Sources); err != nil {
			return eris.Wrap(err, "unmarshal sources")
		}
	}
	return nil
}
