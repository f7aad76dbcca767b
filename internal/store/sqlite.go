package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listing-resolver/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	make           TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	pdf_text       TEXT NOT NULL DEFAULT '',
	extracted_data TEXT NOT NULL DEFAULT '{}',
	enriched_data  TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS field_resolutions (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	field_name   TEXT NOT NULL,
	value        TEXT,
	confidence   INTEGER NOT NULL,
	reasoning    TEXT NOT NULL DEFAULT '',
	sources      TEXT NOT NULL DEFAULT '[]',
	needs_review INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (document_id, field_name)
);

CREATE INDEX IF NOT EXISTS idx_documents_make_model ON documents(make COLLATE NOCASE, model COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_field_resolutions_document ON field_resolutions(document_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LookupSimilar(ctx context.Context, vehicleMake, vehicleModel string, limit int) ([]model.VehicleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, make, model, extracted_data FROM documents
		 WHERE make = ? COLLATE NOCASE AND model = ? COLLATE NOCASE
		 ORDER BY created_at DESC LIMIT ?`,
		vehicleMake, vehicleModel, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lookup similar %s %s", vehicleMake, vehicleModel)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.VehicleRecord
	for rows.Next() {
		var rec model.VehicleRecord
		var data string
		if err := rows.Scan(&rec.ID, &rec.Make, &rec.Model, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan similar")
		}
		if rec.Fields, err = decodeFields([]byte(data)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode document %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate similar")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	var extracted, enriched string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, make, model, pdf_text, extracted_data, enriched_data, created_at FROM documents WHERE id = ?`,
		id,
	).Scan(&doc.ID, &doc.Make, &doc.Model, &doc.PDFText, &extracted, &enriched, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	if err := decodeDocument(&doc, []byte(extracted), []byte(enriched)); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode document %s", id)
	}
	return &doc, nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *model.Document) error {
	prepareDocument(doc)
	extracted, enriched, err := encodeDocument(doc)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode document")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, make, model, pdf_text, extracted_data, enriched_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   make = excluded.make, model = excluded.model, pdf_text = excluded.pdf_text,
		   extracted_data = excluded.extracted_data, enriched_data = excluded.enriched_data`,
		doc.ID, doc.Make, doc.Model, doc.PDFText, string(extracted), string(enriched), doc.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save document %s", doc.ID)
}

func (s *SQLiteStore) SaveResolution(ctx context.Context, documentID string, res model.FieldResolution) error {
	value, sources, err := encodeResolution(res)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode resolution")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO field_resolutions (id, document_id, field_name, value, confidence, reasoning, sources, needs_review, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (document_id, field_name) DO UPDATE SET
		   value = excluded.value, confidence = excluded.confidence, reasoning = excluded.reasoning,
		   sources = excluded.sources, needs_review = excluded.needs_review, updated_at = excluded.updated_at`,
		uuid.NewString(), documentID, res.FieldName, string(value), res.Confidence, res.Reasoning, string(sources), res.NeedsReview, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save resolution %s/%s", documentID, res.FieldName)
}

func (s *SQLiteStore) ListResolutions(ctx context.Context, documentID string) ([]model.FieldResolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_name, value, confidence, reasoning, sources, needs_review FROM field_resolutions
		 WHERE document_id = ? ORDER BY field_name`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list resolutions %s", documentID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.FieldResolution{}
	for rows.Next() {
		var res model.FieldResolution
		var value sql.NullString
		var sources string
		if err := rows.Scan(&res.FieldName, &value, &res.Confidence, &res.Reasoning, &sources, &res.NeedsReview); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		if err := decodeResolution(&res, []byte(value.String), []byte(sources)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode resolution %s", res.FieldName)
		}
		out = append(out, res)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate resolutions")
}
