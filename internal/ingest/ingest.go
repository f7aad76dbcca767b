// Package ingest imports reference vehicle listings from CSV, XLSX and JSON
// files into the document store, where the similar-vehicle adapter finds
// them.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Supported input formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// DocumentWriter persists documents. store.Store implements it.
type DocumentWriter interface {
	SaveDocument(ctx context.Context, doc *model.Document) error
}

// Options configures an import.
type Options struct {
	Format    string // empty detects from the file extension
	Delimiter rune   // CSV only; 0 sniffs
	Sheet     string // XLSX only; empty reads the first sheet
}

// Stats summarizes an import.
type Stats struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// DetectFormat maps a file extension to a format.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", eris.Errorf("ingest: cannot detect format of %s", path)
	}
}

// ImportFile reads listings from path and saves each one with a make and
// model. Rows without them are skipped. A save error aborts the import.
func ImportFile(ctx context.Context, w DocumentWriter, path string, opts Options) (Stats, error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return Stats{}, err
		}
	}

	// Reader goroutines stop when ctx is cancelled.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stats Stats
		err   error
	)
	switch format {
	case FormatCSV:
		stats, err = importCSV(ctx, cancel, w, path, opts)
	case FormatXLSX:
		rows, errs := StreamXLSX(ctx, path, XLSXOptions{SheetName: opts.Sheet})
		stats, err = importRows(ctx, cancel, w, rows, errs)
	case FormatJSON:
		stats, err = importJSON(ctx, cancel, w, path)
	default:
		return Stats{}, eris.Errorf("ingest: unsupported format %q", format)
	}
	if err != nil {
		return stats, err
	}

	zap.L().Info("import complete",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("rows", stats.Rows),
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func importCSV(ctx context.Context, cancel context.CancelFunc, w DocumentWriter, path string, opts Options) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, errs := StreamCSV(ctx, f, CSVOptions{Delimiter: opts.Delimiter, LazyQuotes: true})
	return importRows(ctx, cancel, w, rows, errs)
}

// importRows treats the first row as the header.
func importRows(ctx context.Context, cancel context.CancelFunc, w DocumentWriter, rows <-chan []string, errs <-chan error) (Stats, error) {
	var (
		stats  Stats
		header []string
	)
	for row := range rows {
		if header == nil {
			header = mapHeader(row)
			continue
		}
		stats.Rows++
		doc, ok := rowToDocument(header, row)
		if !ok {
			stats.Skipped++
			continue
		}
		if err := w.SaveDocument(ctx, doc); err != nil {
			cancel()
			drain(rows)
			return stats, eris.Wrapf(err, "ingest: save row %d", stats.Rows)
		}
		stats.Imported++
	}
	if err := <-errs; err != nil {
		return stats, eris.Wrap(err, "ingest: read rows")
	}
	return stats, nil
}

func importJSON(ctx context.Context, cancel context.CancelFunc, w DocumentWriter, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var stats Stats
	docs, errs := DecodeJSONArray[model.Document](ctx, f)
	for doc := range docs {
		stats.Rows++
		if strings.TrimSpace(doc.Make) == "" || strings.TrimSpace(doc.Model) == "" {
			stats.Skipped++
			continue
		}
		if err := w.SaveDocument(ctx, &doc); err != nil {
			cancel()
			drain(docs)
			return stats, eris.Wrapf(err, "ingest: save document %d", stats.Rows)
		}
		stats.Imported++
	}
	if err := <-errs; err != nil {
		return stats, eris.Wrap(err, "ingest: read documents")
	}
	return stats, nil
}

func drain[T any](ch <-chan T) {
	for range ch {
	}
}

// Reserved columns. Every other column becomes an extracted field.
const (
	colID      = "id"
	colMake    = "make"
	colModel   = "model"
	colPDFText = "pdf_text"
)

var headerAliases = map[string]string{
	"marke":        colMake,
	"hersteller":   colMake,
	"manufacturer": colMake,
	"brand":        colMake,
	"modell":       colModel,
	"text":         colPDFText,
	"pdftext":      colPDFText,
	"beschreibung": colPDFText,
	"description":  colPDFText,
}

// mapHeader normalizes header cells to field names: lower case with
// spaces and dashes as underscores.
func mapHeader(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		out[i] = name
	}
	return out
}

func rowToDocument(header, row []string) (*model.Document, bool) {
	doc := &model.Document{}
	fields := make(map[string]any)
	for i, cell := range row {
		if i >= len(header) || header[i] == "" || cell == "" {
			continue
		}
		switch header[i] {
		case colID:
			doc.ID = cell
		case colMake:
			doc.Make = cell
		case colModel:
			doc.Model = cell
		case colPDFText:
			doc.PDFText = cell
		default:
			fields[header[i]] = parseCell(cell)
		}
	}
	if doc.Make == "" || doc.Model == "" {
		return nil, false
	}
	fields[colMake] = doc.Make
	fields[colModel] = doc.Model
	doc.ExtractedData = model.NewExtractedData(fields)
	return doc, true
}

// parseCell returns numbers as float64, accepting a decimal comma.
// Anything else stays a string.
func parseCell(cell string) any {
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	if strings.Count(cell, ",") == 1 && !strings.Contains(cell, ".") {
		if f, err := strconv.ParseFloat(strings.Replace(cell, ",", ".", 1), 64); err == nil {
			return f
		}
	}
	return cell
}
