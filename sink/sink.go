// Package sink serializes sync results to disk as JSON or semicolon-
// delimited CSV artifacts.
//
// JSON mode writes the untransformed records with 4-space indentation and
// non-ASCII characters preserved. CSV mode feeds records through the
// normalization pipeline (flatten, then optional coercion), writes a UTF-8
// byte-order mark for spreadsheet compatibility, and carries no index
// column. Format validation happens in config, before any network activity.
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c360/trsync/config"
	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/normalize"
)

// Artifact base names, extended with the configured format
const (
	TransactionsBase = "trade_republic_transactions"
	ProfileBase      = "trade_republic_profile_cash"
)

// utf8BOM marks CSV files as UTF-8 for spreadsheet applications
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Writer serializes record collections into the configured output folder
type Writer struct {
	format config.Format
	folder string
	logger *slog.Logger
}

// NewWriter creates a writer for the given output configuration
func NewWriter(cfg config.OutputConfig, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		format: cfg.Format,
		folder: cfg.Folder,
		logger: logger.With("component", "sink"),
	}
}

// Write serializes items under baseName in the configured format and returns
// the path written. A non-nil table selects tabular coercion for CSV mode;
// nil flattens without coercion. CSV mode skips the file entirely when there
// are no rows; JSON mode writes an empty array.
func (w *Writer) Write(baseName string, items []*normalize.Record, table *normalize.TableOptions) (string, error) {
	switch w.format {
	case config.FormatJSON:
		return w.writeJSON(baseName, items)
	case config.FormatCSV:
		return w.writeCSV(baseName, items, table)
	default:
		return "", errors.WrapFatal(
			fmt.Errorf("%w: %q", errors.ErrUnknownFormat, w.format),
			"Writer", "Write", "select format")
	}
}

func (w *Writer) writeJSON(baseName string, items []*normalize.Record) (string, error) {
	path := filepath.Join(w.folder, baseName+".json")

	file, err := os.Create(path)
	if err != nil {
		return "", errors.WrapFatal(err, "Writer", "writeJSON", "create file")
	}
	defer file.Close()

	if items == nil {
		items = []*normalize.Record{}
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "", errors.WrapFatal(err, "Writer", "writeJSON", "encode items")
	}

	w.logger.Info("artifact written", "path", path, "records", len(items))
	return path, nil
}

func (w *Writer) writeCSV(baseName string, items []*normalize.Record, table *normalize.TableOptions) (string, error) {
	rows := normalize.Flatten(items, normalize.DefaultSeparator)
	if table != nil {
		rows = table.Apply(rows)
	}
	if len(rows) == 0 {
		w.logger.Info("no rows to write, skipping artifact", "base", baseName)
		return "", nil
	}

	path := filepath.Join(w.folder, baseName+".csv")
	file, err := os.Create(path)
	if err != nil {
		return "", errors.WrapFatal(err, "Writer", "writeCSV", "create file")
	}
	defer file.Close()

	if _, err := file.Write(utf8BOM); err != nil {
		return "", errors.WrapFatal(err, "Writer", "writeCSV", "write BOM")
	}

	cw := csv.NewWriter(file)
	cw.Comma = ';'

	columns := rows[0].Keys()
	if err := cw.Write(columns); err != nil {
		return "", errors.WrapFatal(err, "Writer", "writeCSV", "write header")
	}

	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			value, _ := row.Get(column)
			cells[i] = renderCell(value)
		}
		if err := cw.Write(cells); err != nil {
			return "", errors.WrapFatal(err, "Writer", "writeCSV", "write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", errors.WrapFatal(err, "Writer", "writeCSV", "flush rows")
	}

	w.logger.Info("artifact written", "path", path, "rows", len(rows))
	return path, nil
}

// renderCell stringifies a flattened value for a CSV cell. Nil renders
// empty; composite values render as compact JSON.
func renderCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
