package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TableOptions selects the columns that receive type coercion when tabular
// output is requested.
type TableOptions struct {
	// TimestampColumns are reformatted to DD/MM/YYYY; unparsable values
	// become nil, never an error.
	TimestampColumns []string
	// AmountColumns are parsed as decimals and rendered as text with a
	// comma decimal separator; non-numeric values become nil. Output is
	// text by design, matching the target spreadsheet locale.
	AmountColumns []string
}

// DefaultTableOptions returns the column sets for timeline exports
func DefaultTableOptions() TableOptions {
	return TableOptions{
		TimestampColumns: []string{"timestamp"},
		AmountColumns: []string{
			"amount.value",
			"amount.fractionDigits",
			"subAmount.value",
			"subAmount.fractionDigits",
		},
	}
}

// timestampLayouts are tried in order for permissive date parsing
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

const dateOutputLayout = "02/01/2006"

// Apply drops all-nil columns, then coerces timestamp and amount columns in
// place. Rows are returned for chaining. Coercion failures degrade per cell
// to nil and never abort the batch.
func (o TableOptions) Apply(rows []*Record) []*Record {
	dropEmptyColumns(rows)

	for _, row := range rows {
		for _, column := range o.TimestampColumns {
			if value, ok := row.Get(column); ok {
				row.Set(column, coerceTimestamp(value))
			}
		}
		for _, column := range o.AmountColumns {
			if value, ok := row.Get(column); ok {
				row.Set(column, coerceAmount(value))
			}
		}
	}

	return rows
}

// dropEmptyColumns removes columns whose value is nil in every row
func dropEmptyColumns(rows []*Record) {
	if len(rows) == 0 {
		return
	}

	populated := make(map[string]bool)
	for _, row := range rows {
		for _, key := range row.keys {
			if row.values[key] != nil {
				populated[key] = true
			}
		}
	}

	for _, row := range rows {
		for _, key := range row.Keys() {
			if !populated[key] {
				row.Delete(key)
			}
		}
	}
}

// coerceTimestamp reformats a date-like value to DD/MM/YYYY, or nil
func coerceTimestamp(value any) any {
	text, ok := value.(string)
	if !ok {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.Format(dateOutputLayout)
		}
	}
	return nil
}

// coerceAmount renders a numeric value as locale text ("1234.5" -> "1234,5"),
// or nil when the value is not numeric
func coerceAmount(value any) any {
	var text string
	switch v := value.(type) {
	case nil:
		return nil
	case json.Number:
		text = v.String()
	case string:
		text = v
	case float64:
		text = decimal.NewFromFloat(v).String()
	case int:
		text = fmt.Sprintf("%d", v)
	default:
		return nil
	}

	parsed, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	return strings.Replace(parsed.String(), ".", ",", 1)
}
