package normalize

// DefaultSeparator joins nested key paths in flattened records
const DefaultSeparator = "."

// Flatten flattens a batch of nested records into flat records whose keys are
// sep-joined paths. Nested records merge into the parent; every other value
// (including arrays) stays as-is under its joined key.
//
// Column policy: the union of flattened keys in first-seen order across the
// whole batch. Every output record carries every column, padded with nil
// where the source record has no value. This is the insertion-order-with-
// padding policy; records never lose keys here.
func Flatten(records []*Record, sep string) []*Record {
	if sep == "" {
		sep = DefaultSeparator
	}

	var columns []string
	seen := make(map[string]bool)
	flattened := make([]*Record, 0, len(records))

	for _, record := range records {
		flat := NewRecord()
		flattenInto(flat, record, "", sep)
		for _, key := range flat.keys {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
		flattened = append(flattened, flat)
	}

	// Pad every record to the full column set, in global column order
	padded := make([]*Record, 0, len(flattened))
	for _, flat := range flattened {
		row := NewRecord()
		for _, column := range columns {
			value, _ := flat.Get(column)
			row.Set(column, value)
		}
		padded = append(padded, row)
	}

	return padded
}

func flattenInto(dst *Record, src *Record, prefix, sep string) {
	for _, key := range src.keys {
		joined := key
		if prefix != "" {
			joined = prefix + sep + key
		}
		if nested, ok := src.values[key].(*Record); ok {
			flattenInto(dst, nested, joined, sep)
			continue
		}
		dst.Set(joined, src.values[key])
	}
}
