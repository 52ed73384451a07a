// Package normalize flattens nested timeline records into a stable tabular
// shape and applies locale-aware type coercion for spreadsheet output.
//
// The pipeline has two independent, composable stages:
//
//  1. Flatten: nested objects merge into the parent under dot-joined key
//     paths. Columns follow first-seen key order across the whole batch and
//     every row is padded with nil for columns it lacks.
//  2. Coerce: designated timestamp columns reformat to DD/MM/YYYY and
//     designated amount columns render as text with a comma decimal
//     separator. Unparsable cells become nil; coercion never fails a batch.
//
// Records preserve JSON document key order end to end, which is what makes
// the first-seen column policy deterministic.
package normalize
