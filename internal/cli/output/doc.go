// Package output renders sockmesh-cli results as tables, JSON or YAML.
//
// Table output derives columns from `json` struct tags; fields tagged
// `table:"wide"` are shown only with --wide and `table:"-"` hides a field.
package output
