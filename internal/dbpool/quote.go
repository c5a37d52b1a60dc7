package dbpool

import "strings"

// QuoteIdent wraps a SQL identifier in double quotes, escaping embedded
// quotes. Identifiers arrive from callers as dynamic table and column names
// and must never be interpolated bare.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
