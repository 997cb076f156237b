// Package csvrow renders backup log fields into quoted CSV text.
//
// Every field is quoted unconditionally so that each row has one uniform grammar:
// a field is a double-quoted string in which literal quotes are doubled.
// Embedded newlines are kept as-is; a quoted field containing a newline is valid CSV.
package csvrow

import "strings"

// Quote escapes a single field. Literal double quotes are doubled and the result
// is wrapped in double quotes, even when the value has no special characters.
//
// Quote is not idempotent: Quote(Quote(x)) != Quote(x). Apply it exactly once.
func Quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// RenderRow joins the quoted values with a single comma, preserving order.
// The result is one line of a backup log.
func RenderRow(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return strings.Join(quoted, ",")
}

// Materialize renders a full CSV document: the quoted header line followed by the
// pre-rendered rows, one per line, with a trailing newline.
//
// Rows are written verbatim; they were already quoted when they were appended.
func Materialize(headers []string, rows []string) string {
	var b strings.Builder
	b.WriteString(RenderRow(headers))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(row)
		b.WriteByte('\n')
	}
	return b.String()
}
