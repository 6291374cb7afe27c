// Package format renders geocoded records as CSV, a JSON array, or NDJSON.
//
// All formatters stream: a record is rendered as soon as it arrives and
// buffered output is pushed downstream on Close. Numeric values (coordinates,
// matched counts) are emitted bare; unresolved string fields come out as empty
// strings, unresolved coordinates as empty CSV cells or JSON nulls.
package format

import (
	"fmt"
	"io"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

// Writer renders geocoded records. Close flushes buffered output and
// finalizes the document; it does not close the underlying io.Writer.
type Writer interface {
	Write(q domain.Query) error
	Close() error
}

// Options configures a formatter.
type Options struct {
	// Columns limits CSV output to the named columns, in the given order.
	// Empty means the default column set. JSON formats ignore it.
	Columns []string
	// NoHeader suppresses the CSV header row.
	NoHeader bool
}

// New creates a formatter for the named kind: "csv", "json", or "ndjson".
func New(kind string, w io.Writer, opts Options) (Writer, error) {
	switch kind {
	case "csv":
		return newCSVWriter(w, opts)
	case "json":
		return newJSONWriter(w, false), nil
	case "ndjson":
		return newJSONWriter(w, true), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", kind)
	}
}
