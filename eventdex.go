// Package eventdex turns a stream of uniquely identified, possibly nested
// event records into bitmap indexes.
//
// Indexing is split into fragments. Each fragment owns a directory and a
// set of column indexes, and maps the fields of an event to those indexes
// in its own way:
//
//   - MetaFragment indexes the event timestamp and name.
//   - TypeFragment has one column per primitive value type.
//   - ArgumentFragment has one column per field position (Offset) of an
//     event schema.
//
// Events must be handed to a fragment in ID order. IDs may have gaps;
// skipped IDs are backfilled as absent so that every column index covers
// the full ID range seen so far.
package eventdex

import (
	"time"

	"github.com/akrennmair/eventdex/value"
)

// Event is one ingested record together with its metadata.
type Event struct {
	ID        uint64
	Name      string
	Timestamp time.Time
	Record    value.Record
}
