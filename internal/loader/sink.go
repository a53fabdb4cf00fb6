package loader

import (
	"context"

	"github.com/scorecast/scorecast/internal/schema"
)

// Sink persists batches of normalized records. The relational and document
// stores are independent sinks; nothing coordinates writes between them.
type Sink interface {
	Name() string
	// WriteBatch commits records as one unit. Rejected records are reported
	// in BatchResult.Failures and do not stop the rest of the batch. A non-nil
	// error means the store itself failed and the load must stop.
	WriteBatch(ctx context.Context, table string, records []schema.Record) (*BatchResult, error)
}

// BatchResult reports the outcome of one batch.
type BatchResult struct {
	// IDs holds the stored student id for each position; zero where the
	// record was rejected. For the students table this is the generated key.
	IDs      []int64
	Failures []RecordFailure
}

// RecordFailure is a single rejected record within a batch.
type RecordFailure struct {
	Index int // position within the batch
	Err   error
}

// Inserted returns how many records in the batch were stored.
func (b *BatchResult) Inserted() int {
	n := 0
	for _, id := range b.IDs {
		if id != 0 {
			n++
		}
	}
	return n
}
