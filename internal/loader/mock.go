package loader

import (
	"context"
	"fmt"

	"github.com/scorecast/scorecast/internal/schema"
)

// MockSink is an in-memory Sink for tests. Rejected records are chosen by
// the Reject callback; FailOnCall makes the n-th WriteBatch call (1-based)
// fail with FailErr.
type MockSink struct {
	SinkName   string
	Reject     func(table string, rec schema.Record) error
	FailOnCall int
	FailErr    error

	Calls   int
	Tables  []string
	Stored  map[string][]schema.Record
	Batches map[string][]int
	nextID  int64
}

func (m *MockSink) Name() string {
	if m.SinkName == "" {
		return "mock"
	}
	return m.SinkName
}

func (m *MockSink) WriteBatch(_ context.Context, table string, records []schema.Record) (*BatchResult, error) {
	m.Calls++
	m.Tables = append(m.Tables, table)
	if m.FailOnCall > 0 && m.Calls == m.FailOnCall {
		err := m.FailErr
		if err == nil {
			err = fmt.Errorf("connection reset")
		}
		return nil, err
	}
	if m.Stored == nil {
		m.Stored = make(map[string][]schema.Record)
		m.Batches = make(map[string][]int)
	}
	m.Batches[table] = append(m.Batches[table], len(records))

	res := &BatchResult{IDs: make([]int64, len(records))}
	for i, rec := range records {
		if m.Reject != nil {
			if err := m.Reject(table, rec); err != nil {
				res.Failures = append(res.Failures, RecordFailure{Index: i, Err: err})
				continue
			}
		}
		m.Stored[table] = append(m.Stored[table], rec)
		if table == schema.TableStudents {
			m.nextID++
			res.IDs[i] = m.nextID + 1000
		} else {
			res.IDs[i] = rec.OwnerID()
		}
	}
	return res, nil
}
