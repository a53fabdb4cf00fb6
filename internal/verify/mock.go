package verify

import (
	"context"

	"github.com/scorecast/scorecast/internal/schema"
)

// MockInspector is a test double for the Inspector interface. Violations are
// keyed by "table.field".
type MockInspector struct {
	Counts     map[string]int64
	CountErr   error
	Orphans    map[string]int64
	OrphanErr  error
	Violations map[string][]schema.FieldValue
	Nulls      map[string][]int64
	Samples    []schema.CompleteStudent
	SampleErr  error

	// Track calls
	CountCalls    []string
	RulesChecked  []string
	SampleRequest int
}

func (m *MockInspector) Count(_ context.Context, table string) (int64, error) {
	m.CountCalls = append(m.CountCalls, table)
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return m.Counts[table], nil
}

func (m *MockInspector) CountOrphans(_ context.Context, table string) (int64, error) {
	if m.OrphanErr != nil {
		return 0, m.OrphanErr
	}
	return m.Orphans[table], nil
}

func (m *MockInspector) FindOutOfRange(_ context.Context, rule schema.RangeRule, limit int) ([]schema.FieldValue, error) {
	key := rule.Table + "." + rule.Field
	m.RulesChecked = append(m.RulesChecked, key)
	found := m.Violations[key]
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (m *MockInspector) FindNulls(_ context.Context, table, field string, _ int) ([]int64, error) {
	return m.Nulls[table+"."+field], nil
}

func (m *MockInspector) SampleComplete(_ context.Context, n int) ([]schema.CompleteStudent, error) {
	m.SampleRequest = n
	if m.SampleErr != nil {
		return nil, m.SampleErr
	}
	if n < len(m.Samples) {
		return m.Samples[:n], nil
	}
	return m.Samples, nil
}
