// Package indexes derives the document-store index plan from the normalized
// schema.
package indexes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scorecast/scorecast/internal/docstore"
	"github.com/scorecast/scorecast/internal/schema"
)

// IndexPlan describes the set of indexes to create on the document store.
type IndexPlan struct {
	Indexes      []docstore.CollectionIndex `yaml:"indexes"`
	Explanations []string                   `yaml:"explanations"`
}

// Plan generates an IndexPlan from the schema: a unique student_id on the
// students collection and on each 1:1 dependent, a student_id lookup index on
// other dependents, and the schema's declared secondary indexes.
func Plan(s *schema.Schema) *IndexPlan {
	plan := &IndexPlan{}

	for _, t := range s.Tables {
		// 1. Student key
		if t.Name == schema.TableStudents {
			plan.addIfNew(t.Name, docstore.IndexDefinition{
				Keys:   []docstore.IndexKey{{Field: "student_id", Order: 1}},
				Name:   "pk_" + t.Name,
				Unique: true,
			})
			plan.Explanations = append(plan.Explanations,
				fmt.Sprintf("Unique index on %s(student_id) from primary key", t.Name))
		}

		// 2. References to students
		for _, fk := range t.ForeignKeys {
			unique := hasUnique(t, fk.Column)
			plan.addIfNew(t.Name, docstore.IndexDefinition{
				Keys:   []docstore.IndexKey{{Field: fk.Column, Order: 1}},
				Name:   fmt.Sprintf("ref_%s_%s", t.Name, fk.Column),
				Unique: unique,
			})
			kind := "Index"
			if unique {
				kind = "Unique index"
			}
			plan.Explanations = append(plan.Explanations,
				fmt.Sprintf("%s on %s.%s from reference to %s", kind, t.Name, fk.Column, fk.ReferencedTable))
		}

		// 3. Declared secondary indexes
		for _, idx := range t.Indexes {
			order := 1
			if idx.Descending {
				order = -1
			}
			keys := make([]docstore.IndexKey, 0, len(idx.Columns))
			for _, c := range idx.Columns {
				keys = append(keys, docstore.IndexKey{Field: c, Order: order})
			}
			if len(keys) == 0 {
				continue
			}
			if plan.addIfNew(t.Name, docstore.IndexDefinition{
				Keys:   keys,
				Name:   fmt.Sprintf("idx_%s_%s", t.Name, strings.Join(idx.Columns, "_")),
				Unique: idx.Unique,
			}) {
				plan.Explanations = append(plan.Explanations,
					fmt.Sprintf("Index on %s(%s) from declared index", t.Name, describe(keys)))
			}
		}
	}

	return plan
}

func hasUnique(t schema.Table, column string) bool {
	for _, idx := range t.Indexes {
		if idx.Unique && len(idx.Columns) == 1 && idx.Columns[0] == column {
			return true
		}
	}
	return false
}

// addIfNew appends idx unless the collection already has an index on the
// same keys. It reports whether the index was added.
func (p *IndexPlan) addIfNew(collection string, idx docstore.IndexDefinition) bool {
	if len(idx.Keys) == 1 && idx.Keys[0].Field == "_id" {
		return false
	}
	for _, existing := range p.Indexes {
		if existing.Collection == collection && sameFields(existing.Index.Keys, idx.Keys) {
			return false
		}
	}
	p.Indexes = append(p.Indexes, docstore.CollectionIndex{Collection: collection, Index: idx})
	return true
}

// For returns the planned indexes of one collection.
func (p *IndexPlan) For(collection string) []docstore.IndexDefinition {
	var out []docstore.IndexDefinition
	for _, ci := range p.Indexes {
		if ci.Collection == collection {
			out = append(out, ci.Index)
		}
	}
	return out
}

func sameFields(a, b []docstore.IndexKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Field != b[i].Field {
			return false
		}
	}
	return true
}

// Lines renders the plan one index per line for display.
func (p *IndexPlan) Lines() []string {
	out := make([]string, len(p.Indexes))
	for i, ci := range p.Indexes {
		line := fmt.Sprintf("%s.%s {%s}", ci.Collection, ci.Index.Name, indexKeyString(ci.Index.Keys))
		if ci.Index.Unique {
			line += " unique"
		}
		out[i] = line
	}
	return out
}

func indexKeyString(keys []docstore.IndexKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k.Field, k.Order)
	}
	return strings.Join(parts, ",")
}

func describe(keys []docstore.IndexKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Field
		if k.Order < 0 {
			parts[i] += " desc"
		}
	}
	return strings.Join(parts, ", ")
}

// WriteYAML writes the index plan to a YAML file.
func (p *IndexPlan) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling index plan: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadYAML reads an index plan from a YAML file.
func LoadYAML(path string) (*IndexPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index plan: %w", err)
	}
	p := &IndexPlan{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing index plan: %w", err)
	}
	return p, nil
}
