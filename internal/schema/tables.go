package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Schema describes the normalized tables shared by both stores.
type Schema struct {
	Tables []Table `yaml:"tables"`
}

// Table describes one normalized table or collection.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  string       `yaml:"primary_key"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty"`
}

// Column describes a table column and its declared bounds.
type Column struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"` // integer, float, text, timestamp
	Nullable bool     `yaml:"nullable"`
	Required bool     `yaml:"required,omitempty"`
	Enum     []string `yaml:"enum,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
}

// ForeignKey references the students table.
type ForeignKey struct {
	Column          string `yaml:"column"`
	ReferencedTable string `yaml:"referenced_table"`
	OnDelete        string `yaml:"on_delete"`
}

// Index is a secondary index declared on a table.
type Index struct {
	Columns    []string `yaml:"columns"`
	Unique     bool     `yaml:"unique,omitempty"`
	Descending bool     `yaml:"descending,omitempty"`
}

// RangeRule is a declared numeric bound on a column.
type RangeRule struct {
	Table string
	Field string
	Min   float64
	Max   *float64
}

// String renders the rule as "table.field in [min,max]".
func (r RangeRule) String() string {
	if r.Max == nil {
		return fmt.Sprintf("%s.%s >= %g", r.Table, r.Field, r.Min)
	}
	return fmt.Sprintf("%s.%s in [%g,%g]", r.Table, r.Field, r.Min, *r.Max)
}

// Contains reports whether v lies inside the rule's bounds.
func (r RangeRule) Contains(v float64) bool {
	if v < r.Min {
		return false
	}
	return r.Max == nil || v <= *r.Max
}

func bound(v float64) *float64 { return &v }

func intCol(name string, min, max *float64) Column {
	return Column{Name: name, Type: "integer", Min: min, Max: max}
}

func enumCol(name string, required bool) Column {
	return Column{Name: name, Type: "text", Nullable: !required, Required: required, Enum: EnumValues[name]}
}

var studentFK = []ForeignKey{{Column: "student_id", ReferencedTable: TableStudents, OnDelete: "CASCADE"}}

// Normalized returns the description of the four entity tables in load order.
func Normalized() *Schema {
	return &Schema{Tables: []Table{
		{
			Name:       TableStudents,
			PrimaryKey: "student_id",
			Columns: []Column{
				{Name: "student_id", Type: "integer"},
				enumCol("gender", true),
				enumCol("learning_disabilities", true),
				enumCol("distance_from_home", true),
				{Name: "created_at", Type: "timestamp"},
				{Name: "updated_at", Type: "timestamp"},
			},
			Indexes: []Index{{Columns: []string{"gender"}}},
		},
		{
			Name:        TableAcademic,
			PrimaryKey:  "record_id",
			ForeignKeys: studentFK,
			Columns: []Column{
				{Name: "record_id", Type: "integer"},
				{Name: "student_id", Type: "integer"},
				intCol("hours_studied", bound(0), nil),
				intCol("attendance", bound(0), bound(100)),
				intCol("previous_scores", bound(0), bound(100)),
				intCol("tutoring_sessions", bound(0), nil),
				{Name: "exam_score", Type: "integer", Nullable: true, Min: bound(0), Max: bound(110)},
			},
			Indexes: []Index{
				{Columns: []string{"student_id"}, Unique: true},
				{Columns: []string{"exam_score"}, Descending: true},
			},
		},
		{
			Name:        TableEnvironmental,
			PrimaryKey:  "env_id",
			ForeignKeys: studentFK,
			Columns: []Column{
				{Name: "env_id", Type: "integer"},
				{Name: "student_id", Type: "integer"},
				enumCol("parental_involvement", false),
				enumCol("access_to_resources", false),
				enumCol("extracurricular_activities", false),
				intCol("sleep_hours", bound(4), bound(12)),
				enumCol("motivation_level", false),
				enumCol("internet_access", false),
				enumCol("family_income", false),
				enumCol("teacher_quality", false),
				enumCol("school_type", false),
				enumCol("peer_influence", false),
				intCol("physical_activity", bound(0), bound(10)),
				enumCol("parental_education_level", false),
			},
			Indexes: []Index{{Columns: []string{"student_id"}, Unique: true}},
		},
		{
			Name:        TablePredictions,
			PrimaryKey:  "prediction_id",
			ForeignKeys: studentFK,
			Columns: []Column{
				{Name: "prediction_id", Type: "integer"},
				{Name: "student_id", Type: "integer"},
				{Name: "predicted_score", Type: "float", Min: bound(0), Max: bound(110)},
				{Name: "actual_score", Type: "integer", Nullable: true, Min: bound(0), Max: bound(110)},
				{Name: "confidence_score", Type: "float", Min: bound(0), Max: bound(1)},
				{Name: "model_version", Type: "text"},
				{Name: "prediction_date", Type: "timestamp"},
			},
			Indexes: []Index{
				{Columns: []string{"student_id"}},
				{Columns: []string{"prediction_date"}, Descending: true},
			},
		},
	}}
}

// Table returns the named table, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// DependentTables lists tables holding a foreign key to students.
func (s *Schema) DependentTables() []string {
	var out []string
	for _, t := range s.Tables {
		if len(t.ForeignKeys) > 0 {
			out = append(out, t.Name)
		}
	}
	return out
}

// TableNames lists every table in load order.
func (s *Schema) TableNames() []string {
	out := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.Name
	}
	return out
}

// RangeRules lists every bounded numeric column.
func (s *Schema) RangeRules() []RangeRule {
	var rules []RangeRule
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if c.Min == nil {
				continue
			}
			rules = append(rules, RangeRule{Table: t.Name, Field: c.Name, Min: *c.Min, Max: c.Max})
		}
	}
	return rules
}

// RequiredFields maps table name to columns that must never be null.
func (s *Schema) RequiredFields() map[string][]string {
	out := make(map[string][]string)
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if c.Required {
				out[t.Name] = append(out[t.Name], c.Name)
			}
		}
	}
	return out
}

// WriteYAML writes the schema description to path.
func (s *Schema) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FieldValue is a stored row's value for one column. Value is nil when the
// column is null.
type FieldValue struct {
	RowID int64    `json:"row_id"`
	Value *float64 `json:"value,omitempty"`
}
