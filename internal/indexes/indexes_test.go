package indexes

import (
	"path/filepath"
	"testing"

	"github.com/scorecast/scorecast/internal/docstore"
	"github.com/scorecast/scorecast/internal/schema"
)

func findIndex(plan *IndexPlan, collection, field string) *docstore.IndexDefinition {
	for _, ci := range plan.Indexes {
		if ci.Collection == collection && len(ci.Index.Keys) == 1 && ci.Index.Keys[0].Field == field {
			idx := ci.Index
			return &idx
		}
	}
	return nil
}

func TestPlan_UniqueStudentKeys(t *testing.T) {
	plan := Plan(schema.Normalized())

	for _, coll := range []string{schema.TableStudents, schema.TableAcademic, schema.TableEnvironmental} {
		idx := findIndex(plan, coll, "student_id")
		if idx == nil || !idx.Unique {
			t.Errorf("expected unique student_id index on %s, got %+v", coll, idx)
		}
	}

	pred := findIndex(plan, schema.TablePredictions, "student_id")
	if pred == nil {
		t.Fatal("expected student_id index on predictions")
	}
	if pred.Unique {
		t.Error("predictions are 1:N; student_id must not be unique")
	}
}

func TestPlan_DeclaredIndexes(t *testing.T) {
	plan := Plan(schema.Normalized())

	if findIndex(plan, schema.TableStudents, "gender") == nil {
		t.Error("expected gender index on students")
	}
	exam := findIndex(plan, schema.TableAcademic, "exam_score")
	if exam == nil || exam.Keys[0].Order != -1 {
		t.Errorf("expected descending exam_score index, got %+v", exam)
	}
	date := findIndex(plan, schema.TablePredictions, "prediction_date")
	if date == nil || date.Keys[0].Order != -1 {
		t.Errorf("expected descending prediction_date index, got %+v", date)
	}
}

func TestPlan_NoDuplicates(t *testing.T) {
	plan := Plan(schema.Normalized())
	if len(plan.Indexes) != 7 {
		t.Errorf("expected 7 indexes, got %d: %v", len(plan.Indexes), plan.Lines())
	}
	if len(plan.For(schema.TableEnvironmental)) != 1 {
		t.Errorf("environmental_factors should carry only the student_id index, got %+v", plan.For(schema.TableEnvironmental))
	}
	if len(plan.Explanations) != len(plan.Indexes) {
		t.Errorf("every index needs one explanation: %d vs %d", len(plan.Explanations), len(plan.Indexes))
	}
}

func TestPlan_SkipsIDField(t *testing.T) {
	p := &IndexPlan{}
	if p.addIfNew("students", docstore.IndexDefinition{Keys: []docstore.IndexKey{{Field: "_id", Order: 1}}}) {
		t.Error("_id index must never be planned")
	}
}

func TestLines(t *testing.T) {
	p := &IndexPlan{Indexes: []docstore.CollectionIndex{{
		Collection: "students",
		Index:      docstore.IndexDefinition{Name: "pk_students", Unique: true, Keys: []docstore.IndexKey{{Field: "student_id", Order: 1}}},
	}}}
	want := "students.pk_students {student_id:1} unique"
	if got := p.Lines()[0]; got != want {
		t.Errorf("Lines()[0] = %q, want %q", got, want)
	}
}

func TestWriteAndLoadYAML(t *testing.T) {
	plan := Plan(schema.Normalized())
	path := filepath.Join(t.TempDir(), "indexes.yaml")

	if err := plan.WriteYAML(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded.Indexes) != len(plan.Indexes) {
		t.Errorf("loaded %d indexes, want %d", len(loaded.Indexes), len(plan.Indexes))
	}
	if loaded.Indexes[0].Index.Keys[0].Field != "student_id" {
		t.Errorf("unexpected first index %+v", loaded.Indexes[0])
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
