package reset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/scorecast/scorecast/internal/docstore"
	"github.com/scorecast/scorecast/internal/indexes"
)

type mockRelational struct {
	dropErr, ensureErr error
	calls              []string
}

func (m *mockRelational) DropSchema(context.Context) error {
	m.calls = append(m.calls, "drop")
	return m.dropErr
}

func (m *mockRelational) EnsureSchema(context.Context) error {
	m.calls = append(m.calls, "ensure")
	return m.ensureErr
}

type mockDocument struct {
	dropErr, ensureErr, indexErr error
	dropped                      []string
	ensured                      bool
	indexes                      []docstore.CollectionIndex
}

func (m *mockDocument) DropCollections(_ context.Context, names []string) error {
	if m.dropErr != nil {
		return m.dropErr
	}
	m.dropped = append(m.dropped, names...)
	return nil
}

func (m *mockDocument) EnsureCollections(context.Context) error {
	if m.ensureErr != nil {
		return m.ensureErr
	}
	m.ensured = true
	return nil
}

func (m *mockDocument) CreateIndexes(_ context.Context, idx []docstore.CollectionIndex) error {
	if m.indexErr != nil {
		return m.indexErr
	}
	m.indexes = append(m.indexes, idx...)
	return nil
}

type mockArchive struct {
	err     error
	deleted []string
}

func (m *mockArchive) Delete(_ context.Context, runID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, runID)
	return nil
}

func TestExecute_Full(t *testing.T) {
	rel := &mockRelational{}
	doc := &mockDocument{}
	arc := &mockArchive{}

	res := Execute(context.Background(), Targets{Relational: rel, Document: doc, Archive: arc}, Options{PurgeRunID: "run-1"})

	if !res.OK() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if strings.Join(rel.calls, ",") != "drop,ensure" {
		t.Errorf("relational calls = %v", rel.calls)
	}
	if !res.RelationalDropped || !res.RelationalRecreated {
		t.Errorf("unexpected result %+v", res)
	}
	if len(doc.dropped) != 4 || len(res.DroppedCollections) != 4 {
		t.Errorf("dropped = %v", doc.dropped)
	}
	if !doc.ensured || !res.CollectionsCreated {
		t.Error("collections not recreated")
	}
	if res.IndexesBuilt == 0 || res.IndexesBuilt != len(doc.indexes) {
		t.Errorf("indexes built = %d, created = %d", res.IndexesBuilt, len(doc.indexes))
	}
	if !res.ArchivePurged || len(arc.deleted) != 1 || arc.deleted[0] != "run-1" {
		t.Errorf("archive deleted = %v", arc.deleted)
	}
}

func TestExecute_ContinuesPastErrors(t *testing.T) {
	rel := &mockRelational{dropErr: errors.New("connection refused")}
	doc := &mockDocument{}

	res := Execute(context.Background(), Targets{Relational: rel, Document: doc}, Options{})

	if res.OK() || len(res.Errors) != 1 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if !strings.Contains(res.Errors[0], "connection refused") {
		t.Errorf("error = %s", res.Errors[0])
	}
	if len(rel.calls) != 1 {
		t.Errorf("ensure should not run after a failed drop: %v", rel.calls)
	}
	if !res.CollectionsCreated {
		t.Error("document reset should still run")
	}
}

func TestExecute_IndexFailure(t *testing.T) {
	doc := &mockDocument{indexErr: errors.New("duplicate key")}
	res := Execute(context.Background(), Targets{Document: doc}, Options{})
	if len(res.Errors) != 1 || res.IndexesBuilt != 0 || !res.CollectionsCreated {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestExecute_DropOnlyAndSkips(t *testing.T) {
	rel := &mockRelational{}
	doc := &mockDocument{}

	res := Execute(context.Background(), Targets{Relational: rel, Document: doc}, Options{DropOnly: true, SkipDocument: true})
	if !res.OK() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(rel.calls) != 1 || res.RelationalRecreated {
		t.Errorf("drop-only should not recreate: %v", rel.calls)
	}
	if len(doc.dropped) != 0 {
		t.Error("document store should be skipped")
	}
}

func TestExecute_CustomIndexPlan(t *testing.T) {
	doc := &mockDocument{}
	plan := &indexes.IndexPlan{Indexes: []docstore.CollectionIndex{{
		Collection: "students",
		Index:      docstore.IndexDefinition{Name: "by_gender", Keys: []docstore.IndexKey{{Field: "gender", Order: 1}}},
	}}}

	res := Execute(context.Background(), Targets{Document: doc}, Options{Indexes: plan})
	if res.IndexesBuilt != 1 || doc.indexes[0].Index.Name != "by_gender" {
		t.Errorf("unexpected indexes %+v", doc.indexes)
	}
}

func TestExecute_NoTargets(t *testing.T) {
	res := Execute(context.Background(), Targets{}, Options{PurgeRunID: "x"})
	if !res.OK() || res.RelationalDropped || res.ArchivePurged {
		t.Errorf("unexpected result %+v", res)
	}
}
