package api

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/schema"
)

// MockRepository is an in-memory Repository for handler tests. Entities are
// validated the same way the gorm repository validates them.
type MockRepository struct {
	mu            sync.Mutex
	nextID        int64
	students      map[int64]schema.Student
	academic      map[int64]schema.AcademicRecord
	environmental map[int64]schema.EnvironmentalFactors
	predictions   map[int64][]schema.Prediction

	PingErr error
	Err     error // returned by every call when set
}

// NewMockRepository returns an empty MockRepository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		students:      make(map[int64]schema.Student),
		academic:      make(map[int64]schema.AcademicRecord),
		environmental: make(map[int64]schema.EnvironmentalFactors),
		predictions:   make(map[int64][]schema.Prediction),
	}
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, apperrors.ErrNotFound)
}

func (m *MockRepository) Ping(_ context.Context) error { return m.PingErr }

func (m *MockRepository) CreateStudent(_ context.Context, s schema.Student) (schema.Student, error) {
	if m.Err != nil {
		return schema.Student{}, m.Err
	}
	s, err := schema.NewStudent(s.Gender, s.LearningDisabilities, s.DistanceFromHome)
	if err != nil {
		return schema.Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.students[s.ID] = s
	return s, nil
}

func (m *MockRepository) ListStudents(_ context.Context, skip, limit int) ([]schema.Student, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.students))
	for id := range m.students {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []schema.Student
	for i, id := range ids {
		if i < skip {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.students[id])
	}
	return out, nil
}

func (m *MockRepository) GetStudent(_ context.Context, id int64) (schema.Student, error) {
	if m.Err != nil {
		return schema.Student{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return schema.Student{}, notFound("student", id)
	}
	return s, nil
}

func (m *MockRepository) UpdateStudent(_ context.Context, id int64, patch schema.StudentPatch) (schema.Student, error) {
	if m.Err != nil {
		return schema.Student{}, m.Err
	}
	if err := schema.Validate(patch); err != nil {
		return schema.Student{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return schema.Student{}, notFound("student", id)
	}
	s = patch.Apply(s)
	m.students[id] = s
	return s, nil
}

func (m *MockRepository) DeleteStudent(_ context.Context, id int64) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return notFound("student", id)
	}
	delete(m.students, id)
	delete(m.academic, id)
	delete(m.environmental, id)
	delete(m.predictions, id)
	return nil
}

func (m *MockRepository) CreateAcademic(_ context.Context, studentID int64, a schema.AcademicRecord) (schema.AcademicRecord, error) {
	if m.Err != nil {
		return schema.AcademicRecord{}, m.Err
	}
	a, err := schema.NewAcademicRecord(studentID, a)
	if err != nil {
		return schema.AcademicRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return schema.AcademicRecord{}, notFound("student", studentID)
	}
	if _, ok := m.academic[studentID]; ok {
		return schema.AcademicRecord{}, fmt.Errorf("academic record for %d: %w", studentID, apperrors.ErrConflict)
	}
	a.RecordID = studentID
	m.academic[studentID] = a
	return a, nil
}

func (m *MockRepository) GetAcademic(_ context.Context, studentID int64) (schema.AcademicRecord, error) {
	if m.Err != nil {
		return schema.AcademicRecord{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.academic[studentID]
	if !ok {
		return schema.AcademicRecord{}, notFound("academic record for student", studentID)
	}
	return a, nil
}

func (m *MockRepository) UpdateAcademic(_ context.Context, studentID int64, patch schema.AcademicPatch) (schema.AcademicRecord, error) {
	if m.Err != nil {
		return schema.AcademicRecord{}, m.Err
	}
	if err := schema.Validate(patch); err != nil {
		return schema.AcademicRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.academic[studentID]
	if !ok {
		return schema.AcademicRecord{}, notFound("academic record for student", studentID)
	}
	a = patch.Apply(a)
	m.academic[studentID] = a
	return a, nil
}

func (m *MockRepository) CreateEnvironmental(_ context.Context, studentID int64, e schema.EnvironmentalFactors) (schema.EnvironmentalFactors, error) {
	if m.Err != nil {
		return schema.EnvironmentalFactors{}, m.Err
	}
	e, err := schema.NewEnvironmentalFactors(studentID, e)
	if err != nil {
		return schema.EnvironmentalFactors{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return schema.EnvironmentalFactors{}, notFound("student", studentID)
	}
	if _, ok := m.environmental[studentID]; ok {
		return schema.EnvironmentalFactors{}, fmt.Errorf("environmental factors for %d: %w", studentID, apperrors.ErrConflict)
	}
	e.EnvID = studentID
	m.environmental[studentID] = e
	return e, nil
}

func (m *MockRepository) GetEnvironmental(_ context.Context, studentID int64) (schema.EnvironmentalFactors, error) {
	if m.Err != nil {
		return schema.EnvironmentalFactors{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.environmental[studentID]
	if !ok {
		return schema.EnvironmentalFactors{}, notFound("environmental factors for student", studentID)
	}
	return e, nil
}

func (m *MockRepository) UpdateEnvironmental(_ context.Context, studentID int64, patch schema.EnvironmentalPatch) (schema.EnvironmentalFactors, error) {
	if m.Err != nil {
		return schema.EnvironmentalFactors{}, m.Err
	}
	if err := schema.Validate(patch); err != nil {
		return schema.EnvironmentalFactors{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.environmental[studentID]
	if !ok {
		return schema.EnvironmentalFactors{}, notFound("environmental factors for student", studentID)
	}
	e = patch.Apply(e)
	m.environmental[studentID] = e
	return e, nil
}

func (m *MockRepository) CreateComplete(ctx context.Context, c schema.CompleteStudent) (schema.CompleteStudent, error) {
	if m.Err != nil {
		return schema.CompleteStudent{}, m.Err
	}
	s, err := schema.NewStudent(c.Gender, c.LearningDisabilities, c.DistanceFromHome)
	if err != nil {
		return schema.CompleteStudent{}, err
	}
	// validate everything before writing anything
	var a schema.AcademicRecord
	var e schema.EnvironmentalFactors
	if c.Academic != nil {
		if a, err = schema.NewAcademicRecord(0, *c.Academic); err != nil {
			return schema.CompleteStudent{}, err
		}
	}
	if c.Environmental != nil {
		if e, err = schema.NewEnvironmentalFactors(0, *c.Environmental); err != nil {
			return schema.CompleteStudent{}, err
		}
	}
	s, _ = m.CreateStudent(ctx, s)
	out := schema.CompleteStudent{Student: s}
	if c.Academic != nil {
		a, _ = m.CreateAcademic(ctx, s.ID, a)
		out.Academic = &a
	}
	if c.Environmental != nil {
		e, _ = m.CreateEnvironmental(ctx, s.ID, e)
		out.Environmental = &e
	}
	return out, nil
}

func (m *MockRepository) GetComplete(ctx context.Context, id int64) (schema.CompleteStudent, error) {
	s, err := m.GetStudent(ctx, id)
	if err != nil {
		return schema.CompleteStudent{}, err
	}
	out := schema.CompleteStudent{Student: s}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.academic[id]; ok {
		out.Academic = &a
	}
	if e, ok := m.environmental[id]; ok {
		out.Environmental = &e
	}
	out.Predictions = append([]schema.Prediction(nil), m.predictions[id]...)
	return out, nil
}

func (m *MockRepository) CreatePrediction(_ context.Context, p schema.Prediction) (schema.Prediction, error) {
	if m.Err != nil {
		return schema.Prediction{}, m.Err
	}
	if err := schema.Validate(p); err != nil {
		return schema.Prediction{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[p.StudentID]; !ok {
		return schema.Prediction{}, notFound("student", p.StudentID)
	}
	p.PredictionID = int64(len(m.predictions[p.StudentID]) + 1)
	m.predictions[p.StudentID] = append(m.predictions[p.StudentID], p)
	return p, nil
}

func (m *MockRepository) ListPredictions(_ context.Context, studentID int64) ([]schema.Prediction, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Prediction(nil), m.predictions[studentID]...), nil
}

// MockPredictor returns a fixed Result.
type MockPredictor struct {
	Result predict.Result
	Err    error
	Calls  int
}

func (m *MockPredictor) PredictFor(_ schema.CompleteStudent) (predict.Result, error) {
	m.Calls++
	return m.Result, m.Err
}

func (m *MockPredictor) Version() string { return "test" }
