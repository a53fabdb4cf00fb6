package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scorecast/scorecast/internal/apperrors"
	"github.com/scorecast/scorecast/internal/logging"
	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/schema"
)

// testServer creates a Server over an in-memory repository.
func testServer(t *testing.T, opts ...Option) (*Server, *MockRepository, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := NewMockRepository()
	s := New(repo, logging.Discard(), 0, opts...)
	s.now = func() time.Time { return time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC) }
	return s, repo, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	_, repo, h := testServer(t)

	w := do(t, h, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" || resp.Database != "connected" {
		t.Errorf("unexpected health %+v", resp)
	}

	repo.PingErr = errors.New("connection refused")
	w = do(t, h, "GET", "/api/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "scorecast_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	_, _, h := testServer(t, WithMetrics(reg))

	w := do(t, h, "GET", "/api/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "scorecast_test_total 1") {
		t.Errorf("metric missing from body:\n%s", w.Body.String())
	}

	_, _, h = testServer(t)
	if w := do(t, h, "GET", "/api/metrics", nil); w.Code != http.StatusNotFound {
		t.Errorf("metrics should not be routed without a gatherer, got %d", w.Code)
	}
}

func TestCreateAndGetStudent(t *testing.T) {
	_, _, h := testServer(t)

	w := do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderFemale})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[CreatedResponse](t, w)
	if created.StudentID != 1 {
		t.Errorf("student_id = %d, want 1", created.StudentID)
	}

	w = do(t, h, "GET", "/api/students/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	st := decode[schema.Student](t, w)
	if st.Gender != schema.GenderFemale || st.DistanceFromHome != schema.DistanceModerate || st.LearningDisabilities != schema.No {
		t.Errorf("unexpected student %+v", st)
	}
}

func TestCreateStudentValidation(t *testing.T) {
	_, _, h := testServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"missing gender", StudentRequest{}, http.StatusUnprocessableEntity},
		{"unknown gender", StudentRequest{Gender: "Other"}, http.StatusUnprocessableEntity},
		{"unknown distance", StudentRequest{Gender: schema.GenderMale, DistanceFromHome: "Remote"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/students", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := do(t, h, "POST", "/api/students", StudentRequest{Gender: "Other"})
	resp := decode[ErrorResponse](t, w)
	if resp.Fields["gender"] == "" {
		t.Errorf("expected gender field error, got %+v", resp)
	}
}

func TestGetStudentErrors(t *testing.T) {
	_, _, h := testServer(t)
	if w := do(t, h, "GET", "/api/students/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := do(t, h, "GET", "/api/students/0", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := do(t, h, "GET", "/api/students/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListStudentsPaging(t *testing.T) {
	_, _, h := testServer(t)
	for i := 0; i < 5; i++ {
		do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderMale})
	}

	w := do(t, h, "GET", "/api/students?skip=1&limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[StudentListResponse](t, w)
	if len(resp.Students) != 2 || resp.Students[0].ID != 2 || resp.Limit != 2 {
		t.Errorf("unexpected page %+v", resp)
	}

	for _, q := range []string{"?skip=-1", "?limit=0", "?limit=5000", "?limit=x"} {
		if w := do(t, h, "GET", "/api/students"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestUpdateStudentMergesPatch(t *testing.T) {
	_, _, h := testServer(t)
	do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderMale, DistanceFromHome: schema.DistanceNear})

	w := do(t, h, "PUT", "/api/students/1", map[string]string{"distance_from_home": "Far"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st := decode[schema.Student](t, w)
	if st.DistanceFromHome != schema.DistanceFar || st.Gender != schema.GenderMale {
		t.Errorf("unexpected student %+v", st)
	}

	if w := do(t, h, "PUT", "/api/students/1", map[string]string{"gender": "Unknown"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestDeleteStudent(t *testing.T) {
	_, _, h := testServer(t)
	do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderMale})

	if w := do(t, h, "DELETE", "/api/students/1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if w := do(t, h, "DELETE", "/api/students/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAcademicSubresource(t *testing.T) {
	_, _, h := testServer(t)
	do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderMale})

	body := map[string]any{"hours_studied": 20, "attendance": 85, "previous_scores": 70, "exam_score": 68}
	if w := do(t, h, "POST", "/api/students/9/academic", body); w.Code != http.StatusNotFound {
		t.Errorf("missing parent: status = %d, want 404", w.Code)
	}
	if w := do(t, h, "POST", "/api/students/1/academic", body); w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w := do(t, h, "POST", "/api/students/1/academic", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", w.Code)
	}

	w := do(t, h, "PUT", "/api/students/1/academic", map[string]int{"exam_score": 75})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	a := decode[schema.AcademicRecord](t, w)
	if a.ExamScore == nil || *a.ExamScore != 75 || a.HoursStudied != 20 {
		t.Errorf("unexpected record %+v", a)
	}

	if w := do(t, h, "PUT", "/api/students/1/academic", map[string]int{"exam_score": 150}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	if w := do(t, h, "GET", "/api/students/1/academic", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestEnvironmentalSubresource(t *testing.T) {
	_, _, h := testServer(t)
	do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderFemale})

	w := do(t, h, "POST", "/api/students/1/environmental", map[string]any{"sleep_hours": 8, "physical_activity": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	e := decode[schema.EnvironmentalFactors](t, w)
	if e.ParentalInvolvement != schema.LevelMedium || e.ParentalEducationLevel != schema.EducationHighSchool {
		t.Errorf("defaults not applied: %+v", e)
	}

	if w := do(t, h, "PUT", "/api/students/1/environmental", map[string]int{"sleep_hours": 2}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	w = do(t, h, "PUT", "/api/students/1/environmental", map[string]string{"school_type": "Private"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decode[schema.EnvironmentalFactors](t, w); e.SchoolType != schema.SchoolPrivate || e.SleepHours != 8 {
		t.Errorf("unexpected factors %+v", e)
	}
	if w := do(t, h, "GET", "/api/students/2/environmental", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCompleteStudent(t *testing.T) {
	_, _, h := testServer(t)

	req := CompleteStudentRequest{
		StudentRequest: StudentRequest{Gender: schema.GenderMale},
		Academic:       &schema.AcademicRecord{HoursStudied: 23, Attendance: 84, PreviousScores: 73, ExamScore: schema.IntPtr(67)},
		Environmental:  &schema.EnvironmentalFactors{SleepHours: 7, PhysicalActivity: 3},
	}
	w := do(t, h, "POST", "/api/students/complete", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	id := decode[CreatedResponse](t, w).StudentID

	w = do(t, h, "GET", "/api/students/1/complete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	c := decode[schema.CompleteStudent](t, w)
	if c.ID != id || c.Academic == nil || c.Environmental == nil || c.Academic.StudentID != id {
		t.Errorf("unexpected complete student %+v", c)
	}
}

func TestCompleteStudentRejectedAsAWhole(t *testing.T) {
	_, repo, h := testServer(t)

	req := CompleteStudentRequest{
		StudentRequest: StudentRequest{Gender: schema.GenderMale},
		Academic:       &schema.AcademicRecord{Attendance: 140},
	}
	if w := do(t, h, "POST", "/api/students/complete", req); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if list, _ := repo.ListStudents(t.Context(), 0, 0); len(list) != 0 {
		t.Errorf("no student should be stored, got %d", len(list))
	}
}

func TestCreatePrediction(t *testing.T) {
	pred := &MockPredictor{Result: predict.Result{PredictedScore: 66.4, Confidence: 0.85}}
	_, _, h := testServer(t, WithPredictor(pred))

	req := CompleteStudentRequest{
		StudentRequest: StudentRequest{Gender: schema.GenderFemale},
		Academic:       &schema.AcademicRecord{HoursStudied: 19, Attendance: 64, PreviousScores: 59, ExamScore: schema.IntPtr(61)},
	}
	do(t, h, "POST", "/api/students/complete", req)

	w := do(t, h, "POST", "/api/students/1/predictions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[PredictionResponse](t, w)
	p := resp.Prediction
	if p.PredictedScore != 66.4 || p.ConfidenceScore != 0.85 || p.ModelVersion != "test" {
		t.Errorf("unexpected prediction %+v", p)
	}
	if p.ActualScore == nil || *p.ActualScore != 61 {
		t.Errorf("actual score = %v, want 61", p.ActualScore)
	}
	if resp.Features["Sleep_Hours"] != float64(7) || resp.Features["Hours_Studied"] != float64(19) {
		t.Errorf("unexpected features %v", resp.Features)
	}

	w = do(t, h, "GET", "/api/students/1/predictions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if list := decode[[]schema.Prediction](t, w); len(list) != 1 {
		t.Errorf("predictions = %d, want 1", len(list))
	}
}

func TestCreatePredictionErrors(t *testing.T) {
	_, _, h := testServer(t)
	do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderMale})
	if w := do(t, h, "POST", "/api/students/1/predictions", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no predictor: status = %d, want 503", w.Code)
	}

	pred := &MockPredictor{Err: &predict.ModelNotLoadedError{Version: "v1.0"}}
	_, _, h = testServer(t, WithPredictor(pred))
	do(t, h, "POST", "/api/students", StudentRequest{Gender: schema.GenderMale})
	if w := do(t, h, "POST", "/api/students/1/predictions", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("model not loaded: status = %d, want 503", w.Code)
	}
	if w := do(t, h, "POST", "/api/students/7/predictions", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing student: status = %d, want 404", w.Code)
	}
	if w := do(t, h, "GET", "/api/students/7/predictions", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing student: status = %d, want 404", w.Code)
	}
}

func TestStorageUnavailable(t *testing.T) {
	_, repo, h := testServer(t)
	repo.Err = apperrors.Unavailable("query", errors.New("connection reset"))

	w := do(t, h, "GET", "/api/students", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Error != "storage unavailable" {
		t.Errorf("error = %q", resp.Error)
	}

	repo.Err = errors.New("boom")
	if w := do(t, h, "GET", "/api/students/1", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCORSInDevMode(t *testing.T) {
	_, _, h := testServer(t, WithDevMode(true))
	w := do(t, h, "OPTIONS", "/api/students", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
