package api

import "github.com/scorecast/scorecast/internal/schema"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// HealthResponse reports service and database state.
type HealthResponse struct {
	Status       string `json:"status"`
	Database     string `json:"database"`
	ModelVersion string `json:"model_version,omitempty"`
}

// StudentRequest creates a student.
type StudentRequest struct {
	Gender               schema.Gender   `json:"gender"`
	LearningDisabilities schema.YesNo    `json:"learning_disabilities"`
	DistanceFromHome     schema.Distance `json:"distance_from_home"`
}

func (r StudentRequest) toStudent() schema.Student {
	return schema.Student{
		Gender:               r.Gender,
		LearningDisabilities: r.LearningDisabilities,
		DistanceFromHome:     r.DistanceFromHome,
	}
}

// CompleteStudentRequest creates a student with its dependents.
type CompleteStudentRequest struct {
	StudentRequest
	Academic      *schema.AcademicRecord       `json:"academic_record,omitempty"`
	Environmental *schema.EnvironmentalFactors `json:"environmental_factors,omitempty"`
}

// CreatedResponse returns the id assigned by a create call.
type CreatedResponse struct {
	StudentID int64  `json:"student_id"`
	Message   string `json:"message"`
}

// StudentListResponse is one page of students.
type StudentListResponse struct {
	Students []schema.Student `json:"students"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
}

// PredictionResponse is the outcome of a prediction request.
type PredictionResponse struct {
	Prediction schema.Prediction `json:"prediction"`
	Features   map[string]any    `json:"features"`
}
