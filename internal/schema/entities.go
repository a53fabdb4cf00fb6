package schema

import "time"

// Table names.
const (
	TableStudents      = "students"
	TableAcademic      = "academic_records"
	TableEnvironmental = "environmental_factors"
	TablePredictions   = "predictions"
	TableAuditLog      = "audit_log"
)

// Record is a normalized entity that a load sink can persist.
type Record interface {
	TableName() string
	// OwnerID is the student the record belongs to. For a Student it is the
	// student's own id.
	OwnerID() int64
	// InsertColumns lists the columns written on insert, excluding generated keys.
	InsertColumns() ([]string, []any)
}

// Student holds the demographic subset of a source row.
type Student struct {
	ID                   int64     `json:"student_id" bson:"student_id" gorm:"column:student_id;primaryKey;autoIncrement"`
	Gender               Gender    `json:"gender" bson:"gender" gorm:"column:gender" validate:"required,oneof=Male Female"`
	LearningDisabilities YesNo     `json:"learning_disabilities" bson:"learning_disabilities" gorm:"column:learning_disabilities" validate:"required,oneof=Yes No"`
	DistanceFromHome     Distance  `json:"distance_from_home" bson:"distance_from_home" gorm:"column:distance_from_home" validate:"required,oneof=Near Moderate Far"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" bson:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

func (Student) TableName() string { return TableStudents }
func (s Student) OwnerID() int64  { return s.ID }

func (s Student) InsertColumns() ([]string, []any) {
	return []string{"gender", "learning_disabilities", "distance_from_home"},
		[]any{nullable(string(s.Gender)), nullable(string(s.LearningDisabilities)), nullable(string(s.DistanceFromHome))}
}

// AcademicRecord is owned 1:1 by a Student.
type AcademicRecord struct {
	RecordID         int64 `json:"record_id" bson:"record_id,omitempty" gorm:"column:record_id;primaryKey;autoIncrement"`
	StudentID        int64 `json:"student_id" bson:"student_id" gorm:"column:student_id"`
	HoursStudied     int   `json:"hours_studied" bson:"hours_studied" gorm:"column:hours_studied" validate:"min=0"`
	Attendance       int   `json:"attendance" bson:"attendance" gorm:"column:attendance" validate:"min=0,max=100"`
	PreviousScores   int   `json:"previous_scores" bson:"previous_scores" gorm:"column:previous_scores" validate:"min=0,max=100"`
	TutoringSessions int   `json:"tutoring_sessions" bson:"tutoring_sessions" gorm:"column:tutoring_sessions" validate:"min=0"`
	ExamScore        *int  `json:"exam_score,omitempty" bson:"exam_score,omitempty" gorm:"column:exam_score" validate:"omitempty,min=0,max=110"`
}

func (AcademicRecord) TableName() string { return TableAcademic }
func (a AcademicRecord) OwnerID() int64  { return a.StudentID }

func (a AcademicRecord) InsertColumns() ([]string, []any) {
	var exam any
	if a.ExamScore != nil {
		exam = *a.ExamScore
	}
	return []string{"student_id", "hours_studied", "attendance", "previous_scores", "tutoring_sessions", "exam_score"},
		[]any{a.StudentID, a.HoursStudied, a.Attendance, a.PreviousScores, a.TutoringSessions, exam}
}

// EnvironmentalFactors is owned 1:1 by a Student.
type EnvironmentalFactors struct {
	EnvID                     int64          `json:"env_id" bson:"env_id,omitempty" gorm:"column:env_id;primaryKey;autoIncrement"`
	StudentID                 int64          `json:"student_id" bson:"student_id" gorm:"column:student_id"`
	ParentalInvolvement       Level          `json:"parental_involvement" bson:"parental_involvement,omitempty" gorm:"column:parental_involvement" validate:"omitempty,oneof=Low Medium High"`
	AccessToResources         Level          `json:"access_to_resources" bson:"access_to_resources,omitempty" gorm:"column:access_to_resources" validate:"omitempty,oneof=Low Medium High"`
	ExtracurricularActivities YesNo          `json:"extracurricular_activities" bson:"extracurricular_activities,omitempty" gorm:"column:extracurricular_activities" validate:"omitempty,oneof=Yes No"`
	SleepHours                int            `json:"sleep_hours" bson:"sleep_hours" gorm:"column:sleep_hours" validate:"min=4,max=12"`
	MotivationLevel           Level          `json:"motivation_level" bson:"motivation_level,omitempty" gorm:"column:motivation_level" validate:"omitempty,oneof=Low Medium High"`
	InternetAccess            YesNo          `json:"internet_access" bson:"internet_access,omitempty" gorm:"column:internet_access" validate:"omitempty,oneof=Yes No"`
	FamilyIncome              Level          `json:"family_income" bson:"family_income,omitempty" gorm:"column:family_income" validate:"omitempty,oneof=Low Medium High"`
	TeacherQuality            Level          `json:"teacher_quality" bson:"teacher_quality,omitempty" gorm:"column:teacher_quality" validate:"omitempty,oneof=Low Medium High"`
	SchoolType                SchoolType     `json:"school_type" bson:"school_type,omitempty" gorm:"column:school_type" validate:"omitempty,oneof=Public Private"`
	PeerInfluence             PeerInfluence  `json:"peer_influence" bson:"peer_influence,omitempty" gorm:"column:peer_influence" validate:"omitempty,oneof=Positive Neutral Negative"`
	PhysicalActivity          int            `json:"physical_activity" bson:"physical_activity" gorm:"column:physical_activity" validate:"min=0,max=10"`
	ParentalEducationLevel    EducationLevel `json:"parental_education_level" bson:"parental_education_level,omitempty" gorm:"column:parental_education_level" validate:"omitempty,oneof='High School' College Postgraduate"`
}

func (EnvironmentalFactors) TableName() string { return TableEnvironmental }
func (e EnvironmentalFactors) OwnerID() int64  { return e.StudentID }

func (e EnvironmentalFactors) InsertColumns() ([]string, []any) {
	return []string{
			"student_id", "parental_involvement", "access_to_resources", "extracurricular_activities",
			"sleep_hours", "motivation_level", "internet_access", "family_income", "teacher_quality",
			"school_type", "peer_influence", "physical_activity", "parental_education_level",
		}, []any{
			e.StudentID, nullable(string(e.ParentalInvolvement)), nullable(string(e.AccessToResources)),
			nullable(string(e.ExtracurricularActivities)), e.SleepHours, nullable(string(e.MotivationLevel)),
			nullable(string(e.InternetAccess)), nullable(string(e.FamilyIncome)), nullable(string(e.TeacherQuality)),
			nullable(string(e.SchoolType)), nullable(string(e.PeerInfluence)), e.PhysicalActivity,
			nullable(string(e.ParentalEducationLevel)),
		}
}

// Prediction is an appended model output for a student.
type Prediction struct {
	PredictionID    int64     `json:"prediction_id" bson:"prediction_id,omitempty" gorm:"column:prediction_id;primaryKey;autoIncrement"`
	StudentID       int64     `json:"student_id" bson:"student_id" gorm:"column:student_id"`
	PredictedScore  float64   `json:"predicted_score" bson:"predicted_score" gorm:"column:predicted_score" validate:"min=0,max=110"`
	ActualScore     *int      `json:"actual_score,omitempty" bson:"actual_score,omitempty" gorm:"column:actual_score" validate:"omitempty,min=0,max=110"`
	ConfidenceScore float64   `json:"confidence_score" bson:"confidence_score" gorm:"column:confidence_score" validate:"min=0,max=1"`
	ModelVersion    string    `json:"model_version" bson:"model_version" gorm:"column:model_version" validate:"required"`
	PredictionDate  time.Time `json:"prediction_date" bson:"prediction_date" gorm:"column:prediction_date"`
}

func (Prediction) TableName() string { return TablePredictions }
func (p Prediction) OwnerID() int64  { return p.StudentID }

func (p Prediction) InsertColumns() ([]string, []any) {
	var actual any
	if p.ActualScore != nil {
		actual = *p.ActualScore
	}
	date := p.PredictionDate
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return []string{"student_id", "predicted_score", "actual_score", "confidence_score", "model_version", "prediction_date"},
		[]any{p.StudentID, p.PredictedScore, actual, p.ConfidenceScore, p.ModelVersion, date}
}

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	AuditID   int64          `json:"audit_id" gorm:"column:audit_id;primaryKey;autoIncrement"`
	TableName string         `json:"table_name" gorm:"column:table_name"`
	Operation string         `json:"operation" gorm:"column:operation"` // INSERT, UPDATE, DELETE
	RecordID  int64          `json:"record_id" gorm:"column:record_id"`
	OldValues map[string]any `json:"old_values,omitempty" gorm:"-"`
	NewValues map[string]any `json:"new_values,omitempty" gorm:"-"`
	ChangedBy string         `json:"changed_by" gorm:"column:changed_by"`
	ChangedAt time.Time      `json:"changed_at" gorm:"column:changed_at"`
}

// CompleteStudent joins a student with its dependent records.
type CompleteStudent struct {
	Student       `bson:",inline"`
	Academic      *AcademicRecord       `json:"academic_record,omitempty" bson:"academic_record,omitempty"`
	Environmental *EnvironmentalFactors `json:"environmental_factors,omitempty" bson:"environmental_factors,omitempty"`
	Predictions   []Prediction          `json:"predictions,omitempty" bson:"predictions,omitempty"`
}

// Records returns the student and its dependents as sink records.
func (c CompleteStudent) Records() []Record {
	recs := []Record{c.Student}
	if c.Academic != nil {
		recs = append(recs, *c.Academic)
	}
	if c.Environmental != nil {
		recs = append(recs, *c.Environmental)
	}
	return recs
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
