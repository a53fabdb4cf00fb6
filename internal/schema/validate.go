package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/scorecast/scorecast/internal/apperrors"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v's validate tags and returns an *apperrors.ValidationError
// listing the failing fields.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating %T: %w", v, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[toSnake(fe.Field())] = rule
	}
	return &apperrors.ValidationError{Fields: fields}
}

// NewStudent builds a validated Student.
func NewStudent(gender Gender, learningDisabilities YesNo, distance Distance) (Student, error) {
	if learningDisabilities == "" {
		learningDisabilities = DefaultLearningDisabilities
	}
	if distance == "" {
		distance = DefaultDistanceFromHome
	}
	s := Student{Gender: gender, LearningDisabilities: learningDisabilities, DistanceFromHome: distance}
	if err := Validate(s); err != nil {
		return Student{}, err
	}
	return s, nil
}

// NewAcademicRecord validates a for studentID.
func NewAcademicRecord(studentID int64, a AcademicRecord) (AcademicRecord, error) {
	a.RecordID = 0
	a.StudentID = studentID
	if err := Validate(a); err != nil {
		return AcademicRecord{}, err
	}
	return a, nil
}

// NewEnvironmentalFactors validates e for studentID, filling documented defaults.
func NewEnvironmentalFactors(studentID int64, e EnvironmentalFactors) (EnvironmentalFactors, error) {
	e.EnvID = 0
	e.StudentID = studentID
	for _, l := range []*Level{&e.ParentalInvolvement, &e.AccessToResources, &e.MotivationLevel, &e.FamilyIncome, &e.TeacherQuality} {
		if *l == "" {
			*l = DefaultLevel
		}
	}
	if e.ParentalEducationLevel == "" {
		e.ParentalEducationLevel = DefaultParentalEducation
	}
	if err := Validate(e); err != nil {
		return EnvironmentalFactors{}, err
	}
	return e, nil
}

// NewPrediction builds a validated Prediction stamped with now.
func NewPrediction(studentID int64, predicted, confidence float64, actual *int, version string, now time.Time) (Prediction, error) {
	p := Prediction{
		StudentID:       studentID,
		PredictedScore:  predicted,
		ActualScore:     actual,
		ConfidenceScore: confidence,
		ModelVersion:    version,
		PredictionDate:  now.UTC(),
	}
	if err := Validate(p); err != nil {
		return Prediction{}, err
	}
	return p, nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
