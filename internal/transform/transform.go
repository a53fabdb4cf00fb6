// Package transform splits flat dataset rows into normalized entities.
package transform

import (
	"fmt"
	"math"
	"strconv"

	"github.com/scorecast/scorecast/internal/dataset"
	"github.com/scorecast/scorecast/internal/schema"
)

// Source column names.
const (
	ColGender                 = "Gender"
	ColLearningDisabilities   = "Learning_Disabilities"
	ColDistanceFromHome       = "Distance_from_Home"
	ColHoursStudied           = "Hours_Studied"
	ColAttendance             = "Attendance"
	ColPreviousScores         = "Previous_Scores"
	ColTutoringSessions       = "Tutoring_Sessions"
	ColExamScore              = "Exam_Score"
	ColParentalInvolvement    = "Parental_Involvement"
	ColAccessToResources      = "Access_to_Resources"
	ColExtracurricular        = "Extracurricular_Activities"
	ColSleepHours             = "Sleep_Hours"
	ColMotivationLevel        = "Motivation_Level"
	ColInternetAccess         = "Internet_Access"
	ColFamilyIncome           = "Family_Income"
	ColTeacherQuality         = "Teacher_Quality"
	ColSchoolType             = "School_Type"
	ColPeerInfluence          = "Peer_Influence"
	ColPhysicalActivity       = "Physical_Activity"
	ColParentalEducationLevel = "Parental_Education_Level"
)

// MalformedRecordError reports a required numeric field that is missing or
// cannot be read as a number.
type MalformedRecordError struct {
	Row   int // 0-indexed position in the input
	Field string
	Value string
}

func (e *MalformedRecordError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: required field %s is missing", e.Row, e.Field)
	}
	return fmt.Sprintf("row %d: field %s: %q is not a number", e.Row, e.Field, e.Value)
}

// Result holds three equally long, index-aligned sequences.
type Result struct {
	Students      []schema.Student
	Academic      []schema.AcademicRecord
	Environmental []schema.EnvironmentalFactors
}

// Len returns the number of source rows transformed.
func (r *Result) Len() int { return len(r.Students) }

// Transform converts rows into normalized entities. Row i gets surrogate id
// i+1. Any malformed row aborts the whole transformation.
func Transform(rows []dataset.Row) (*Result, error) {
	res := &Result{
		Students:      make([]schema.Student, 0, len(rows)),
		Academic:      make([]schema.AcademicRecord, 0, len(rows)),
		Environmental: make([]schema.EnvironmentalFactors, 0, len(rows)),
	}
	for i, row := range rows {
		id := int64(i + 1)
		p := rowParser{row: row, index: i}

		student := schema.Student{
			ID:                   id,
			Gender:               schema.Gender(p.text(ColGender, "")),
			LearningDisabilities: schema.YesNo(p.text(ColLearningDisabilities, string(schema.DefaultLearningDisabilities))),
			DistanceFromHome:     schema.Distance(p.text(ColDistanceFromHome, string(schema.DefaultDistanceFromHome))),
		}

		academic := schema.AcademicRecord{
			StudentID:        id,
			HoursStudied:     p.requiredInt(ColHoursStudied),
			Attendance:       p.requiredInt(ColAttendance),
			PreviousScores:   p.requiredInt(ColPreviousScores),
			TutoringSessions: p.optionalInt(ColTutoringSessions, schema.DefaultTutoringSessions),
			ExamScore:        schema.IntPtr(p.requiredInt(ColExamScore)),
		}

		medium := string(schema.DefaultLevel)
		env := schema.EnvironmentalFactors{
			StudentID:                 id,
			ParentalInvolvement:       schema.Level(p.text(ColParentalInvolvement, medium)),
			AccessToResources:         schema.Level(p.text(ColAccessToResources, medium)),
			ExtracurricularActivities: schema.YesNo(p.text(ColExtracurricular, "")),
			SleepHours:                p.requiredInt(ColSleepHours),
			MotivationLevel:           schema.Level(p.text(ColMotivationLevel, medium)),
			InternetAccess:            schema.YesNo(p.text(ColInternetAccess, "")),
			FamilyIncome:              schema.Level(p.text(ColFamilyIncome, medium)),
			TeacherQuality:            schema.Level(p.text(ColTeacherQuality, medium)),
			SchoolType:                schema.SchoolType(p.text(ColSchoolType, "")),
			PeerInfluence:             schema.PeerInfluence(p.text(ColPeerInfluence, "")),
			PhysicalActivity:          p.requiredInt(ColPhysicalActivity),
			ParentalEducationLevel:    schema.EducationLevel(p.text(ColParentalEducationLevel, string(schema.DefaultParentalEducation))),
		}

		if p.err != nil {
			return nil, p.err
		}
		res.Students = append(res.Students, student)
		res.Academic = append(res.Academic, academic)
		res.Environmental = append(res.Environmental, env)
	}
	return res, nil
}

// rowParser reads typed fields from one row and keeps the first error.
type rowParser struct {
	row   dataset.Row
	index int
	err   error
}

func (p *rowParser) text(col, def string) string {
	if v, ok := p.row.Get(col); ok {
		return v
	}
	return def
}

func (p *rowParser) requiredInt(col string) int {
	v, ok := p.row.Get(col)
	if !ok {
		p.fail(col, "")
		return 0
	}
	return p.parseInt(col, v)
}

func (p *rowParser) optionalInt(col string, def int) int {
	v, ok := p.row.Get(col)
	if !ok {
		return def
	}
	return p.parseInt(col, v)
}

// parseInt accepts integer or floating point text and truncates toward zero.
// Values that do not fit in an int64 are malformed.
func (p *rowParser) parseInt(col, v string) int {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		p.fail(col, v)
		return 0
	}
	return int(math.Trunc(f))
}

func (p *rowParser) fail(col, v string) {
	if p.err == nil {
		p.err = &MalformedRecordError{Row: p.index, Field: col, Value: v}
	}
}
