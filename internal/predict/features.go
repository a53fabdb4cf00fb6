package predict

import (
	"fmt"

	"github.com/scorecast/scorecast/internal/schema"
)

// FeatureNames lists the model inputs in the order the model was trained on.
var FeatureNames = []string{
	"Hours_Studied",
	"Attendance",
	"Parental_Involvement",
	"Access_to_Resources",
	"Extracurricular_Activities",
	"Sleep_Hours",
	"Previous_Scores",
	"Motivation_Level",
	"Internet_Access",
	"Tutoring_Sessions",
	"Family_Income",
	"Teacher_Quality",
	"School_Type",
	"Peer_Influence",
	"Physical_Activity",
	"Learning_Disabilities",
	"Parental_Education_Level",
	"Distance_from_Home",
	"Gender",
}

var numericFeatures = map[string]bool{
	"Hours_Studied":     true,
	"Attendance":        true,
	"Sleep_Hours":       true,
	"Previous_Scores":   true,
	"Tutoring_Sessions": true,
	"Physical_Activity": true,
}

// IsNumeric reports whether the named feature is numeric rather than categorical.
func IsNumeric(name string) bool { return numericFeatures[name] }

const defaultSleepHours = 7

// Features maps each feature name to a float64 (numeric) or string
// (categorical) value.
type Features map[string]any

// Number returns a numeric feature, or 0 when it is absent or categorical.
func (f Features) Number(name string) float64 {
	v, _ := f[name].(float64)
	return v
}

// Category returns a categorical feature, or "" when it is absent or numeric.
func (f Features) Category(name string) string {
	v, _ := f[name].(string)
	return v
}

// Vector returns the values in FeatureNames order.
func (f Features) Vector() []any {
	out := make([]any, len(FeatureNames))
	for i, name := range FeatureNames {
		out[i] = f[name]
	}
	return out
}

// Validate checks that every feature is present with the right kind.
func (f Features) Validate() error {
	for _, name := range FeatureNames {
		v, ok := f[name]
		if !ok {
			return fmt.Errorf("feature %s is missing", name)
		}
		switch v.(type) {
		case float64:
			if !IsNumeric(name) {
				return fmt.Errorf("feature %s must be categorical", name)
			}
		case string:
			if IsNumeric(name) {
				return fmt.Errorf("feature %s must be numeric", name)
			}
		default:
			return fmt.Errorf("feature %s has unsupported type %T", name, v)
		}
	}
	return nil
}

// BuildFeatures maps a joined student record onto the model's 19 inputs,
// filling anything the record lacks with the training-time defaults.
func BuildFeatures(rec schema.CompleteStudent) Features {
	f := Features{
		"Gender":                category(string(rec.Gender), string(schema.GenderMale)),
		"Learning_Disabilities": category(string(rec.LearningDisabilities), string(schema.No)),
		"Distance_from_Home":    category(string(rec.DistanceFromHome), string(schema.DistanceModerate)),
	}

	var a schema.AcademicRecord
	if rec.Academic != nil {
		a = *rec.Academic
	}
	f["Hours_Studied"] = float64(a.HoursStudied)
	f["Attendance"] = float64(a.Attendance)
	f["Previous_Scores"] = float64(a.PreviousScores)
	f["Tutoring_Sessions"] = float64(a.TutoringSessions)

	e := schema.EnvironmentalFactors{SleepHours: defaultSleepHours}
	if rec.Environmental != nil {
		e = *rec.Environmental
		// Zero means unset; stored sleep_hours is always 4 to 12.
		if e.SleepHours == 0 {
			e.SleepHours = defaultSleepHours
		}
	}
	f["Sleep_Hours"] = float64(e.SleepHours)
	f["Physical_Activity"] = float64(e.PhysicalActivity)
	f["Parental_Involvement"] = category(string(e.ParentalInvolvement), string(schema.LevelMedium))
	f["Access_to_Resources"] = category(string(e.AccessToResources), string(schema.LevelMedium))
	f["Motivation_Level"] = category(string(e.MotivationLevel), string(schema.LevelMedium))
	f["Family_Income"] = category(string(e.FamilyIncome), string(schema.LevelMedium))
	f["Teacher_Quality"] = category(string(e.TeacherQuality), string(schema.LevelMedium))
	f["Extracurricular_Activities"] = category(string(e.ExtracurricularActivities), string(schema.No))
	f["Internet_Access"] = category(string(e.InternetAccess), string(schema.Yes))
	f["School_Type"] = category(string(e.SchoolType), string(schema.SchoolPublic))
	f["Peer_Influence"] = category(string(e.PeerInfluence), string(schema.PeerNeutral))
	f["Parental_Education_Level"] = category(string(e.ParentalEducationLevel), string(schema.EducationHighSchool))

	return f
}

func category(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
