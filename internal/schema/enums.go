package schema

// Gender of a student.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// YesNo is a binary categorical answer.
type YesNo string

const (
	Yes YesNo = "Yes"
	No  YesNo = "No"
)

// Distance from home to school.
type Distance string

const (
	DistanceNear     Distance = "Near"
	DistanceModerate Distance = "Moderate"
	DistanceFar      Distance = "Far"
)

// Level is the Low/Medium/High ordinal used by several environmental factors.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// SchoolType is public or private.
type SchoolType string

const (
	SchoolPublic  SchoolType = "Public"
	SchoolPrivate SchoolType = "Private"
)

// PeerInfluence describes the peer group's effect.
type PeerInfluence string

const (
	PeerPositive PeerInfluence = "Positive"
	PeerNeutral  PeerInfluence = "Neutral"
	PeerNegative PeerInfluence = "Negative"
)

// EducationLevel is the highest parental education level.
type EducationLevel string

const (
	EducationHighSchool   EducationLevel = "High School"
	EducationCollege      EducationLevel = "College"
	EducationPostgraduate EducationLevel = "Postgraduate"
)

// Defaults substituted when a source value is missing.
const (
	DefaultLearningDisabilities = No
	DefaultDistanceFromHome     = DistanceModerate
	DefaultLevel                = LevelMedium
	DefaultParentalEducation    = EducationHighSchool
	DefaultTutoringSessions     = 0
)

// Enum value sets, keyed by column name, used for DDL-independent checks
// such as document-store validators.
var EnumValues = map[string][]string{
	"gender":                     {string(GenderMale), string(GenderFemale)},
	"learning_disabilities":      {string(Yes), string(No)},
	"distance_from_home":         {string(DistanceNear), string(DistanceModerate), string(DistanceFar)},
	"parental_involvement":       levels(),
	"access_to_resources":        levels(),
	"motivation_level":           levels(),
	"family_income":              levels(),
	"teacher_quality":            levels(),
	"extracurricular_activities": {string(Yes), string(No)},
	"internet_access":            {string(Yes), string(No)},
	"school_type":                {string(SchoolPublic), string(SchoolPrivate)},
	"peer_influence":             {string(PeerPositive), string(PeerNeutral), string(PeerNegative)},
	"parental_education_level":   {string(EducationHighSchool), string(EducationCollege), string(EducationPostgraduate)},
}

func levels() []string {
	return []string{string(LevelLow), string(LevelMedium), string(LevelHigh)}
}
