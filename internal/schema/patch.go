package schema

// StudentPatch lists the Student fields an update may change. Nil fields are
// left untouched.
type StudentPatch struct {
	Gender               *Gender   `json:"gender,omitempty" validate:"omitempty,oneof=Male Female"`
	LearningDisabilities *YesNo    `json:"learning_disabilities,omitempty" validate:"omitempty,oneof=Yes No"`
	DistanceFromHome     *Distance `json:"distance_from_home,omitempty" validate:"omitempty,oneof=Near Moderate Far"`
}

// Apply returns s with the patch merged in.
func (p StudentPatch) Apply(s Student) Student {
	if p.Gender != nil {
		s.Gender = *p.Gender
	}
	if p.LearningDisabilities != nil {
		s.LearningDisabilities = *p.LearningDisabilities
	}
	if p.DistanceFromHome != nil {
		s.DistanceFromHome = *p.DistanceFromHome
	}
	return s
}

// Empty reports whether the patch changes nothing.
func (p StudentPatch) Empty() bool {
	return p.Gender == nil && p.LearningDisabilities == nil && p.DistanceFromHome == nil
}

// AcademicPatch lists the AcademicRecord fields an update may change.
type AcademicPatch struct {
	HoursStudied     *int `json:"hours_studied,omitempty" validate:"omitempty,min=0"`
	Attendance       *int `json:"attendance,omitempty" validate:"omitempty,min=0,max=100"`
	PreviousScores   *int `json:"previous_scores,omitempty" validate:"omitempty,min=0,max=100"`
	TutoringSessions *int `json:"tutoring_sessions,omitempty" validate:"omitempty,min=0"`
	ExamScore        *int `json:"exam_score,omitempty" validate:"omitempty,min=0,max=110"`
}

// Apply returns a with the patch merged in.
func (p AcademicPatch) Apply(a AcademicRecord) AcademicRecord {
	setInt(&a.HoursStudied, p.HoursStudied)
	setInt(&a.Attendance, p.Attendance)
	setInt(&a.PreviousScores, p.PreviousScores)
	setInt(&a.TutoringSessions, p.TutoringSessions)
	if p.ExamScore != nil {
		a.ExamScore = IntPtr(*p.ExamScore)
	}
	return a
}

// EnvironmentalPatch lists the EnvironmentalFactors fields an update may change.
type EnvironmentalPatch struct {
	ParentalInvolvement       *Level          `json:"parental_involvement,omitempty" validate:"omitempty,oneof=Low Medium High"`
	AccessToResources         *Level          `json:"access_to_resources,omitempty" validate:"omitempty,oneof=Low Medium High"`
	ExtracurricularActivities *YesNo          `json:"extracurricular_activities,omitempty" validate:"omitempty,oneof=Yes No"`
	SleepHours                *int            `json:"sleep_hours,omitempty" validate:"omitempty,min=4,max=12"`
	MotivationLevel           *Level          `json:"motivation_level,omitempty" validate:"omitempty,oneof=Low Medium High"`
	InternetAccess            *YesNo          `json:"internet_access,omitempty" validate:"omitempty,oneof=Yes No"`
	FamilyIncome              *Level          `json:"family_income,omitempty" validate:"omitempty,oneof=Low Medium High"`
	TeacherQuality            *Level          `json:"teacher_quality,omitempty" validate:"omitempty,oneof=Low Medium High"`
	SchoolType                *SchoolType     `json:"school_type,omitempty" validate:"omitempty,oneof=Public Private"`
	PeerInfluence             *PeerInfluence  `json:"peer_influence,omitempty" validate:"omitempty,oneof=Positive Neutral Negative"`
	PhysicalActivity          *int            `json:"physical_activity,omitempty" validate:"omitempty,min=0,max=10"`
	ParentalEducationLevel    *EducationLevel `json:"parental_education_level,omitempty" validate:"omitempty,oneof='High School' College Postgraduate"`
}

// Apply returns e with the patch merged in.
func (p EnvironmentalPatch) Apply(e EnvironmentalFactors) EnvironmentalFactors {
	setVal(&e.ParentalInvolvement, p.ParentalInvolvement)
	setVal(&e.AccessToResources, p.AccessToResources)
	setVal(&e.ExtracurricularActivities, p.ExtracurricularActivities)
	setInt(&e.SleepHours, p.SleepHours)
	setVal(&e.MotivationLevel, p.MotivationLevel)
	setVal(&e.InternetAccess, p.InternetAccess)
	setVal(&e.FamilyIncome, p.FamilyIncome)
	setVal(&e.TeacherQuality, p.TeacherQuality)
	setVal(&e.SchoolType, p.SchoolType)
	setVal(&e.PeerInfluence, p.PeerInfluence)
	setInt(&e.PhysicalActivity, p.PhysicalActivity)
	setVal(&e.ParentalEducationLevel, p.ParentalEducationLevel)
	return e
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setVal[T ~string](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
