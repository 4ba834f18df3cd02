package submission

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/grading"
)

// Statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
)

var Statuses = []string{StatusPending, StatusApproved, StatusDeclined}

// Submission is a teacher's batch of grades for a class & grade type, awaiting admin approval.
type Submission struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	GradeTypeID string    `json:"grade_type_id"`
	TeacherID   string    `json:"teacher_id"`
	Status      string    `json:"status"`
	Remarks     string    `json:"remarks"`
	SubmittedAt time.Time `json:"submitted_at"` // UTC
	ReviewedBy  string    `json:"reviewed_by,omitempty"`
	ReviewedAt  time.Time `json:"reviewed_at"` // UTC; zero until reviewed

	ClassName     string  `json:"class_name"`
	SubjectCode   string  `json:"subject_code"`
	GradeTypeName string  `json:"grade_type_name"`
	TeacherName   string  `json:"teacher_name"`
	ReviewerName  string  `json:"reviewer_name,omitempty"`
	Grades        []Grade `json:"grades,omitempty"`
}

// ClassTitle is the display name of the submitted class.
func (s Submission) ClassTitle() string {
	return class.Class{Name: s.ClassName, SubjectCode: s.SubjectCode}.Title()
}

func (s Submission) IsPending() bool  { return s.Status == StatusPending }
func (s Submission) IsApproved() bool { return s.Status == StatusApproved }
func (s Submission) IsDeclined() bool { return s.Status == StatusDeclined }

// Grade is the snapshot of a student's computed grade at submission time.
type Grade struct {
	SubmissionID string  `json:"submission_id"`
	StudentID    string  `json:"student_id"`
	StudentName  string  `json:"student_name"`
	Percentage   float64 `json:"percentage"`
	GradePoint   float64 `json:"grade_point"`
	Remarks      string  `json:"remarks"`
}

func (g Grade) Result() grading.Result {
	return grading.Result{Percentage: g.Percentage, GradePoint: g.GradePoint, Remarks: g.Remarks}
}

// Decline holds the reason of a declined submission.
type Decline struct {
	Remarks string `json:"remarks" form:"remarks" validate:"max=1000"`
}

// Validate bounds the remarks; blank remarks are refused by Service.Decline.
func (d *Decline) Validate(validate *validator.Validate) error {
	d.Remarks = core.CleanString(d.Remarks)
	return validate.Struct(d)
}

type QueryFilter struct {
	Status      string `query:"status"`
	ClassID     string `query:"class"`
	GradeTypeID string `query:"grade_type"`
	TeacherID   string `query:"teacher"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status)
	if qf.Status != "" {
		qf.Status = strings.ToUpper(qf.Status)
	}
}

type (
	// GradeTypeGrade is the approved grade of a student for a grade type; Grade is nil until approved.
	GradeTypeGrade struct {
		GradeTypeID string          `json:"grade_type_id"`
		Name        string          `json:"name"`
		Weight      float64         `json:"weight"`
		Grade       *grading.Result `json:"grade"`
	}

	// ClassGrades holds the approved grades of a student in a class.
	// Final is set once every grade type of a complete scheme is approved.
	ClassGrades struct {
		Class      class.Class      `json:"class"`
		GradeTypes []GradeTypeGrade `json:"grade_types"`
		Final      *grading.Result  `json:"final"`
	}
)
