package class

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
)

// Terms
const (
	TermFirst  = "1ST"
	TermSecond = "2ND"
	TermSummer = "SUMMER"
)

var Terms = []string{TermFirst, TermSecond, TermSummer}

type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SubjectID    string    `json:"subject_id"`
	TeacherID    string    `json:"teacher_id"`
	SchoolYear   string    `json:"school_year"`
	Term         string    `json:"term"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	SubjectCode  string    `json:"subject_code"`
	SubjectName  string    `json:"subject_name"`
	TeacherName  string    `json:"teacher_name"`
	StudentCount int       `json:"student_count"`
}

// Title is the display name of the class, eg. "MATH101 - Section A".
func (c Class) Title() string {
	if c.SubjectCode == "" {
		return c.Name
	}
	return c.SubjectCode + " - " + c.Name
}

// Student is a member of a class roster.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name       string `json:"name" validate:"required,notblank,max=100"`
	SubjectID  string `json:"subject_id" validate:"required,uuid"`
	TeacherID  string `json:"teacher_id" validate:"required,uuid"`
	SchoolYear string `json:"school_year" validate:"required,schoolyear"`
	Term       string `json:"term" validate:"required,term"`
}

func (nc *NewClass) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nc.Name = core.CleanString(nc.Name)
	nc.SchoolYear = core.CleanString(nc.SchoolYear)
	nc.Term = toUpper(core.CleanString(nc.Term))

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckClass(ctx, Class{
		Name:       nc.Name,
		SubjectID:  nc.SubjectID,
		TeacherID:  nc.TeacherID,
		SchoolYear: nc.SchoolYear,
		Term:       nc.Term,
	})
}

// UpdateClass defines what information may be provided to modify an existing Class.
// Blank fields keep their original values.
type UpdateClass struct {
	Name       string `json:"name" validate:"omitempty,max=100"`
	SubjectID  string `json:"subject_id" validate:"omitempty,uuid"`
	TeacherID  string `json:"teacher_id" validate:"omitempty,uuid"`
	SchoolYear string `json:"school_year" validate:"omitempty,schoolyear"`
	Term       string `json:"term" validate:"omitempty,term"`
}

func (uc *UpdateClass) Validate(ctx context.Context, origCls Class, validate *validator.Validate, svc Service) error {
	uc.Name = orDefault(core.CleanString(uc.Name), origCls.Name)
	uc.SubjectID = orDefault(core.CleanString(uc.SubjectID), origCls.SubjectID)
	uc.TeacherID = orDefault(core.CleanString(uc.TeacherID), origCls.TeacherID)
	uc.SchoolYear = orDefault(core.CleanString(uc.SchoolYear), origCls.SchoolYear)
	uc.Term = orDefault(toUpper(core.CleanString(uc.Term)), origCls.Term)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	cls := origCls
	cls.Name = uc.Name
	cls.SubjectID = uc.SubjectID
	cls.TeacherID = uc.TeacherID
	cls.SchoolYear = uc.SchoolYear
	cls.Term = uc.Term
	return svc.CheckClass(ctx, cls)
}

// Enrollment lists the students to enroll in (or unenroll from) a class.
type Enrollment struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,uuid"`
}

func (e *Enrollment) Validate(validate *validator.Validate) error { return validate.Struct(e) }

type QueryFilter struct {
	Search     string `query:"search"`
	SubjectID  string `query:"subject"`
	TeacherID  string `query:"teacher"`
	StudentID  string `query:"student"`
	SchoolYear string `query:"school_year"`
	Term       string `query:"term"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.SchoolYear = core.CleanString(qf.SchoolYear)
	qf.Term = toUpper(core.CleanString(qf.Term))
}

// OrderingFields are the class columns a query may be ordered by.
var OrderingFields = []string{"name", "school_year", "term", "created_at", "updated_at"}

func orDefault(val, def string) string {
	if val != "" {
		return val
	}
	return def
}
