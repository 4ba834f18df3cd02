package class

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/subject"
	"github.com/trezcool/alama/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("class")
	ErrClassExists       = errors.New("this class already exists for the subject, school year and term")
	ErrHasApprovedGrades = core.NewConflictError("class has approved grades")
)

type (
	Repository interface {
		// CheckClassUniqueness returns ErrClassExists when another class has the same subject, name,
		// school year & term.
		CheckClassUniqueness(ctx context.Context, cls Class) error
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// QueryClasses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on the class name, subject code or subject name.
		QueryClasses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		// DeleteClass removes the class along with its enrollments, grading scheme, scores & submissions.
		DeleteClass(ctx context.Context, id string) error
		HasApprovedSubmissions(ctx context.Context, classID string) (bool, error)

		// Enroll adds the students to the class, skipping the ones already enrolled.
		Enroll(ctx context.Context, classID string, studentIDs []string) (int, error)
		// Unenroll removes the students from the class, along with their scores in the grade types that
		// have no PENDING or APPROVED submission.
		Unenroll(ctx context.Context, classID string, studentIDs []string) (int, error)
		IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
		// Roster lists the students of the class, ordered by name.
		Roster(ctx context.Context, classID string) ([]Student, error)
	}

	Service interface {
		// CheckClass validates the references & uniqueness of cls.
		CheckClass(ctx context.Context, cls Class) error
		Create(ctx context.Context, nc NewClass) (Class, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetByID(ctx context.Context, id string) (Class, error)
		Update(ctx context.Context, cls Class, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, id string) error
		Enroll(ctx context.Context, classID string, e Enrollment) (int, error)
		Unenroll(ctx context.Context, classID string, e Enrollment) (int, error)
		IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
		Roster(ctx context.Context, classID string) ([]Student, error)
	}

	service struct {
		repo    Repository
		subjSvc subject.Service
		usrSvc  user.Service
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, subjSvc subject.Service, usrSvc user.Service) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(subjSvc, "subjSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
	).CheckAndPanic()

	return &service{repo: repo, subjSvc: subjSvc, usrSvc: usrSvc}
}

func (svc *service) CheckClass(ctx context.Context, cls Class) error {
	var fields []core.FieldError

	if _, err := svc.subjSvc.GetByID(ctx, cls.SubjectID); err != nil {
		if !core.IsNotFound(err) {
			return errors.Wrap(err, "finding subject")
		}
		fields = append(fields, core.FieldError{Field: "subject_id", Error: "subject not found"})
	}

	teacher, err := svc.usrSvc.GetByID(ctx, cls.TeacherID)
	switch {
	case err != nil && !core.IsNotFound(err):
		return errors.Wrap(err, "finding teacher")
	case err != nil, !teacher.IsActive:
		fields = append(fields, core.FieldError{Field: "teacher_id", Error: "teacher not found"})
	case !teacher.IsTeacher():
		fields = append(fields, core.FieldError{Field: "teacher_id", Error: "user is not a teacher"})
	}

	if len(fields) > 0 {
		return core.NewValidationError(errors.New(fields[0].Error), fields...)
	}

	if err = svc.repo.CheckClassUniqueness(ctx, cls); err != nil {
		if err == ErrClassExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return errors.Wrap(err, "checking uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	return svc.repo.CreateClass(ctx, Class{
		Name:       nc.Name,
		SubjectID:  nc.SubjectID,
		TeacherID:  nc.TeacherID,
		SchoolYear: nc.SchoolYear,
		Term:       nc.Term,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) Update(ctx context.Context, cls Class, uc UpdateClass) (Class, error) {
	cls.Name = uc.Name
	cls.SubjectID = uc.SubjectID
	cls.TeacherID = uc.TeacherID
	cls.SchoolYear = uc.SchoolYear
	cls.Term = uc.Term
	cls.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	approved, err := svc.repo.HasApprovedSubmissions(ctx, id)
	if err != nil {
		return errors.Wrap(err, "checking approved submissions")
	}
	if approved {
		return ErrHasApprovedGrades
	}
	return svc.repo.DeleteClass(ctx, id)
}

// Enroll enrolls the active students of e in the class; other users are reported as field errors.
func (svc *service) Enroll(ctx context.Context, classID string, e Enrollment) (int, error) {
	ids := dedupe(e.StudentIDs)
	for _, id := range ids {
		usr, err := svc.usrSvc.GetByID(ctx, id)
		if err != nil {
			if core.IsNotFound(err) {
				return 0, core.NewFieldError("student_ids", "student not found: "+id)
			}
			return 0, errors.Wrap(err, "finding student")
		}
		if !usr.IsActive || !usr.IsStudent() {
			return 0, core.NewFieldError("student_ids", "user is not a student: "+usr.DisplayName())
		}
	}
	return svc.repo.Enroll(ctx, classID, ids)
}

func (svc *service) Unenroll(ctx context.Context, classID string, e Enrollment) (int, error) {
	return svc.repo.Unenroll(ctx, classID, dedupe(e.StudentIDs))
}

func (svc *service) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	return svc.repo.IsEnrolled(ctx, classID, studentID)
}

func (svc *service) Roster(ctx context.Context, classID string) ([]Student, error) {
	return svc.repo.Roster(ctx, classID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
