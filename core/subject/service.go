package subject

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("subject")
	ErrCodeExists = errors.New("a subject with this code already exists")
	ErrHasClasses = core.NewConflictError("subject has classes")
)

type (
	Repository interface {
		// CheckCodeUniqueness returns ErrCodeExists when another subject (not in excluded) has code.
		CheckCodeUniqueness(ctx context.Context, code string, excluded []Subject) error
		CreateSubject(ctx context.Context, subj Subject) (Subject, error)
		// QuerySubjects does a case-insensitive match of QueryFilter.Search on Subject.Code or Subject.Name.
		QuerySubjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		UpdateSubject(ctx context.Context, subj Subject) (Subject, error)
		// DeleteSubjectsByID returns ErrHasClasses, deleting nothing, when any of the subjects still has classes.
		DeleteSubjectsByID(ctx context.Context, ids []string) (int, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, code string, excl ...Subject) error
		Create(ctx context.Context, ns NewSubject) (Subject, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subject, error)
		GetByID(ctx context.Context, id string) (Subject, error)
		Update(ctx context.Context, subj Subject, us UpdateSubject) (Subject, error)
		Delete(ctx context.Context, ids ...string) (int, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo}
}

func (svc *service) CheckUniqueness(ctx context.Context, code string, excl ...Subject) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, excl); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return errors.Wrap(err, "checking uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, ns NewSubject) (Subject, error) {
	now := time.Now().UTC()
	return svc.repo.CreateSubject(ctx, Subject{
		Code:        ns.Code,
		Name:        ns.Name,
		Description: ns.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *service) Update(ctx context.Context, subj Subject, us UpdateSubject) (Subject, error) {
	subj.Code = us.Code
	subj.Name = us.Name
	if us.Description != nil {
		subj.Description = *us.Description
	}
	subj.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, subj)
}

func (svc *service) Delete(ctx context.Context, ids ...string) (int, error) {
	return svc.repo.DeleteSubjectsByID(ctx, ids)
}
