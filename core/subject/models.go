package subject

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
)

type Subject struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewSubject contains information needed to create a new Subject.
type NewSubject struct {
	Code        string `json:"code" validate:"required,max=20,alphanum_"`
	Name        string `json:"name" validate:"required,notblank,max=150"`
	Description string `json:"description" validate:"max=1000"`
}

func (ns *NewSubject) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	ns.Code = cleanCode(ns.Code)
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ns.Code)
}

// UpdateSubject defines what information may be provided to modify an existing Subject.
// Blank fields keep their original values.
type UpdateSubject struct {
	Code        string  `json:"code" validate:"omitempty,max=20,alphanum_"`
	Name        string  `json:"name" validate:"omitempty,max=150"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

func (us *UpdateSubject) Validate(ctx context.Context, origSubj Subject, validate *validator.Validate, svc Service) error {
	if code := cleanCode(us.Code); code != "" {
		us.Code = code
	} else {
		us.Code = origSubj.Code
	}
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = origSubj.Name
	}
	if us.Description != nil {
		desc := core.CleanString(*us.Description)
		us.Description = &desc
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, us.Code, origSubj)
}

type QueryFilter struct {
	Search string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// OrderingFields are the subject columns a query may be ordered by.
var OrderingFields = []string{"code", "name", "created_at", "updated_at"}

func cleanCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}
