// Package dashboard provides the figures shown on the admin dashboard.
package dashboard

import (
	"context"

	"github.com/kat-co/vala"
)

type Stats struct {
	Admins   int `json:"admins" db:"admins"`
	Teachers int `json:"teachers" db:"teachers"`
	Students int `json:"students" db:"students"`
	Subjects int `json:"subjects" db:"subjects"`
	Classes  int `json:"classes" db:"classes"`
	Pending  int `json:"pending_submissions" db:"pending"`
	Approved int `json:"approved_submissions" db:"approved"`
	Declined int `json:"declined_submissions" db:"declined"`
}

type (
	Repository interface {
		// Stats counts active users per role, subjects, classes and submissions per status.
		Stats(ctx context.Context) (Stats, error)
	}

	Service interface {
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		repo Repository
	}
)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo}
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.Stats(ctx)
}
