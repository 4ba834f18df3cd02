package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/services/telemetry"
)

var (
	// errors
	ErrGradeTypeNotFound = core.NewNotFoundError("grade type")
	ErrCriterionNotFound = core.NewNotFoundError("grading criterion")
	ErrComponentNotFound = core.NewNotFoundError("component")
)

type (
	Repository interface {
		// Scheme returns the grading scheme of the class, ordered by position then name at every level.
		Scheme(ctx context.Context, classID string) (Scheme, error)

		// GetGradeType returns the grade type along with its criteria & components.
		GetGradeType(ctx context.Context, id string) (GradeType, error)
		// CreateGradeType & UpdateGradeType apply CheckSiblings to the other grade types of the class
		// atomically with the write.
		CreateGradeType(ctx context.Context, gt GradeType) (GradeType, error)
		UpdateGradeType(ctx context.Context, gt GradeType) (GradeType, error)
		// DeleteGradeType removes the grade type with its criteria, components, scores & submissions.
		DeleteGradeType(ctx context.Context, id string) error

		// GetCriterion returns the criterion along with its components.
		GetCriterion(ctx context.Context, id string) (Criterion, error)
		// CreateCriterion & UpdateCriterion apply CheckSiblings to the other criteria of the grade type
		// atomically with the write.
		CreateCriterion(ctx context.Context, c Criterion) (Criterion, error)
		UpdateCriterion(ctx context.Context, c Criterion) (Criterion, error)
		DeleteCriterion(ctx context.Context, id string) error

		GetComponent(ctx context.Context, id string) (Component, error)
		CreateComponent(ctx context.Context, comp Component) (Component, error)
		UpdateComponent(ctx context.Context, comp Component) (Component, error)
		DeleteComponent(ctx context.Context, id string) error

		// IsLocked reports whether the grade type has a PENDING or APPROVED submission.
		IsLocked(ctx context.Context, gradeTypeID string) (bool, error)

		Scores(ctx context.Context, classID string) ([]Score, error)
		// SaveScores upserts scores & deletes the cleared ones in a single transaction.
		SaveScores(ctx context.Context, scores []Score, cleared []ScoreKey) error
	}

	Service interface {
		Scheme(ctx context.Context, classID string) (Scheme, error)

		GetGradeType(ctx context.Context, id string) (GradeType, error)
		AddGradeType(ctx context.Context, classID string, in GradeTypeInput) (GradeType, error)
		UpdateGradeType(ctx context.Context, id string, in GradeTypeInput) (GradeType, error)
		DeleteGradeType(ctx context.Context, id string) error

		GetCriterion(ctx context.Context, id string) (Criterion, error)
		AddCriterion(ctx context.Context, gradeTypeID string, in CriterionInput) (Criterion, error)
		UpdateCriterion(ctx context.Context, id string, in CriterionInput) (Criterion, error)
		DeleteCriterion(ctx context.Context, id string) error

		GetComponent(ctx context.Context, id string) (Component, error)
		AddComponent(ctx context.Context, criterionID string, in ComponentInput) (Component, error)
		UpdateComponent(ctx context.Context, id string, in ComponentInput) (Component, error)
		DeleteComponent(ctx context.Context, id string) error

		IsLocked(ctx context.Context, gradeTypeID string) (bool, error)
		Scores(ctx context.Context, classID string) ([]Score, error)
		RecordScores(ctx context.Context, classID string, rs RecordScores) error

		// GradeSheet computes the grades of every enrolled student of the class for the grade type.
		GradeSheet(ctx context.Context, classID, gradeTypeID string) (GradeSheet, error)
		// ClassSheet computes the final grades of every enrolled student of the class over all its grade types.
		ClassSheet(ctx context.Context, classID string) (ClassSheet, error)
		Scale() Scale
	}

	service struct {
		repo   Repository
		clsSvc class.Service
		scale  Scale
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, clsSvc class.Service) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(clsSvc, "clsSvc"),
	).CheckAndPanic()

	return &service{repo: repo, clsSvc: clsSvc, scale: DefaultScale}
}

func (svc *service) Scale() Scale { return svc.scale }

func (svc *service) Scheme(ctx context.Context, classID string) (Scheme, error) {
	return svc.repo.Scheme(ctx, classID)
}

// checkUnlocked returns core.ErrLocked when the grade type has a PENDING or APPROVED submission.
func (svc *service) checkUnlocked(ctx context.Context, gradeTypeID string) error {
	locked, err := svc.repo.IsLocked(ctx, gradeTypeID)
	if err != nil {
		return errors.Wrap(err, "checking grade type lock")
	}
	if locked {
		return core.ErrLocked
	}
	return nil
}

// Grade Types

func (svc *service) GetGradeType(ctx context.Context, id string) (GradeType, error) {
	return svc.repo.GetGradeType(ctx, id)
}

func (svc *service) AddGradeType(ctx context.Context, classID string, in GradeTypeInput) (GradeType, error) {
	scheme, err := svc.repo.Scheme(ctx, classID)
	if err != nil {
		return GradeType{}, errors.Wrap(err, "loading scheme")
	}
	if err = CheckSiblings(scheme.GradeTypesWeight(), in.Weight); err != nil {
		return GradeType{}, err
	}
	return svc.repo.CreateGradeType(ctx, GradeType{
		ClassID:  classID,
		Name:     in.Name,
		Weight:   in.Weight,
		Position: in.Position,
	})
}

func (svc *service) UpdateGradeType(ctx context.Context, id string, in GradeTypeInput) (GradeType, error) {
	gt, err := svc.repo.GetGradeType(ctx, id)
	if err != nil {
		return GradeType{}, err
	}
	if err = svc.checkUnlocked(ctx, gt.ID); err != nil {
		return GradeType{}, err
	}
	scheme, err := svc.repo.Scheme(ctx, gt.ClassID)
	if err != nil {
		return GradeType{}, errors.Wrap(err, "loading scheme")
	}
	if err = CheckSiblings(scheme.GradeTypesWeight()-gt.Weight, in.Weight); err != nil {
		return GradeType{}, err
	}

	gt.Name = in.Name
	gt.Weight = in.Weight
	gt.Position = in.Position
	return svc.repo.UpdateGradeType(ctx, gt)
}

func (svc *service) DeleteGradeType(ctx context.Context, id string) error {
	if _, err := svc.repo.GetGradeType(ctx, id); err != nil {
		return err
	}
	if err := svc.checkUnlocked(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteGradeType(ctx, id)
}

// Criteria

func (svc *service) GetCriterion(ctx context.Context, id string) (Criterion, error) {
	return svc.repo.GetCriterion(ctx, id)
}

func (svc *service) AddCriterion(ctx context.Context, gradeTypeID string, in CriterionInput) (Criterion, error) {
	gt, err := svc.repo.GetGradeType(ctx, gradeTypeID)
	if err != nil {
		return Criterion{}, err
	}
	if err = svc.checkUnlocked(ctx, gt.ID); err != nil {
		return Criterion{}, err
	}
	if err = CheckSiblings(gt.CriteriaWeight(), in.Weight); err != nil {
		return Criterion{}, err
	}
	return svc.repo.CreateCriterion(ctx, Criterion{
		GradeTypeID: gt.ID,
		ClassID:     gt.ClassID,
		Name:        in.Name,
		Weight:      in.Weight,
		Position:    in.Position,
	})
}

func (svc *service) UpdateCriterion(ctx context.Context, id string, in CriterionInput) (Criterion, error) {
	c, err := svc.repo.GetCriterion(ctx, id)
	if err != nil {
		return Criterion{}, err
	}
	gt, err := svc.repo.GetGradeType(ctx, c.GradeTypeID)
	if err != nil {
		return Criterion{}, errors.Wrap(err, "finding grade type")
	}
	if err = svc.checkUnlocked(ctx, gt.ID); err != nil {
		return Criterion{}, err
	}
	if err = CheckSiblings(gt.CriteriaWeight()-c.Weight, in.Weight); err != nil {
		return Criterion{}, err
	}

	c.Name = in.Name
	c.Weight = in.Weight
	c.Position = in.Position
	return svc.repo.UpdateCriterion(ctx, c)
}

func (svc *service) DeleteCriterion(ctx context.Context, id string) error {
	c, err := svc.repo.GetCriterion(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.checkUnlocked(ctx, c.GradeTypeID); err != nil {
		return err
	}
	return svc.repo.DeleteCriterion(ctx, id)
}

// Components

func (svc *service) GetComponent(ctx context.Context, id string) (Component, error) {
	return svc.repo.GetComponent(ctx, id)
}

func (svc *service) AddComponent(ctx context.Context, criterionID string, in ComponentInput) (Component, error) {
	c, err := svc.repo.GetCriterion(ctx, criterionID)
	if err != nil {
		return Component{}, err
	}
	if err = svc.checkUnlocked(ctx, c.GradeTypeID); err != nil {
		return Component{}, err
	}
	return svc.repo.CreateComponent(ctx, Component{
		CriterionID: c.ID,
		GradeTypeID: c.GradeTypeID,
		ClassID:     c.ClassID,
		Name:        in.Name,
		MaxScore:    in.MaxScore,
		Position:    in.Position,
	})
}

func (svc *service) UpdateComponent(ctx context.Context, id string, in ComponentInput) (Component, error) {
	comp, err := svc.repo.GetComponent(ctx, id)
	if err != nil {
		return Component{}, err
	}
	if err = svc.checkUnlocked(ctx, comp.GradeTypeID); err != nil {
		return Component{}, err
	}
	if in.MaxScore < comp.MaxScore {
		if err = svc.checkMaxScore(ctx, comp, in.MaxScore); err != nil {
			return Component{}, err
		}
	}

	comp.Name = in.Name
	comp.MaxScore = in.MaxScore
	comp.Position = in.Position
	return svc.repo.UpdateComponent(ctx, comp)
}

// checkMaxScore refuses lowering the max score of comp below an already recorded score.
func (svc *service) checkMaxScore(ctx context.Context, comp Component, maxScore float64) error {
	scores, err := svc.repo.Scores(ctx, comp.ClassID)
	if err != nil {
		return errors.Wrap(err, "loading scores")
	}
	for _, s := range scores {
		if s.ComponentID == comp.ID && s.Score > maxScore {
			return core.NewFieldError("max_score", "max score is lower than recorded scores")
		}
	}
	return nil
}

func (svc *service) DeleteComponent(ctx context.Context, id string) error {
	comp, err := svc.repo.GetComponent(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.checkUnlocked(ctx, comp.GradeTypeID); err != nil {
		return err
	}
	return svc.repo.DeleteComponent(ctx, id)
}

// Scores

func (svc *service) IsLocked(ctx context.Context, gradeTypeID string) (bool, error) {
	return svc.repo.IsLocked(ctx, gradeTypeID)
}

func (svc *service) Scores(ctx context.Context, classID string) ([]Score, error) {
	return svc.repo.Scores(ctx, classID)
}

// RecordScores validates every input against the class scheme & roster before saving them all at once.
func (svc *service) RecordScores(ctx context.Context, classID string, rs RecordScores) error {
	ctx, span := telemetry.StartSpan(ctx, "grading.RecordScores",
		attribute.String("class.id", classID),
		attribute.Int("scores", len(rs.Scores)),
	)
	err := svc.recordScores(ctx, classID, rs)
	telemetry.EndSpan(span, err)
	return err
}

func (svc *service) recordScores(ctx context.Context, classID string, rs RecordScores) error {
	scheme, err := svc.repo.Scheme(ctx, classID)
	if err != nil {
		return errors.Wrap(err, "loading scheme")
	}
	roster, err := svc.clsSvc.Roster(ctx, classID)
	if err != nil {
		return errors.Wrap(err, "loading roster")
	}
	enrolled := make(map[string]bool, len(roster))
	for _, st := range roster {
		enrolled[st.ID] = true
	}

	var (
		fields  []core.FieldError
		scores  []Score
		cleared []ScoreKey
		locks   = make(map[string]bool)
		now     = time.Now().UTC()
	)
	for i, in := range rs.Scores {
		comp, ok := scheme.Component(in.ComponentID)
		if !ok {
			fields = append(fields, core.FieldError{Field: fmt.Sprintf("scores[%d].component_id", i), Error: "component not found"})
			continue
		}
		if !enrolled[in.StudentID] {
			fields = append(fields, core.FieldError{Field: fmt.Sprintf("scores[%d].student_id", i), Error: "student is not enrolled"})
			continue
		}
		locked, seen := locks[comp.GradeTypeID]
		if !seen {
			if locked, err = svc.repo.IsLocked(ctx, comp.GradeTypeID); err != nil {
				return errors.Wrap(err, "checking grade type lock")
			}
			locks[comp.GradeTypeID] = locked
		}
		if locked {
			return core.ErrLocked
		}

		if in.Score == nil {
			cleared = append(cleared, ScoreKey{ComponentID: comp.ID, StudentID: in.StudentID})
			continue
		}
		if *in.Score < 0 || *in.Score > comp.MaxScore {
			msg := fmt.Sprintf("score must be between 0 and %s", formatWeight(comp.MaxScore))
			fields = append(fields, core.FieldError{Field: fmt.Sprintf("scores[%d].score", i), Error: msg})
			continue
		}
		scores = append(scores, Score{ComponentID: comp.ID, StudentID: in.StudentID, Score: *in.Score, UpdatedAt: now})
	}

	if len(fields) > 0 {
		return core.NewValidationError(errors.New(fields[0].Error), fields...)
	}
	return svc.repo.SaveScores(ctx, scores, cleared)
}

func (svc *service) GradeSheet(ctx context.Context, classID, gradeTypeID string) (GradeSheet, error) {
	cls, err := svc.clsSvc.GetByID(ctx, classID)
	if err != nil {
		return GradeSheet{}, err
	}
	gt, err := svc.repo.GetGradeType(ctx, gradeTypeID)
	if err != nil {
		return GradeSheet{}, err
	}
	if gt.ClassID != cls.ID {
		return GradeSheet{}, ErrGradeTypeNotFound
	}
	roster, err := svc.clsSvc.Roster(ctx, classID)
	if err != nil {
		return GradeSheet{}, errors.Wrap(err, "loading roster")
	}
	scores, err := svc.repo.Scores(ctx, classID)
	if err != nil {
		return GradeSheet{}, errors.Wrap(err, "loading scores")
	}
	return NewGradeSheet(cls, gt, roster, NewScoreSheet(scores), svc.scale), nil
}

func (svc *service) ClassSheet(ctx context.Context, classID string) (ClassSheet, error) {
	cls, err := svc.clsSvc.GetByID(ctx, classID)
	if err != nil {
		return ClassSheet{}, err
	}
	scheme, err := svc.repo.Scheme(ctx, cls.ID)
	if err != nil {
		return ClassSheet{}, errors.Wrap(err, "loading scheme")
	}
	roster, err := svc.clsSvc.Roster(ctx, cls.ID)
	if err != nil {
		return ClassSheet{}, errors.Wrap(err, "loading roster")
	}
	scores, err := svc.repo.Scores(ctx, cls.ID)
	if err != nil {
		return ClassSheet{}, errors.Wrap(err, "loading scores")
	}
	return NewClassSheet(cls, scheme, roster, NewScoreSheet(scores), svc.scale), nil
}
