package grading

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
)

// FullWeight is the weight sum of a complete level of a grading scheme.
const FullWeight = 100.0

type (
	// GradeType is a grading period (eg. Midterm, Final) of a class.
	GradeType struct {
		ID       string      `json:"id"`
		ClassID  string      `json:"class_id"`
		Name     string      `json:"name"`
		Weight   float64     `json:"weight"`
		Position int         `json:"position"`
		Criteria []Criterion `json:"criteria"`
	}

	// Criterion is a weighted part of a grade type (eg. Quizzes, Exams).
	Criterion struct {
		ID          string      `json:"id"`
		GradeTypeID string      `json:"grade_type_id"`
		ClassID     string      `json:"-"`
		Name        string      `json:"name"`
		Weight      float64     `json:"weight"`
		Position    int         `json:"position"`
		Components  []Component `json:"components"`
	}

	// Component is a scored item of a criterion (eg. Quiz 1).
	Component struct {
		ID          string  `json:"id"`
		CriterionID string  `json:"criterion_id"`
		GradeTypeID string  `json:"-"`
		ClassID     string  `json:"-"`
		Name        string  `json:"name"`
		MaxScore    float64 `json:"max_score"`
		Position    int     `json:"position"`
	}

	Score struct {
		ComponentID string    `json:"component_id"`
		StudentID   string    `json:"student_id"`
		Score       float64   `json:"score"`
		UpdatedAt   time.Time `json:"updated_at"` // UTC
	}

	// Scheme is the grading scheme of a class, ordered by position then name at every level.
	Scheme struct {
		ClassID    string      `json:"class_id"`
		GradeTypes []GradeType `json:"grade_types"`
	}
)

func (gt GradeType) CriteriaWeight() float64 {
	var sum float64
	for _, c := range gt.Criteria {
		sum += c.Weight
	}
	return core.Round2(sum)
}

// Complete reports whether the criteria weights of gt sum up to 100%.
func (gt GradeType) Complete() bool {
	return gt.CriteriaWeight() == FullWeight
}

func (s Scheme) GradeTypesWeight() float64 {
	var sum float64
	for _, gt := range s.GradeTypes {
		sum += gt.Weight
	}
	return core.Round2(sum)
}

// Complete reports whether all the weight sums of s are exactly 100%.
func (s Scheme) Complete() bool {
	if s.GradeTypesWeight() != FullWeight {
		return false
	}
	for _, gt := range s.GradeTypes {
		if !gt.Complete() {
			return false
		}
	}
	return true
}

func (s Scheme) GradeType(id string) (GradeType, bool) {
	for _, gt := range s.GradeTypes {
		if gt.ID == id {
			return gt, true
		}
	}
	return GradeType{}, false
}

// Component looks up a component of s by ID.
func (s Scheme) Component(id string) (Component, bool) {
	for _, gt := range s.GradeTypes {
		for _, c := range gt.Criteria {
			for _, comp := range c.Components {
				if comp.ID == id {
					comp.GradeTypeID = gt.ID
					comp.ClassID = gt.ClassID
					return comp, true
				}
			}
		}
	}
	return Component{}, false
}

// GradeTypeInput defines the information needed to add or modify a GradeType.
type GradeTypeInput struct {
	Name     string  `json:"name" validate:"required,notblank,max=100"`
	Weight   float64 `json:"weight" validate:"percent"`
	Position int     `json:"position" validate:"gte=0"`
}

func (in *GradeTypeInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Weight = core.Round2(in.Weight)
	return validate.Struct(in)
}

// CriterionInput defines the information needed to add or modify a Criterion.
type CriterionInput struct {
	Name     string  `json:"name" validate:"required,notblank,max=100"`
	Weight   float64 `json:"weight" validate:"percent"`
	Position int     `json:"position" validate:"gte=0"`
}

func (in *CriterionInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Weight = core.Round2(in.Weight)
	return validate.Struct(in)
}

// ComponentInput defines the information needed to add or modify a Component.
type ComponentInput struct {
	Name     string  `json:"name" validate:"required,notblank,max=100"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
	Position int     `json:"position" validate:"gte=0"`
}

func (in *ComponentInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	return validate.Struct(in)
}

// ScoreInput records (or clears, when Score is nil) the score of a student on a component.
type ScoreInput struct {
	ComponentID string   `json:"component_id" validate:"required"`
	StudentID   string   `json:"student_id" validate:"required"`
	Score       *float64 `json:"score" validate:"omitempty,gte=0"`
}

type RecordScores struct {
	Scores []ScoreInput `json:"scores" validate:"required,min=1,dive"`
}

func (rs *RecordScores) Validate(validate *validator.Validate) error { return validate.Struct(rs) }

type (
	// CriterionResult is the computed percentage of a student on a criterion.
	CriterionResult struct {
		CriterionID string  `json:"criterion_id"`
		Name        string  `json:"name"`
		Weight      float64 `json:"weight"`
		Percentage  float64 `json:"percentage"`
	}

	SheetRow struct {
		Student  class.Student     `json:"student"`
		Criteria []CriterionResult `json:"criteria"`
		Result
	}

	// GradeSheet holds the computed grades of every enrolled student of a class for a grade type.
	GradeSheet struct {
		Class     class.Class `json:"class"`
		GradeType GradeType   `json:"grade_type"`
		Complete  bool        `json:"complete"`
		Rows      []SheetRow  `json:"rows"`
	}
)

// Row returns the row of studentID.
func (gs GradeSheet) Row(studentID string) (SheetRow, bool) {
	for _, row := range gs.Rows {
		if row.Student.ID == studentID {
			return row, true
		}
	}
	return SheetRow{}, false
}

// NewGradeSheet computes the grade sheet of the students for gt.
func NewGradeSheet(cls class.Class, gt GradeType, students []class.Student, sheet ScoreSheet, scale Scale) GradeSheet {
	gs := GradeSheet{Class: cls, GradeType: gt, Complete: gt.Complete(), Rows: make([]SheetRow, 0, len(students))}
	for _, st := range students {
		row := SheetRow{Student: st, Criteria: make([]CriterionResult, 0, len(gt.Criteria))}
		for _, c := range gt.Criteria {
			row.Criteria = append(row.Criteria, CriterionResult{
				CriterionID: c.ID,
				Name:        c.Name,
				Weight:      c.Weight,
				Percentage:  CriterionPercentage(c, st.ID, sheet),
			})
		}
		row.Result = scale.Result(GradeTypePercentage(gt, st.ID, sheet))
		gs.Rows = append(gs.Rows, row)
	}
	return gs
}

type (
	// GradeTypeResult is the computed grade of a student for a grade type.
	GradeTypeResult struct {
		GradeTypeID string  `json:"grade_type_id"`
		Name        string  `json:"name"`
		Weight      float64 `json:"weight"`
		Result
	}

	FinalRow struct {
		Student    class.Student     `json:"student"`
		GradeTypes []GradeTypeResult `json:"grade_types"`
		Final      Result            `json:"final"`
	}

	// ClassSheet holds the final grades of every enrolled student of a class, computed over all its grade
	// types whatever their submission status.
	ClassSheet struct {
		Class    class.Class `json:"class"`
		Complete bool        `json:"complete"`
		Rows     []FinalRow  `json:"rows"`
	}
)

// Row returns the row of studentID.
func (cs ClassSheet) Row(studentID string) (FinalRow, bool) {
	for _, row := range cs.Rows {
		if row.Student.ID == studentID {
			return row, true
		}
	}
	return FinalRow{}, false
}

// NewClassSheet computes the final grades of the students over every grade type of scheme.
func NewClassSheet(cls class.Class, scheme Scheme, students []class.Student, sheet ScoreSheet, scale Scale) ClassSheet {
	cs := ClassSheet{Class: cls, Complete: scheme.Complete(), Rows: make([]FinalRow, 0, len(students))}
	for _, st := range students {
		row := FinalRow{Student: st, GradeTypes: make([]GradeTypeResult, 0, len(scheme.GradeTypes))}
		parts := make([]WeightedPercentage, 0, len(scheme.GradeTypes))
		for _, gt := range scheme.GradeTypes {
			res := scale.Result(GradeTypePercentage(gt, st.ID, sheet))
			row.GradeTypes = append(row.GradeTypes, GradeTypeResult{GradeTypeID: gt.ID, Name: gt.Name, Weight: gt.Weight, Result: res})
			parts = append(parts, WeightedPercentage{Percentage: res.Percentage, Weight: gt.Weight})
		}
		row.Final = scale.Result(FinalPercentage(parts...))
		cs.Rows = append(cs.Rows, row)
	}
	return cs
}

func remainingWeightError(sum float64) error {
	remaining := core.Round2(FullWeight - sum)
	if remaining < 0 {
		remaining = 0
	}
	msg := fmt.Sprintf("weights must not exceed 100%%, %s%% remaining", formatWeight(remaining))
	return core.NewFieldError("weight", msg)
}

func formatWeight(w float64) string {
	if w == float64(int64(w)) {
		return fmt.Sprintf("%d", int64(w))
	}
	return fmt.Sprintf("%.2f", w)
}

// CheckSiblings ensures adding weight to the sum of the sibling weights stays <= 100%.
// Repositories run it again inside their writes, against the stored siblings.
func CheckSiblings(siblingsSum, weight float64) error {
	if core.Round2(siblingsSum+weight) > FullWeight {
		return remainingWeightError(siblingsSum)
	}
	return nil
}
