package grading

import (
	"github.com/shopspring/decimal"

	"github.com/trezcool/alama/core"
)

const (
	RemarksPassed = "PASSED"
	RemarksFailed = "FAILED"

	// PassingGradePoint is the highest (worst) grade point that still passes.
	PassingGradePoint = 3.00
)

type (
	// Band maps every percentage >= Min to Point.
	Band struct {
		Min   float64 `json:"min"`
		Point float64 `json:"point"`
	}

	// Scale is a list of bands ordered by Min, descending.
	Scale []Band

	// Result is a computed percentage with its grade point.
	Result struct {
		Percentage float64 `json:"percentage"`
		GradePoint float64 `json:"grade_point"`
		Remarks    string  `json:"remarks"`
	}

	// ScoreKey identifies the score of a student on a component.
	ScoreKey struct {
		ComponentID string
		StudentID   string
	}

	// ScoreSheet holds recorded scores; a missing key is an unrecorded score.
	ScoreSheet map[ScoreKey]float64
)

var hundred = decimal.NewFromInt(100)

var DefaultScale = Scale{
	{Min: 97, Point: 1.00},
	{Min: 94, Point: 1.25},
	{Min: 91, Point: 1.50},
	{Min: 88, Point: 1.75},
	{Min: 85, Point: 2.00},
	{Min: 82, Point: 2.25},
	{Min: 79, Point: 2.50},
	{Min: 76, Point: 2.75},
	{Min: 75, Point: 3.00},
	{Min: 0, Point: 5.00},
}

// GradePoint returns the point of the first band whose Min is <= pct.
func (s Scale) GradePoint(pct float64) float64 {
	pct = core.Round2(pct)
	for _, band := range s {
		if pct >= band.Min {
			return band.Point
		}
	}
	if len(s) > 0 {
		return s[len(s)-1].Point
	}
	return 0
}

// Result computes the grade point & remarks of pct.
func (s Scale) Result(pct float64) Result {
	pct = core.Round2(pct)
	gp := s.GradePoint(pct)
	return Result{Percentage: pct, GradePoint: gp, Remarks: RemarksFor(gp)}
}

func RemarksFor(gradePoint float64) string {
	if gradePoint <= PassingGradePoint {
		return RemarksPassed
	}
	return RemarksFailed
}

func NewScoreSheet(scores []Score) ScoreSheet {
	sheet := make(ScoreSheet, len(scores))
	for _, s := range scores {
		sheet[ScoreKey{ComponentID: s.ComponentID, StudentID: s.StudentID}] = s.Score
	}
	return sheet
}

// Get returns the score of studentID on componentID, and whether it was recorded.
func (sheet ScoreSheet) Get(componentID, studentID string) (float64, bool) {
	score, ok := sheet[ScoreKey{ComponentID: componentID, StudentID: studentID}]
	return score, ok
}

// CriterionPercentage is Σ scores / Σ max scores × 100 over the components of c.
// Unrecorded scores count as 0; a criterion without components is worth 0.
func CriterionPercentage(c Criterion, studentID string, sheet ScoreSheet) float64 {
	total, max := decimal.Zero, decimal.Zero
	for _, comp := range c.Components {
		score, _ := sheet.Get(comp.ID, studentID)
		total = total.Add(decimal.NewFromFloat(score))
		max = max.Add(decimal.NewFromFloat(comp.MaxScore))
	}
	if !max.IsPositive() {
		return 0
	}
	return core.Round2Decimal(total.Mul(hundred).Div(max))
}

// weighted is Σ pct × weight / 100, computed on the decimal values of its operands.
func weighted(parts ...WeightedPercentage) float64 {
	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(decimal.NewFromFloat(p.Percentage).Mul(decimal.NewFromFloat(p.Weight)))
	}
	return core.Round2Decimal(sum.Div(hundred))
}

// GradeTypePercentage is Σ criterion% × criterion weight / 100.
func GradeTypePercentage(gt GradeType, studentID string, sheet ScoreSheet) float64 {
	parts := make([]WeightedPercentage, 0, len(gt.Criteria))
	for _, c := range gt.Criteria {
		parts = append(parts, WeightedPercentage{Percentage: CriterionPercentage(c, studentID, sheet), Weight: c.Weight})
	}
	return weighted(parts...)
}

// WeightedPercentage is a criterion or grade type percentage along with its weight.
type WeightedPercentage struct {
	Percentage float64
	Weight     float64
}

// FinalPercentage is Σ grade type% × grade type weight / 100.
func FinalPercentage(parts ...WeightedPercentage) float64 {
	return weighted(parts...)
}
