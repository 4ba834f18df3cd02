package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScale_GradePoint(t *testing.T) {
	tests := []struct {
		pct  float64
		want float64
	}{
		{100, 1.00},
		{97, 1.00},
		{96.999, 1.00}, // rounds to 97.00
		{96.99, 1.25},
		{94, 1.25},
		{93.5, 1.50},
		{91, 1.50},
		{88, 1.75},
		{85, 2.00},
		{82, 2.25},
		{79, 2.50},
		{76, 2.75},
		{75.5, 3.00},
		{75, 3.00},
		{74.99, 5.00},
		{0, 5.00},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultScale.GradePoint(tt.pct), "GradePoint(%v)", tt.pct)
	}
}

func TestScale_Result(t *testing.T) {
	assert.Equal(t, Result{Percentage: 75, GradePoint: 3, Remarks: RemarksPassed}, DefaultScale.Result(75))
	assert.Equal(t, Result{Percentage: 74.99, GradePoint: 5, Remarks: RemarksFailed}, DefaultScale.Result(74.994))
	assert.Equal(t, RemarksPassed, RemarksFor(1))
	assert.Equal(t, RemarksFailed, RemarksFor(5))
}

func sampleGradeType() GradeType {
	return GradeType{
		ID:     "gt",
		Weight: 40,
		Criteria: []Criterion{
			{
				ID:     "quizzes",
				Weight: 30,
				Components: []Component{
					{ID: "q1", MaxScore: 10},
					{ID: "q2", MaxScore: 20},
				},
			},
			{
				ID:         "exams",
				Weight:     70,
				Components: []Component{{ID: "e1", MaxScore: 50}},
			},
		},
	}
}

func TestCriterionPercentage(t *testing.T) {
	gt := sampleGradeType()
	sheet := NewScoreSheet([]Score{
		{ComponentID: "q1", StudentID: "s1", Score: 8},
		{ComponentID: "q2", StudentID: "s1", Score: 12},
		{ComponentID: "q1", StudentID: "s2", Score: 10},
		{ComponentID: "e1", StudentID: "s1", Score: 45},
	})

	assert.Equal(t, 66.67, CriterionPercentage(gt.Criteria[0], "s1", sheet))
	assert.Equal(t, 90.0, CriterionPercentage(gt.Criteria[1], "s1", sheet))

	// missing scores count as 0
	assert.Equal(t, 33.33, CriterionPercentage(gt.Criteria[0], "s2", sheet))
	assert.Equal(t, 0.0, CriterionPercentage(gt.Criteria[1], "s2", sheet))

	// no components
	assert.Equal(t, 0.0, CriterionPercentage(Criterion{Weight: 100}, "s1", sheet))
}

func TestGradeTypePercentage(t *testing.T) {
	gt := sampleGradeType()
	sheet := NewScoreSheet([]Score{
		{ComponentID: "q1", StudentID: "s1", Score: 8},
		{ComponentID: "q2", StudentID: "s1", Score: 12},
		{ComponentID: "e1", StudentID: "s1", Score: 45},
	})

	// 66.67 * .3 + 90 * .7 = 20.001 + 63
	assert.Equal(t, 83.0, GradeTypePercentage(gt, "s1", sheet))
	assert.Equal(t, 0.0, GradeTypePercentage(gt, "nobody", sheet))
}

func TestGradeTypePercentage_bandBoundaries(t *testing.T) {
	twoCriteria := func(w1, w2 float64) GradeType {
		return GradeType{Criteria: []Criterion{
			{Weight: w1, Components: []Component{{ID: "a", MaxScore: 100}}},
			{Weight: w2, Components: []Component{{ID: "b", MaxScore: 100}}},
		}}
	}
	tests := []struct {
		name      string
		w1, w2    float64
		a, b      float64
		wantPct   float64
		wantPoint float64
	}{
		{"74.995 passes", 30, 70, 70.13, 77.08, 75, 3.00},
		{"78.995 reaches 79", 30, 70, 70.63, 82.58, 79, 2.50},
		{"75.995 reaches 76", 50, 50, 75.99, 76, 76, 2.75},
		{"84.995 reaches 85", 50, 50, 84.99, 85, 85, 2.00},
		{"96.995 reaches 97", 50, 50, 96.99, 97, 97, 1.00},
		{"74.9925 stays below", 25, 75, 74.97, 75, 74.99, 5.00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := NewScoreSheet([]Score{
				{ComponentID: "a", StudentID: "s", Score: tt.a},
				{ComponentID: "b", StudentID: "s", Score: tt.b},
			})
			pct := GradeTypePercentage(twoCriteria(tt.w1, tt.w2), "s", sheet)
			assert.Equal(t, tt.wantPct, pct)
			assert.Equal(t, tt.wantPoint, DefaultScale.Result(pct).GradePoint)
		})
	}
}

func TestFinalPercentage(t *testing.T) {
	got := FinalPercentage(
		WeightedPercentage{Percentage: 83, Weight: 40},
		WeightedPercentage{Percentage: 91.25, Weight: 60},
	)
	assert.Equal(t, 87.95, got)
	assert.Equal(t, 0.0, FinalPercentage())

	// 37.495 + 37.5
	got = FinalPercentage(
		WeightedPercentage{Percentage: 74.99, Weight: 50},
		WeightedPercentage{Percentage: 75, Weight: 50},
	)
	assert.Equal(t, 75.0, got)
	assert.Equal(t, RemarksPassed, DefaultScale.Result(got).Remarks)
}

func TestScheme_Complete(t *testing.T) {
	gt := sampleGradeType()
	assert.True(t, gt.Complete())

	scheme := Scheme{GradeTypes: []GradeType{gt}}
	assert.Equal(t, 40.0, scheme.GradeTypesWeight())
	assert.False(t, scheme.Complete())

	other := sampleGradeType()
	other.ID = "gt2"
	other.Weight = 60
	other.Criteria = other.Criteria[:1]
	scheme.GradeTypes = append(scheme.GradeTypes, other)
	assert.Equal(t, 100.0, scheme.GradeTypesWeight())
	assert.False(t, scheme.Complete())

	scheme.GradeTypes[1].Criteria[0].Weight = 100
	assert.True(t, scheme.Complete())

	comp, ok := scheme.Component("e1")
	assert.True(t, ok)
	assert.Equal(t, "gt", comp.GradeTypeID)
}

func TestCheckSiblings(t *testing.T) {
	assert.NoError(t, CheckSiblings(60, 40))
	assert.NoError(t, CheckSiblings(33.33, 66.67))

	err := CheckSiblings(70, 40)
	assert.EqualError(t, err, "weights must not exceed 100%, 30% remaining")

	err = CheckSiblings(66.5, 40)
	assert.EqualError(t, err, "weights must not exceed 100%, 33.50% remaining")
}
