package grading_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/testutil"
)

func ptr(f float64) *float64 { return &f }

func TestService_SchemeWeights(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), env.Teacher(t, "teach"))

	mid, err := env.GradingSvc.AddGradeType(ctx, cls.ID, grading.GradeTypeInput{Name: "Midterm", Weight: 40})
	require.NoError(t, err)
	final, err := env.GradingSvc.AddGradeType(ctx, cls.ID, grading.GradeTypeInput{Name: "Final", Weight: 50, Position: 1})
	require.NoError(t, err)

	_, err = env.GradingSvc.AddGradeType(ctx, cls.ID, grading.GradeTypeInput{Name: "Bonus", Weight: 20})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "weight", verr.Fields[0].Field)
	assert.Equal(t, "weights must not exceed 100%, 10% remaining", verr.Fields[0].Error)

	// the grade type's own weight is not counted twice
	final, err = env.GradingSvc.UpdateGradeType(ctx, final.ID, grading.GradeTypeInput{Name: "Finals", Weight: 60, Position: 1})
	require.NoError(t, err)
	assert.Equal(t, "Finals", final.Name)

	_, err = env.GradingSvc.AddCriterion(ctx, mid.ID, grading.CriterionInput{Name: "Quizzes", Weight: 30})
	require.NoError(t, err)
	exams, err := env.GradingSvc.AddCriterion(ctx, mid.ID, grading.CriterionInput{Name: "Exams", Weight: 70, Position: 1})
	require.NoError(t, err)
	_, err = env.GradingSvc.AddCriterion(ctx, mid.ID, grading.CriterionInput{Name: "Extra", Weight: 0.01})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "weights must not exceed 100%, 0% remaining", verr.Fields[0].Error)

	_, err = env.GradingSvc.UpdateCriterion(ctx, exams.ID, grading.CriterionInput{Name: "Exams", Weight: 71, Position: 1})
	require.ErrorAs(t, err, &verr)

	_, err = env.GradingSvc.AddComponent(ctx, exams.ID, grading.ComponentInput{Name: "Exam 1", MaxScore: 50})
	require.NoError(t, err)

	scheme, err := env.GradingSvc.Scheme(ctx, cls.ID)
	require.NoError(t, err)
	require.Len(t, scheme.GradeTypes, 2)
	assert.Equal(t, "Midterm", scheme.GradeTypes[0].Name)
	assert.Equal(t, []string{"Quizzes", "Exams"}, []string{scheme.GradeTypes[0].Criteria[0].Name, scheme.GradeTypes[0].Criteria[1].Name})
	assert.True(t, scheme.GradeTypes[0].Complete())
	assert.False(t, scheme.Complete())

	_, err = env.GradingSvc.AddCriterion(ctx, "unknown", grading.CriterionInput{Name: "Quizzes", Weight: 30})
	assert.True(t, core.IsNotFound(err))
}

func TestService_RecordScores(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	stu := env.Student(t, "Stu", "stu")
	outsider := env.Student(t, "Out", "out")
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), env.Teacher(t, "teach"), stu)
	_, comp := env.SimpleScheme(t, cls.ID, "Midterm", 100, 50)

	err := env.GradingSvc.RecordScores(ctx, cls.ID, grading.RecordScores{Scores: []grading.ScoreInput{
		{ComponentID: comp.ID, StudentID: stu.ID, Score: ptr(51)},
		{ComponentID: comp.ID, StudentID: outsider.ID, Score: ptr(10)},
		{ComponentID: "unknown", StudentID: stu.ID, Score: ptr(10)},
	}})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 3)
	assert.Equal(t, "scores[0].score", verr.Fields[0].Field)
	assert.Equal(t, "score must be between 0 and 50", verr.Fields[0].Error)
	assert.Equal(t, "scores[1].student_id", verr.Fields[1].Field)
	assert.Equal(t, "scores[2].component_id", verr.Fields[2].Field)

	scores, err := env.GradingSvc.Scores(ctx, cls.ID)
	require.NoError(t, err)
	assert.Empty(t, scores)

	require.NoError(t, env.GradingSvc.RecordScores(ctx, cls.ID, grading.RecordScores{Scores: []grading.ScoreInput{
		{ComponentID: comp.ID, StudentID: stu.ID, Score: ptr(42.5)},
	}}))
	scores, err = env.GradingSvc.Scores(ctx, cls.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 42.5, scores[0].Score)

	// a nil score clears it
	require.NoError(t, env.GradingSvc.RecordScores(ctx, cls.ID, grading.RecordScores{Scores: []grading.ScoreInput{
		{ComponentID: comp.ID, StudentID: stu.ID},
	}}))
	scores, err = env.GradingSvc.Scores(ctx, cls.ID)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestService_UpdateComponent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	stu := env.Student(t, "Stu", "stu")
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), env.Teacher(t, "teach"), stu)
	_, comp := env.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
	env.Score(t, cls.ID, comp.ID, stu.ID, 40)

	_, err := env.GradingSvc.UpdateComponent(ctx, comp.ID, grading.ComponentInput{Name: "Exam 1", MaxScore: 30})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_score", verr.Fields[0].Field)

	comp, err = env.GradingSvc.UpdateComponent(ctx, comp.ID, grading.ComponentInput{Name: "Exam I", MaxScore: 40})
	require.NoError(t, err)
	assert.Equal(t, "Exam I", comp.Name)
	assert.Equal(t, 40.0, comp.MaxScore)
}

func TestService_Lock(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	teacher := env.Teacher(t, "teach")
	admin := env.Admin(t, "admin")
	stu := env.Student(t, "Stu", "stu")
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), teacher, stu)
	gt, comp := env.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
	env.Score(t, cls.ID, comp.ID, stu.ID, 40)

	sub, err := env.SubmissionSvc.Submit(ctx, cls.ID, gt.ID, teacher)
	require.NoError(t, err)

	locked, err := env.GradingSvc.IsLocked(ctx, gt.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	err = env.GradingSvc.RecordScores(ctx, cls.ID, grading.RecordScores{Scores: []grading.ScoreInput{
		{ComponentID: comp.ID, StudentID: stu.ID, Score: ptr(50)},
	}})
	assert.Equal(t, core.ErrLocked, err)
	_, err = env.GradingSvc.UpdateGradeType(ctx, gt.ID, grading.GradeTypeInput{Name: "Mid", Weight: 100})
	assert.Equal(t, core.ErrLocked, err)
	_, err = env.GradingSvc.AddCriterion(ctx, gt.ID, grading.CriterionInput{Name: "Extra", Weight: 0})
	assert.Equal(t, core.ErrLocked, err)
	assert.Equal(t, core.ErrLocked, env.GradingSvc.DeleteComponent(ctx, comp.ID))
	assert.Equal(t, core.ErrLocked, env.GradingSvc.DeleteGradeType(ctx, gt.ID))

	// declining unlocks the grade type
	_, err = env.SubmissionSvc.Decline(ctx, sub.ID, admin, submission.Decline{Remarks: "Recheck exam 1"})
	require.NoError(t, err)
	locked, err = env.GradingSvc.IsLocked(ctx, gt.ID)
	require.NoError(t, err)
	assert.False(t, locked)
	env.Score(t, cls.ID, comp.ID, stu.ID, 50)
}

func TestService_GradeSheet(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	amy := env.Student(t, "Amy", "amy")
	bob := env.Student(t, "Bob", "bob")
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), env.Teacher(t, "teach"), bob, amy)
	gt, comp := env.SimpleScheme(t, cls.ID, "Midterm", 100, 40)
	env.Score(t, cls.ID, comp.ID, amy.ID, 39)

	gs, err := env.GradingSvc.GradeSheet(ctx, cls.ID, gt.ID)
	require.NoError(t, err)
	assert.True(t, gs.Complete)
	require.Len(t, gs.Rows, 2)

	row, ok := gs.Row(amy.ID)
	require.True(t, ok)
	assert.Equal(t, 97.5, row.Percentage)
	assert.Equal(t, 1.0, row.GradePoint)
	assert.Equal(t, grading.RemarksPassed, row.Remarks)
	assert.Equal(t, 97.5, row.Criteria[0].Percentage)

	row, ok = gs.Row(bob.ID)
	require.True(t, ok)
	assert.Equal(t, 0.0, row.Percentage)
	assert.Equal(t, 5.0, row.GradePoint)
	assert.Equal(t, grading.RemarksFailed, row.Remarks)

	other := env.Class(t, "Section B", env.Subject(t, "PHY101", "Physics"), env.Teacher(t, "t2"))
	_, err = env.GradingSvc.GradeSheet(ctx, other.ID, gt.ID)
	assert.Equal(t, grading.ErrGradeTypeNotFound, err)
}

func TestService_ClassSheet(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	teacher := env.Teacher(t, "teach")
	amy := env.Student(t, "Amy", "amy")
	bob := env.Student(t, "Bob", "bob")
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), teacher, amy, bob)
	mid, midComp := env.SimpleScheme(t, cls.ID, "Midterm", 40, 50)
	_, finComp := env.SimpleScheme(t, cls.ID, "Final", 60, 100)
	env.Score(t, cls.ID, midComp.ID, amy.ID, 45)
	env.Score(t, cls.ID, finComp.ID, amy.ID, 80)
	env.Score(t, cls.ID, finComp.ID, bob.ID, 100)

	// only the midterm is approved: the class sheet still computes over every grade type
	sub, err := env.SubmissionSvc.Submit(ctx, cls.ID, mid.ID, teacher)
	require.NoError(t, err)
	_, err = env.SubmissionSvc.Approve(ctx, sub.ID, admin)
	require.NoError(t, err)

	cs, err := env.GradingSvc.ClassSheet(ctx, cls.ID)
	require.NoError(t, err)
	assert.True(t, cs.Complete)
	require.Len(t, cs.Rows, 2)

	// 90 * .4 + 80 * .6
	row, ok := cs.Row(amy.ID)
	require.True(t, ok)
	require.Len(t, row.GradeTypes, 2)
	assert.Equal(t, 84.0, row.Final.Percentage)
	assert.Equal(t, 2.25, row.Final.GradePoint)
	assert.Equal(t, grading.RemarksPassed, row.Final.Remarks)

	// 0 * .4 + 100 * .6
	row, ok = cs.Row(bob.ID)
	require.True(t, ok)
	assert.Equal(t, 60.0, row.Final.Percentage)
	assert.Equal(t, grading.RemarksFailed, row.Final.Remarks)

	_, err = env.GradingSvc.ClassSheet(ctx, "unknown")
	assert.Error(t, err)
}
