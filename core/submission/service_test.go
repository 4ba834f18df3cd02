package submission_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/testutil"
)

type fixture struct {
	env     *testutil.Env
	teacher user.User
	admin   user.User
	amy     user.User
	bob     user.User
	classID string
	gt      grading.GradeType
	comp    grading.Component
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	f := fixture{
		env:     env,
		teacher: env.Teacher(t, "teach"),
		admin:   env.Admin(t, "admin"),
		amy:     env.Student(t, "Amy", "amy"),
		bob:     env.Student(t, "Bob", "bob"),
	}
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), f.teacher, f.bob, f.amy)
	f.classID = cls.ID
	f.gt, f.comp = env.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
	env.Score(t, cls.ID, f.comp.ID, f.amy.ID, 48)
	env.Score(t, cls.ID, f.comp.ID, f.bob.ID, 30)
	return f
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshots grades", func(t *testing.T) {
		f := newFixture(t)
		sub, err := f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
		require.NoError(t, err)
		assert.Equal(t, submission.StatusPending, sub.Status)
		assert.Equal(t, "MATH101 - Section A", sub.ClassTitle())
		assert.Equal(t, "Midterm", sub.GradeTypeName)
		require.Len(t, sub.Grades, 2)

		amy := sub.Grades[0]
		assert.Equal(t, "Amy", amy.StudentName)
		assert.Equal(t, 96.0, amy.Percentage)
		assert.Equal(t, 1.25, amy.GradePoint)
		assert.Equal(t, grading.RemarksPassed, amy.Remarks)

		bob := sub.Grades[1]
		assert.Equal(t, 60.0, bob.Percentage)
		assert.Equal(t, 5.0, bob.GradePoint)
		assert.Equal(t, grading.RemarksFailed, bob.Remarks)

		sent := f.env.Mail.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, "submission_submitted", sent[0].TemplateName)
		assert.Equal(t, f.admin.Email, sent[0].To[0].Address)

		// one open submission per grade type
		_, err = f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
		assert.Equal(t, submission.ErrAlreadyPending, err)
		got, err := f.env.SubmissionSvc.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.Grades, got.Grades)
	})

	t.Run("other teacher", func(t *testing.T) {
		f := newFixture(t)
		other := f.env.Teacher(t, "other")
		_, err := f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, other)
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("incomplete scheme", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.env.GradingSvc.UpdateCriterion(ctx, f.gt.Criteria[0].ID, grading.CriterionInput{Name: "Exams", Weight: 90})
		require.NoError(t, err)

		_, err = f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "grade_type_id", verr.Fields[0].Field)
	})

	t.Run("no enrolled students", func(t *testing.T) {
		f := newFixture(t)
		empty := f.env.Class(t, "Section B", f.env.Subject(t, "PHY101", "Physics"), f.teacher)
		gt, _ := f.env.SimpleScheme(t, empty.ID, "Midterm", 100, 50)

		_, err := f.env.SubmissionSvc.Submit(ctx, empty.ID, gt.ID, f.teacher)
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "class_id", verr.Fields[0].Field)
		assert.Equal(t, "class has no enrolled students", verr.Fields[0].Error)

		subs, err := f.env.SubmissionSvc.Query(ctx, &submission.QueryFilter{Status: submission.StatusPending})
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("unknown grade type", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.env.SubmissionSvc.Submit(ctx, f.classID, "unknown", f.teacher)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_Approve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sub, err := f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
	require.NoError(t, err)
	f.env.Mail.Reset()

	sub, err = f.env.SubmissionSvc.Approve(ctx, sub.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, submission.StatusApproved, sub.Status)
	assert.Equal(t, f.admin.ID, sub.ReviewedBy)
	assert.Equal(t, "Admin admin", sub.ReviewerName)
	assert.False(t, sub.ReviewedAt.IsZero())

	pdf, err := os.ReadFile(filepath.Join(f.env.ArchiveDir, filepath.FromSlash(submission.ArchiveKey(sub))))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf[:4]))

	sent := f.env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "submission_reviewed", sent[0].TemplateName)
	assert.Equal(t, f.teacher.Email, sent[0].To[0].Address)

	// reviewed once only
	_, err = f.env.SubmissionSvc.Approve(ctx, sub.ID, f.admin)
	assert.Equal(t, core.ErrInvalidTransition, err)
	_, err = f.env.SubmissionSvc.Decline(ctx, sub.ID, f.admin, submission.Decline{Remarks: "oops"})
	assert.Equal(t, core.ErrInvalidTransition, err)

	_, err = f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
	assert.Equal(t, submission.ErrAlreadyApproved, err)

	_, err = f.env.SubmissionSvc.Approve(ctx, "unknown", f.admin)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Decline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sub, err := f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
	require.NoError(t, err)

	_, err = f.env.SubmissionSvc.Decline(ctx, sub.ID, f.admin, submission.Decline{Remarks: "  "})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "remarks", verr.Fields[0].Field)

	sub, err = f.env.SubmissionSvc.Decline(ctx, sub.ID, f.admin, submission.Decline{Remarks: " Recheck Bob's exam "})
	require.NoError(t, err)
	assert.Equal(t, submission.StatusDeclined, sub.Status)
	assert.Equal(t, "Recheck Bob's exam", sub.Remarks)

	entries, err := os.ReadDir(f.env.ArchiveDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// resubmission after a decline
	f.env.Score(t, f.classID, f.comp.ID, f.bob.ID, 40)
	resub, err := f.env.SubmissionSvc.Submit(ctx, f.classID, f.gt.ID, f.teacher)
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, resub.ID)
	assert.Equal(t, 80.0, resub.Grades[1].Percentage)

	latest, err := f.env.SubmissionSvc.LatestByGradeType(ctx, f.classID)
	require.NoError(t, err)
	assert.Equal(t, resub.ID, latest[f.gt.ID].ID)

	subs, err := f.env.SubmissionSvc.Query(ctx, &submission.QueryFilter{Status: submission.StatusDeclined})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
}

func TestService_StudentGrades(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	teacher := env.Teacher(t, "teach")
	admin := env.Admin(t, "admin")
	amy := env.Student(t, "Amy", "amy")
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), teacher, amy)

	mid, midComp := env.SimpleScheme(t, cls.ID, "Midterm", 40, 100)
	final, finalComp := env.SimpleScheme(t, cls.ID, "Final", 60, 100)
	env.Score(t, cls.ID, midComp.ID, amy.ID, 83)
	env.Score(t, cls.ID, finalComp.ID, amy.ID, 91.25)

	approve := func(gradeTypeID string) {
		sub, err := env.SubmissionSvc.Submit(ctx, cls.ID, gradeTypeID, teacher)
		require.NoError(t, err)
		_, err = env.SubmissionSvc.Approve(ctx, sub.ID, admin)
		require.NoError(t, err)
	}

	grades, err := env.SubmissionSvc.StudentGrades(ctx, amy.ID)
	require.NoError(t, err)
	require.Len(t, grades, 1)
	require.Len(t, grades[0].GradeTypes, 2)
	assert.Nil(t, grades[0].GradeTypes[0].Grade)
	assert.Nil(t, grades[0].Final)

	approve(mid.ID)
	grades, err = env.SubmissionSvc.StudentGrades(ctx, amy.ID)
	require.NoError(t, err)
	gt := grades[0].GradeTypes[0]
	assert.Equal(t, "Final", gt.Name)
	assert.Nil(t, gt.Grade)
	gt = grades[0].GradeTypes[1]
	require.NotNil(t, gt.Grade)
	assert.Equal(t, 83.0, gt.Grade.Percentage)
	assert.Equal(t, 2.25, gt.Grade.GradePoint)
	assert.Nil(t, grades[0].Final)

	approve(final.ID)
	grades, err = env.SubmissionSvc.StudentGrades(ctx, amy.ID)
	require.NoError(t, err)
	require.NotNil(t, grades[0].Final)
	assert.Equal(t, 87.95, grades[0].Final.Percentage)
	assert.Equal(t, 2.0, grades[0].Final.GradePoint)
	assert.Equal(t, grading.RemarksPassed, grades[0].Final.Remarks)

	other := env.Student(t, "Other", "other")
	grades, err = env.SubmissionSvc.StudentGrades(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, grades)
}
