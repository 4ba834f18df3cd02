package echoapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/submission"
)

func submissionDecline(remarks string) submission.Decline {
	return submission.Decline{Remarks: remarks}
}

func Test_submissionApi_workflow(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	other := app.Teacher(t, "other")
	hero := app.Student(t, "Hero", "hero")
	zero := app.Student(t, "Zero", "zero")
	cls := app.Class(t, "Section A", app.Subject(t, "MATH101", "Algebra"), teacher, hero, zero)
	gt, comp := app.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
	app.Score(t, cls.ID, comp.ID, hero.ID, 49)

	teacherToken := app.token(t, teacher)
	adminToken := app.token(t, admin)
	submitPath := "/api/v1/classes/" + cls.ID + "/grade-types/" + gt.ID + "/submit"

	app.run(t, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: submitPath, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin cannot submit", method: http.MethodPost, path: submitPath, token: adminToken, wantCode: http.StatusForbidden},
		{name: "other teacher cannot submit", method: http.MethodPost, path: submitPath, token: app.token(t, other), wantCode: http.StatusForbidden},
	})

	var sub submission.Submission
	t.Run("submit", func(t *testing.T) {
		rec := app.do(http.MethodPost, submitPath, teacherToken)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &sub)

		assert.Equal(t, submission.StatusPending, sub.Status)
		assert.Equal(t, "Midterm", sub.GradeTypeName)
		require.Len(t, sub.Grades, 2)
		grades := make(map[string]submission.Grade)
		for _, g := range sub.Grades {
			grades[g.StudentID] = g
		}
		assert.Equal(t, 98.0, grades[hero.ID].Percentage)
		assert.Equal(t, 1.00, grades[hero.ID].GradePoint)
		// missing scores count as zero
		assert.Equal(t, 0.0, grades[zero.ID].Percentage)
		assert.Equal(t, 5.00, grades[zero.ID].GradePoint)
		assert.Equal(t, "FAILED", grades[zero.ID].Remarks)

		assert.Len(t, app.Mail.SentMessages(), 1, "admins are notified")
	})

	app.run(t, []httpTest{
		{
			name: "already pending", method: http.MethodPost, path: submitPath, token: teacherToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: submission.ErrAlreadyPending.Error()}),
		},
		{name: "teacher cannot approve", method: http.MethodPost, path: "/api/v1/submissions/" + sub.ID + "/approve", token: teacherToken, wantCode: http.StatusForbidden},
		{
			name: "decline requires remarks", method: http.MethodPost, path: "/api/v1/submissions/" + sub.ID + "/decline", token: adminToken,
			body:     []byte(`{"remarks":"   "}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"remarks": "remarks are required to decline a submission"}),
		},
		{
			name: "decline remarks too long", method: http.MethodPost, path: "/api/v1/submissions/" + sub.ID + "/decline", token: adminToken,
			body:     marchallObj(t, submissionDecline(strings.Repeat("a", 1001))),
			wantCode: http.StatusBadRequest,
		},
		{name: "owner sees their submission", path: "/api/v1/submissions/" + sub.ID, token: teacherToken},
		{name: "other teacher does not", path: "/api/v1/submissions/" + sub.ID, token: app.token(t, other), wantCode: http.StatusForbidden},
		{name: "students cannot list submissions", path: "/api/v1/submissions", token: app.token(t, hero), wantCode: http.StatusForbidden},
	})

	t.Run("rejected decline keeps the submission pending", func(t *testing.T) {
		got, err := app.SubmissionSvc.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, submission.StatusPending, got.Status)
	})

	t.Run("decline then resubmit", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/submissions/"+sub.ID+"/decline", adminToken, []byte(`{"remarks":"Zero has no score"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var declined submission.Submission
		unmarshalBody(t, rec, &declined)
		assert.Equal(t, submission.StatusDeclined, declined.Status)
		assert.Equal(t, "Zero has no score", declined.Remarks)
		assert.Equal(t, admin.ID, declined.ReviewedBy)

		rec = app.do(http.MethodPost, "/api/v1/submissions/"+sub.ID+"/approve", adminToken)
		assert.Equal(t, http.StatusConflict, rec.Code, "a declined submission cannot be approved")

		app.Score(t, cls.ID, comp.ID, zero.ID, 40)
		rec = app.do(http.MethodPost, submitPath, teacherToken)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &sub)
	})

	t.Run("approve", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/submissions/"+sub.ID+"/approve", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var approved submission.Submission
		unmarshalBody(t, rec, &approved)
		assert.Equal(t, submission.StatusApproved, approved.Status)

		// the grade sheet is archived
		_, err := os.Stat(filepath.Join(app.ArchiveDir, filepath.FromSlash(submission.ArchiveKey(approved))))
		assert.NoError(t, err)

		rec = app.do(http.MethodPost, submitPath, teacherToken)
		assert.Equal(t, http.StatusConflict, rec.Code)
		checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: submission.ErrAlreadyApproved.Error()})}, rec)
	})

	t.Run("list", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/submissions?status=declined", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var subs []submission.Submission
		unmarshalBody(t, rec, &subs)
		assert.Len(t, subs, 1)

		rec = app.do(http.MethodGet, "/api/v1/submissions", app.token(t, other))
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshalBody(t, rec, &subs)
		assert.Empty(t, subs)
	})

	t.Run("student grades", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/me/grades", app.token(t, zero))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var grades []submission.ClassGrades
		unmarshalBody(t, rec, &grades)
		require.Len(t, grades, 1)
		require.Len(t, grades[0].GradeTypes, 1)
		require.NotNil(t, grades[0].GradeTypes[0].Grade)
		assert.Equal(t, 80.0, grades[0].GradeTypes[0].Grade.Percentage)
		assert.Equal(t, 2.50, grades[0].GradeTypes[0].Grade.GradePoint)
		require.NotNil(t, grades[0].Final)
		assert.Equal(t, 80.0, grades[0].Final.Percentage)

		rec = app.do(http.MethodGet, "/api/v1/me/grades", teacherToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	stats, err := app.DashboardSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Declined)
	assert.Equal(t, 0, stats.Pending)
}
