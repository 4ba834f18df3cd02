package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/testutil"
)

func Test_pages_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.UserRepo, "Teacher T", "teacher", "teacher@test.cd", "Pwd.1234", []string{user.RoleTeacher}, true)

	b := app.browser()

	t.Run("dashboards require a session", func(t *testing.T) {
		for _, path := range []string{"/", "/admin", "/teacher", "/student"} {
			rec := b.get(path)
			assert.Equal(t, http.StatusSeeOther, rec.Code, path)
			assert.Equal(t, loginPath, rec.Header().Get(echo.HeaderLocation), path)
		}
	})

	t.Run("login page", func(t *testing.T) {
		rec := b.get(loginPath)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `name="_csrf"`)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := b.post(loginPath, url.Values{"username": {"teacher"}, "password": {"nope"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid username or password.")
		assert.NotContains(t, b.cookies, sessionCookie)
	})

	t.Run("missing csrf token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, loginPath, "", []byte("username=teacher&password=Pwd.1234"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		app.srv.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		rec := b.post(loginPath, url.Values{"username": {"teacher"}, "password": {"Pwd.1234"}})
		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
		assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
		require.Contains(t, b.cookies, sessionCookie)

		rec = b.get("/")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/teacher", rec.Header().Get(echo.HeaderLocation))

		rec = b.get("/teacher")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Teacher T")
	})

	t.Run("wrong dashboard", func(t *testing.T) {
		rec := b.get("/admin")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "permission denied")
	})

	t.Run("logout", func(t *testing.T) {
		rec := b.post("/logout", nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.NotContains(t, b.cookies, sessionCookie)

		rec = b.get("/teacher")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func Test_pages_gradingWorkflow(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	hero := app.Student(t, "Hero", "hero")
	zero := app.Student(t, "Zero", "zero")
	cls := app.Class(t, "Section A", app.Subject(t, "MATH101", "Algebra"), teacher, hero, zero)
	gt, comp := app.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
	classPath := "/teacher/classes/" + cls.ID
	field := func(studentID string) string { return scoreFieldPref + comp.ID + ":" + studentID }

	tb := app.browser()
	tb.login(t, teacher)

	t.Run("teacher dashboard", func(t *testing.T) {
		rec := tb.get("/teacher")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "MATH101 - Section A")
		assert.Contains(t, body, "not submitted")
	})

	t.Run("other teacher cannot open the class", func(t *testing.T) {
		ob := app.browser()
		ob.login(t, app.Teacher(t, "other"))
		rec := ob.get(classPath)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid score", func(t *testing.T) {
		rec := tb.post(classPath+"/scores", url.Values{field(hero.ID): {"60"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "score must be between 0 and 50")

		rec = tb.post(classPath+"/scores", url.Values{field(hero.ID): {"abc"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("record scores", func(t *testing.T) {
		rec := tb.post(classPath+"/scores", url.Values{field(hero.ID): {"45"}, field(zero.ID): {""}})
		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

		scores, err := app.GradingSvc.Scores(ctx, cls.ID)
		require.NoError(t, err)
		sheet := grading.NewScoreSheet(scores)
		s, ok := sheet.Get(comp.ID, hero.ID)
		assert.True(t, ok)
		assert.Equal(t, 45.0, s)
		_, ok = sheet.Get(comp.ID, zero.ID)
		assert.False(t, ok)

		rec = tb.get(classPath)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `value="45"`)
		assert.Contains(t, body, "90.00%")
		assert.Contains(t, body, "1.75")
		assert.Contains(t, body, "Final grades")
	})

	var sub submission.Submission
	t.Run("submit", func(t *testing.T) {
		rec := tb.post(classPath+"/grade-types/"+gt.ID+"/submit", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

		subs, err := app.SubmissionSvc.Query(ctx, &submission.QueryFilter{Status: submission.StatusPending})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		sub = subs[0]

		rec = tb.post(classPath+"/grade-types/"+gt.ID+"/submit", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), submission.ErrAlreadyPending.Error())

		// scores are locked while pending
		rec = tb.post(classPath+"/scores", url.Values{field(zero.ID): {"10"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	ab := app.browser()
	ab.login(t, admin)

	t.Run("admin dashboard", func(t *testing.T) {
		rec := ab.get("/admin")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "/admin/submissions/"+sub.ID)
		assert.Contains(t, body, "Midterm")
	})

	t.Run("decline requires remarks", func(t *testing.T) {
		rec := ab.post("/admin/submissions/"+sub.ID+"/decline", url.Values{"remarks": {" "}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "remarks are required")
	})

	t.Run("approve", func(t *testing.T) {
		rec := ab.get("/admin/submissions/" + sub.ID)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Approve")

		rec = ab.post("/admin/submissions/"+sub.ID+"/approve", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

		approved, err := app.SubmissionSvc.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.True(t, approved.IsApproved())
	})

	t.Run("student grades", func(t *testing.T) {
		sb := app.browser()
		sb.login(t, hero)

		rec := sb.get("/student")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "MATH101 - Section A")
		assert.Contains(t, body, "90.00%")
		assert.Contains(t, body, grading.RemarksPassed)

		rec = sb.get("/student/report-card.pdf")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
		assert.True(t, len(rec.Body.Bytes()) > 4 && string(rec.Body.Bytes()[:4]) == "%PDF")

		rec = sb.get(classPath)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
