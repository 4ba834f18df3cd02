package echoapi

import (
	"bytes"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/dashboard"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
	appfs "github.com/trezcool/alama/fs"
)

const (
	csrfField      = "_csrf"
	scoreFieldPref = "score:"
)

type (
	page struct {
		Title    string
		User     user.User
		UserName string
		Home     string
		CSRF     string
		Message  string
		Error    string
	}

	loginPage struct {
		page
		Username string
	}

	errorPage struct {
		page
		Code   int
		Detail string
	}

	adminPage struct {
		page
		Stats   dashboard.Stats
		Pending []submission.Submission
		Recent  []submission.Submission
	}

	submissionPage struct {
		page
		Submission submission.Submission
		Remarks    string
	}

	gradeTypeStatus struct {
		GradeType  grading.GradeType
		Submission *submission.Submission
	}

	teacherClass struct {
		Class      class.Class
		GradeTypes []gradeTypeStatus
	}

	teacherPage struct {
		page
		Classes []teacherClass
	}

	scoreCell struct {
		Field string
		Value string
		Max   float64
	}

	scoreRow struct {
		Student class.Student
		Cells   []scoreCell
		Result  grading.Result
	}

	gradeTypeSection struct {
		GradeType  grading.GradeType
		Components []grading.Component
		Rows       []scoreRow
		Complete   bool
		Locked     bool
		Submission *submission.Submission
	}

	classPage struct {
		page
		Class    class.Class
		Roster   []class.Student
		Scheme   grading.Scheme
		Sections []gradeTypeSection
		Finals   grading.ClassSheet
	}

	studentPage struct {
		page
		Classes []submission.ClassGrades
	}
)

type pages struct {
	auth  *authenticator
	guard classGuard
	deps  Deps
}

func registerPages(e *echo.Echo, auth *authenticator, deps Deps) {
	p := pages{
		auth:  auth,
		guard: classGuard{auth: auth, clsSvc: deps.ClassSvc},
		deps:  deps,
	}

	csrf := middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:" + csrfField,
		CookieName:     csrfField,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   !(deps.Conf.Debug || deps.Conf.TestMode),
	})
	session := auth.pageMiddleware()
	admin := []echo.MiddlewareFunc{csrf, session, adminMiddleware()}
	teacher := []echo.MiddlewareFunc{csrf, session, teacherMiddleware}
	student := []echo.MiddlewareFunc{csrf, session, studentMiddleware}

	e.GET("/assets/*", echo.WrapHandler(http.FileServer(http.FS(appfs.FS))))
	e.GET(loginPath, p.login, csrf)
	e.POST(loginPath, p.loginSubmit, csrf)
	e.GET("/logout", p.logout)
	e.POST("/logout", p.logout)
	e.GET("/", p.home, csrf, session)

	e.GET("/admin", p.adminDashboard, admin...)
	e.GET("/admin/submissions/:id", p.adminSubmission, admin...)
	e.POST("/admin/submissions/:id/approve", p.approveSubmission, admin...)
	e.POST("/admin/submissions/:id/decline", p.declineSubmission, admin...)

	e.GET("/teacher", p.teacherDashboard, teacher...)
	e.GET("/teacher/classes/:id", p.teacherClass, teacher...)
	e.POST("/teacher/classes/:id/scores", p.recordScores, teacher...)
	e.POST("/teacher/classes/:id/grade-types/:gtid/submit", p.submitGrades, teacher...)

	e.GET("/student", p.studentDashboard, student...)
	e.GET("/student/report-card.pdf", p.reportCard, student...)
}

// userPage returns the page layout data of usr; usr is zero for anonymous visitors.
func userPage(title string, usr user.User) page {
	pg := page{Title: title, User: usr}
	if usr.ID == "" {
		return pg
	}
	pg.UserName = usr.DisplayName()
	switch {
	case usr.IsAdmin():
		pg.Home = "/admin"
	case usr.IsTeacher():
		pg.Home = "/teacher"
	case usr.IsStudent():
		pg.Home = "/student"
	}
	return pg
}

func (p *pages) newPage(ctx echo.Context, title string) (page, error) {
	var usr user.User
	if _, err := getContextClaims(ctx); err == nil {
		if usr, err = p.auth.contextUser(ctx); err != nil {
			return page{}, err
		}
	}
	pg := userPage(title, usr)
	pg.Message = ctx.QueryParam("msg")
	pg.Error = ctx.QueryParam("err")
	if token, ok := ctx.Get(middleware.DefaultCSRFConfig.ContextKey).(string); ok {
		pg.CSRF = token
	}
	return pg, nil
}

// redirect sends the browser to path with a flash message.
func redirect(ctx echo.Context, path, msg string) error {
	if msg != "" {
		path += "?" + url.Values{"msg": {msg}}.Encode()
	}
	return ctx.Redirect(http.StatusSeeOther, path)
}

// Session

func (p *pages) login(ctx echo.Context) error {
	pg, err := p.newPage(ctx, "Sign in")
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "login", loginPage{page: pg})
}

func (p *pages) loginSubmit(ctx echo.Context) error {
	pg, err := p.newPage(ctx, "Sign in")
	if err != nil {
		return err
	}

	var data LoginRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	failed := func(msg string) error {
		pg.Error = msg
		return ctx.Render(http.StatusBadRequest, "login", loginPage{page: pg, Username: data.Username})
	}
	if err = data.Validate(p.deps.Validate); err != nil {
		return failed("Enter your username and password.")
	}

	usr, err := p.auth.authenticate(ctx, data.Username, data.Password)
	switch {
	case err == errAuthenticationFailed:
		return failed("Invalid username or password.")
	case err == errAccountDeactivated:
		return failed("Your account has been deactivated.")
	case err != nil:
		return err
	}

	if err = p.auth.startSession(ctx, usr); err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.Redirect(http.StatusSeeOther, "/")
}

func (p *pages) logout(ctx echo.Context) error {
	clearSession(ctx)
	return ctx.Redirect(http.StatusSeeOther, loginPath)
}

// home sends the user to their dashboard.
func (p *pages) home(ctx echo.Context) error {
	usr, err := p.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	home := userPage("", usr).Home
	if home == "" {
		return errHttpForbidden
	}
	return ctx.Redirect(http.StatusSeeOther, home)
}

// Admin

func (p *pages) adminDashboard(ctx echo.Context) error {
	pg, err := p.newPage(ctx, "Dashboard")
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	stats, err := p.deps.DashboardSvc.Stats(c)
	if err != nil {
		return errors.Wrap(err, "loading stats")
	}
	pending, err := p.deps.SubmissionSvc.Query(c, &submission.QueryFilter{Status: submission.StatusPending})
	if err != nil {
		return errors.Wrap(err, "querying pending submissions")
	}
	reviewed, err := p.deps.SubmissionSvc.Query(c, nil)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}

	recent := make([]submission.Submission, 0, 10)
	for _, sub := range reviewed {
		if !sub.IsPending() && len(recent) < cap(recent) {
			recent = append(recent, sub)
		}
	}
	return ctx.Render(http.StatusOK, "admin", adminPage{page: pg, Stats: stats, Pending: pending, Recent: recent})
}

func (p *pages) adminSubmission(ctx echo.Context) error {
	pg, err := p.newPage(ctx, "Submission")
	if err != nil {
		return err
	}
	sub, err := p.deps.SubmissionSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "submission", submissionPage{page: pg, Submission: sub})
}

func (p *pages) approveSubmission(ctx echo.Context) error {
	usr, err := p.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := p.deps.SubmissionSvc.Approve(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "approving submission")
	}
	return redirect(ctx, "/admin/submissions/"+sub.ID, "Grades approved.")
}

func (p *pages) declineSubmission(ctx echo.Context) error {
	usr, err := p.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data submission.Decline
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Decline")
	}

	c := ctx.Request().Context()
	err = data.Validate(p.deps.Validate)
	var sub submission.Submission
	if err == nil {
		sub, err = p.deps.SubmissionSvc.Decline(c, ctx.Param("id"), usr, data)
	}
	if err != nil {
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			return errors.Wrap(err, "declining submission")
		}
		pg, pErr := p.newPage(ctx, "Submission")
		if pErr != nil {
			return pErr
		}
		if sub, err = p.deps.SubmissionSvc.GetByID(c, ctx.Param("id")); err != nil {
			return err
		}
		pg.Error = verr.Error()
		return ctx.Render(http.StatusBadRequest, "submission", submissionPage{page: pg, Submission: sub})
	}
	return redirect(ctx, "/admin/submissions/"+sub.ID, "Grades declined.")
}

// Teacher

func (p *pages) teacherDashboard(ctx echo.Context) error {
	pg, err := p.newPage(ctx, "My classes")
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	classes, err := p.deps.ClassSvc.Query(c, &class.QueryFilter{TeacherID: pg.User.ID}, nil)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}

	data := teacherPage{page: pg, Classes: make([]teacherClass, 0, len(classes))}
	for _, cls := range classes {
		scheme, err := p.deps.GradingSvc.Scheme(c, cls.ID)
		if err != nil {
			return errors.Wrap(err, "loading scheme")
		}
		latest, err := p.deps.SubmissionSvc.LatestByGradeType(c, cls.ID)
		if err != nil {
			return errors.Wrap(err, "loading submissions")
		}
		tc := teacherClass{Class: cls}
		for _, gt := range scheme.GradeTypes {
			tc.GradeTypes = append(tc.GradeTypes, gradeTypeStatus{GradeType: gt, Submission: latestOf(latest, gt.ID)})
		}
		data.Classes = append(data.Classes, tc)
	}
	return ctx.Render(http.StatusOK, "teacher", data)
}

func latestOf(latest map[string]submission.Submission, gradeTypeID string) *submission.Submission {
	if sub, ok := latest[gradeTypeID]; ok {
		return &sub
	}
	return nil
}

func (p *pages) teacherClass(ctx echo.Context) error {
	data, err := p.classPage(ctx)
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "class", data)
}

// classPage gathers the roster, the scheme and one grade sheet per grade type of the class.
func (p *pages) classPage(ctx echo.Context) (classPage, error) {
	pg, err := p.newPage(ctx, "Class")
	if err != nil {
		return classPage{}, err
	}
	cls, _, err := p.guard.load(ctx, ctx.Param("id"), true)
	if err != nil {
		return classPage{}, err
	}
	pg.Title = cls.Title()
	c := ctx.Request().Context()

	roster, err := p.deps.ClassSvc.Roster(c, cls.ID)
	if err != nil {
		return classPage{}, errors.Wrap(err, "loading roster")
	}
	scheme, err := p.deps.GradingSvc.Scheme(c, cls.ID)
	if err != nil {
		return classPage{}, errors.Wrap(err, "loading scheme")
	}
	scores, err := p.deps.GradingSvc.Scores(c, cls.ID)
	if err != nil {
		return classPage{}, errors.Wrap(err, "loading scores")
	}
	latest, err := p.deps.SubmissionSvc.LatestByGradeType(c, cls.ID)
	if err != nil {
		return classPage{}, errors.Wrap(err, "loading submissions")
	}
	sheet := grading.NewScoreSheet(scores)

	data := classPage{page: pg, Class: cls, Roster: roster, Scheme: scheme}
	for _, gt := range scheme.GradeTypes {
		gs, err := p.deps.GradingSvc.GradeSheet(c, cls.ID, gt.ID)
		if err != nil {
			return classPage{}, errors.Wrap(err, "computing grade sheet")
		}
		sec := gradeTypeSection{
			GradeType:  gt,
			Complete:   gs.Complete,
			Submission: latestOf(latest, gt.ID),
		}
		sec.Locked = sec.Submission != nil && !sec.Submission.IsDeclined()
		for _, cr := range gt.Criteria {
			sec.Components = append(sec.Components, cr.Components...)
		}
		for _, row := range gs.Rows {
			sr := scoreRow{Student: row.Student, Result: row.Result}
			for _, comp := range sec.Components {
				cell := scoreCell{Field: scoreFieldPref + comp.ID + ":" + row.Student.ID, Max: comp.MaxScore}
				if score, ok := sheet.Get(comp.ID, row.Student.ID); ok {
					cell.Value = strconv.FormatFloat(score, 'f', -1, 64)
				}
				sr.Cells = append(sr.Cells, cell)
			}
			sec.Rows = append(sec.Rows, sr)
		}
		data.Sections = append(data.Sections, sec)
	}

	if data.Finals, err = p.deps.GradingSvc.ClassSheet(c, cls.ID); err != nil {
		return classPage{}, errors.Wrap(err, "computing final grades")
	}
	return data, nil
}

// recordScores saves the score form; fields are named `score:<component id>:<student id>` and a blank
// field clears the score.
func (p *pages) recordScores(ctx echo.Context) error {
	cls, _, err := p.guard.load(ctx, ctx.Param("id"), true)
	if err != nil {
		return err
	}
	form, err := ctx.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}

	var data grading.RecordScores
	keys := make([]string, 0, len(form))
	for key := range form {
		if strings.HasPrefix(key, scoreFieldPref) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		ids := strings.SplitN(strings.TrimPrefix(key, scoreFieldPref), ":", 2)
		if len(ids) != 2 {
			continue
		}
		in := grading.ScoreInput{ComponentID: ids[0], StudentID: ids[1]}
		if val := strings.TrimSpace(form.Get(key)); val != "" {
			score, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return p.classPageError(ctx, "Scores must be numbers: "+val)
			}
			in.Score = &score
		}
		data.Scores = append(data.Scores, in)
	}
	if len(data.Scores) == 0 {
		return redirect(ctx, "/teacher/classes/"+cls.ID, "")
	}

	if err = p.deps.GradingSvc.RecordScores(ctx.Request().Context(), cls.ID, data); err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			return p.classPageError(ctx, validationMessage(verr))
		case core.IsConflict(err):
			return p.classPageError(ctx, err.Error())
		default:
			return errors.Wrap(err, "recording scores")
		}
	}
	return redirect(ctx, "/teacher/classes/"+cls.ID, "Scores saved.")
}

func (p *pages) submitGrades(ctx echo.Context) error {
	cls, usr, err := p.guard.load(ctx, ctx.Param("id"), true)
	if err != nil {
		return err
	}
	sub, err := p.deps.SubmissionSvc.Submit(ctx.Request().Context(), cls.ID, ctx.Param("gtid"), usr)
	if err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			return p.classPageError(ctx, validationMessage(verr))
		case core.IsConflict(err):
			return p.classPageError(ctx, err.Error())
		default:
			return errors.Wrap(err, "submitting grades")
		}
	}
	return redirect(ctx, "/teacher/classes/"+cls.ID, sub.GradeTypeName+" grades submitted for review.")
}

func (p *pages) classPageError(ctx echo.Context, msg string) error {
	data, err := p.classPage(ctx)
	if err != nil {
		return err
	}
	data.Message = ""
	data.Error = msg
	return ctx.Render(http.StatusBadRequest, "class", data)
}

func validationMessage(verr *core.ValidationError) string {
	if len(verr.Fields) == 0 {
		return verr.Error()
	}
	msgs := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		msgs = append(msgs, f.Error)
	}
	return strings.Join(msgs, "; ")
}

// Student

func (p *pages) studentDashboard(ctx echo.Context) error {
	pg, err := p.newPage(ctx, "My grades")
	if err != nil {
		return err
	}
	grades, err := p.deps.SubmissionSvc.StudentGrades(ctx.Request().Context(), pg.User.ID)
	if err != nil {
		return errors.Wrap(err, "loading grades")
	}
	return ctx.Render(http.StatusOK, "student", studentPage{page: pg, Classes: grades})
}

func (p *pages) reportCard(ctx echo.Context) error {
	usr, err := p.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	grades, err := p.deps.SubmissionSvc.StudentGrades(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "loading grades")
	}

	var buf bytes.Buffer
	if err = p.deps.Reports.ReportCardPDF(&buf, usr, grades); err != nil {
		return errors.Wrap(err, "rendering report card")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="report-card.pdf"`)
	return ctx.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}
