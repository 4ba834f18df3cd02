package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/submission"
)

type submissionApi struct {
	auth     *authenticator
	guard    classGuard
	svc      submission.Service
	validate *validator.Validate
}

func registerSubmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps Deps) {
	api := submissionApi{
		auth:     auth,
		guard:    classGuard{auth: auth, clsSvc: deps.ClassSvc},
		svc:      deps.SubmissionSvc,
		validate: deps.Validate,
	}

	g.POST("/classes/:id/grade-types/:gtid/submit", api.submit, jwt, teacherMiddleware, api.guard.middleware(true))

	sg := g.Group("/submissions", jwt)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.POST("/:id/approve", api.approve, adminMiddleware())
	sg.POST("/:id/decline", api.decline, adminMiddleware())

	g.GET("/me/grades", api.myGrades, jwt, studentMiddleware)
}

func (api *submissionApi) submit(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), cls.ID, ctx.Param("gtid"), usr)
	if err != nil {
		return errors.Wrap(err, "submitting grades")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

// query lists every submission to admins, and their own submissions to teachers.
func (api *submissionApi) query(ctx echo.Context) error {
	filter := new(submission.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []submission.Submission{})
	}
	filter.Clean()

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	switch {
	case usr.IsAdmin():
	case usr.IsTeacher():
		filter.TeacherID = usr.ID
	default:
		return errHttpForbidden
	}

	subs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if !usr.IsAdmin() && sub.TeacherID != usr.ID {
		return core.ErrForbidden
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) approve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "approving submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) decline(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data submission.Decline
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Decline")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Decline(ctx.Request().Context(), ctx.Param("id"), usr, data)
	if err != nil {
		return errors.Wrap(err, "declining submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) myGrades(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	grades, err := api.svc.StudentGrades(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "loading grades")
	}
	if grades == nil {
		grades = []submission.ClassGrades{}
	}
	return ctx.JSON(http.StatusOK, grades)
}
