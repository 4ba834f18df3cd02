package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/user"
)

const contextClassKey = "class"

// classGuard decides who may see or grade a class: admins any class, teachers the classes they
// teach, students (read only) the classes they are enrolled in.
type classGuard struct {
	auth   *authenticator
	clsSvc class.Service
}

func (g classGuard) check(ctx context.Context, usr user.User, cls class.Class, write bool) error {
	switch {
	case usr.IsAdmin():
		return nil
	case usr.IsTeacher() && cls.TeacherID == usr.ID:
		return nil
	case !write && usr.IsStudent():
		enrolled, err := g.clsSvc.IsEnrolled(ctx, cls.ID, usr.ID)
		if err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
		if enrolled {
			return nil
		}
	}
	return core.ErrForbidden
}

// load returns the class if the context user may access it.
func (g classGuard) load(ctx echo.Context, classID string, write bool) (class.Class, user.User, error) {
	usr, err := g.auth.contextUser(ctx)
	if err != nil {
		return class.Class{}, user.User{}, err
	}
	c := ctx.Request().Context()
	cls, err := g.clsSvc.GetByID(c, classID)
	if err != nil {
		return class.Class{}, user.User{}, err
	}
	if err = g.check(c, usr, cls, write); err != nil {
		return class.Class{}, user.User{}, err
	}
	return cls, usr, nil
}

// middleware loads the class of the `:id` path param into the context.
func (g classGuard) middleware(write bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			cls, _, err := g.load(ctx, ctx.Param("id"), write)
			if err != nil {
				return err
			}
			ctx.Set(contextClassKey, cls)
			return next(ctx)
		}
	}
}

func contextClass(ctx echo.Context) (class.Class, error) {
	cls, ok := ctx.Get(contextClassKey).(class.Class)
	if !ok {
		return class.Class{}, errors.Wrap(errObjNotFoundInCtx, "retrieving class from context")
	}
	return cls, nil
}

type classApi struct {
	guard    classGuard
	svc      class.Service
	validate *validator.Validate
}

func registerClassAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps Deps) {
	api := classApi{
		guard:    classGuard{auth: auth, clsSvc: deps.ClassSvc},
		svc:      deps.ClassSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/classes", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())

	dg := cg.Group("/:id", api.guard.middleware(false))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.GET("/students", api.roster)
	dg.POST("/students", api.enroll, adminMiddleware())
	dg.DELETE("/students", api.unenroll, adminMiddleware())
}

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	c := ctx.Request().Context()
	if err := data.Validate(c, api.validate, api.svc); err != nil {
		return err
	}

	cls, err := api.svc.Create(c, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

// query lists the classes visible to the context user.
func (api *classApi) query(ctx echo.Context) error {
	filter := new(class.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []class.Class{})
	}
	filter.Clean()

	usr, err := api.guard.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	switch {
	case usr.IsAdmin():
	case usr.IsTeacher():
		filter.TeacherID = usr.ID
	case usr.IsStudent():
		filter.StudentID = usr.ID
	default:
		return ctx.JSON(http.StatusOK, []class.Class{})
	}

	classes, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, class.OrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) update(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}

	var data class.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	c := ctx.Request().Context()
	if err = data.Validate(c, cls, api.validate, api.svc); err != nil {
		return err
	}

	cls, err = api.svc.Update(c, cls, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) destroy(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), cls.ID); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) roster(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.Roster(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "loading roster")
	}
	if students == nil {
		students = []class.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *classApi) enroll(ctx echo.Context) error {
	return api.changeEnrollment(ctx, api.svc.Enroll)
}

func (api *classApi) unenroll(ctx echo.Context) error {
	return api.changeEnrollment(ctx, api.svc.Unenroll)
}

func (api *classApi) changeEnrollment(
	ctx echo.Context,
	change func(context.Context, string, class.Enrollment) (int, error),
) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}

	var data class.Enrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Enrollment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cnt, err := change(ctx.Request().Context(), cls.ID, data)
	if err != nil {
		return errors.Wrap(err, "changing enrollment")
	}
	return ctx.JSON(http.StatusOK, EnrollmentResponse{Count: cnt})
}

type EnrollmentResponse struct {
	Count int `json:"count"`
}
