package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/grading"
)

// gradingApi edits the grading scheme & scores of a class; reserved to the class teacher and admins.
type gradingApi struct {
	guard    classGuard
	svc      grading.Service
	validate *validator.Validate
}

func registerGradingAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps Deps) {
	api := gradingApi{
		guard:    classGuard{auth: auth, clsSvc: deps.ClassSvc},
		svc:      deps.GradingSvc,
		validate: deps.Validate,
	}

	// the class routes share their prefix with the class API: route level middleware only, as a group
	// middleware would shadow `/classes/:id`
	cg := g.Group("/classes/:id")
	guard := []echo.MiddlewareFunc{jwt, api.guard.middleware(true)}
	cg.GET("/scheme", api.scheme, guard...)
	cg.POST("/grade-types", api.addGradeType, guard...)
	cg.GET("/scores", api.scores, guard...)
	cg.PUT("/scores", api.recordScores, guard...)
	cg.GET("/grade-types/:gtid/sheet", api.gradeSheet, guard...)
	cg.GET("/sheet", api.classSheet, guard...)

	gtg := g.Group("/grade-types/:id", jwt)
	gtg.PUT("", api.updateGradeType)
	gtg.DELETE("", api.deleteGradeType)
	gtg.POST("/criteria", api.addCriterion)

	crg := g.Group("/criteria/:id", jwt)
	crg.PUT("", api.updateCriterion)
	crg.DELETE("", api.deleteCriterion)
	crg.POST("/components", api.addComponent)

	cpg := g.Group("/components/:id", jwt)
	cpg.PUT("", api.updateComponent)
	cpg.DELETE("", api.deleteComponent)
}

func (api *gradingApi) scheme(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	scheme, err := api.svc.Scheme(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "loading scheme")
	}
	return ctx.JSON(http.StatusOK, SchemeResponse{Scheme: scheme, Complete: scheme.Complete()})
}

func (api *gradingApi) scores(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	scores, err := api.svc.Scores(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "loading scores")
	}
	if scores == nil {
		scores = []grading.Score{}
	}
	return ctx.JSON(http.StatusOK, scores)
}

func (api *gradingApi) recordScores(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}

	var data grading.RecordScores
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordScores")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = api.svc.RecordScores(ctx.Request().Context(), cls.ID, data); err != nil {
		return errors.Wrap(err, "recording scores")
	}
	return api.scores(ctx)
}

func (api *gradingApi) gradeSheet(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	gs, err := api.svc.GradeSheet(ctx.Request().Context(), cls.ID, ctx.Param("gtid"))
	if err != nil {
		return errors.Wrap(err, "computing grade sheet")
	}
	return ctx.JSON(http.StatusOK, gs)
}

func (api *gradingApi) classSheet(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}
	cs, err := api.svc.ClassSheet(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "computing class sheet")
	}
	return ctx.JSON(http.StatusOK, cs)
}

// Grade types

func (api *gradingApi) addGradeType(ctx echo.Context) error {
	cls, err := contextClass(ctx)
	if err != nil {
		return err
	}

	var data grading.GradeTypeInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeTypeInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	gt, err := api.svc.AddGradeType(ctx.Request().Context(), cls.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding grade type")
	}
	return ctx.JSON(http.StatusCreated, gt)
}

// gradeType loads the grade type of the `:id` path param, checking access to its class.
func (api *gradingApi) gradeType(ctx echo.Context) (grading.GradeType, error) {
	gt, err := api.svc.GetGradeType(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return grading.GradeType{}, err
	}
	if _, _, err = api.guard.load(ctx, gt.ClassID, true); err != nil {
		return grading.GradeType{}, err
	}
	return gt, nil
}

func (api *gradingApi) updateGradeType(ctx echo.Context) error {
	gt, err := api.gradeType(ctx)
	if err != nil {
		return err
	}

	var data grading.GradeTypeInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeTypeInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	gt, err = api.svc.UpdateGradeType(ctx.Request().Context(), gt.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating grade type")
	}
	return ctx.JSON(http.StatusOK, gt)
}

func (api *gradingApi) deleteGradeType(ctx echo.Context) error {
	gt, err := api.gradeType(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteGradeType(ctx.Request().Context(), gt.ID); err != nil {
		return errors.Wrap(err, "deleting grade type")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Criteria

func (api *gradingApi) addCriterion(ctx echo.Context) error {
	gt, err := api.gradeType(ctx)
	if err != nil {
		return err
	}

	var data grading.CriterionInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CriterionInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.AddCriterion(ctx.Request().Context(), gt.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding criterion")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *gradingApi) criterion(ctx echo.Context) (grading.Criterion, error) {
	c, err := api.svc.GetCriterion(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return grading.Criterion{}, err
	}
	if _, _, err = api.guard.load(ctx, c.ClassID, true); err != nil {
		return grading.Criterion{}, err
	}
	return c, nil
}

func (api *gradingApi) updateCriterion(ctx echo.Context) error {
	c, err := api.criterion(ctx)
	if err != nil {
		return err
	}

	var data grading.CriterionInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CriterionInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.UpdateCriterion(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating criterion")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *gradingApi) deleteCriterion(ctx echo.Context) error {
	c, err := api.criterion(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCriterion(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting criterion")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Components

func (api *gradingApi) addComponent(ctx echo.Context) error {
	c, err := api.criterion(ctx)
	if err != nil {
		return err
	}

	var data grading.ComponentInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ComponentInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	comp, err := api.svc.AddComponent(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding component")
	}
	return ctx.JSON(http.StatusCreated, comp)
}

func (api *gradingApi) component(ctx echo.Context) (grading.Component, error) {
	comp, err := api.svc.GetComponent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return grading.Component{}, err
	}
	if _, _, err = api.guard.load(ctx, comp.ClassID, true); err != nil {
		return grading.Component{}, err
	}
	return comp, nil
}

func (api *gradingApi) updateComponent(ctx echo.Context) error {
	comp, err := api.component(ctx)
	if err != nil {
		return err
	}

	var data grading.ComponentInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ComponentInput")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	comp, err = api.svc.UpdateComponent(ctx.Request().Context(), comp.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating component")
	}
	return ctx.JSON(http.StatusOK, comp)
}

func (api *gradingApi) deleteComponent(ctx echo.Context) error {
	comp, err := api.component(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteComponent(ctx.Request().Context(), comp.ID); err != nil {
		return errors.Wrap(err, "deleting component")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type SchemeResponse struct {
	grading.Scheme
	Complete bool `json:"complete"`
}
