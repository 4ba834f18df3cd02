package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/grading"
)

func Test_gradingApi_scheme(t *testing.T) {
	app := setup(t)

	teacher := app.Teacher(t, "teacher")
	other := app.Teacher(t, "other")
	student := app.Student(t, "Hero", "hero")
	cls := app.Class(t, "Section A", app.Subject(t, "MATH101", "Algebra"), teacher, student)
	token := app.token(t, teacher)
	path := "/api/v1/classes/" + cls.ID

	var midterm grading.GradeType
	t.Run("add grade type", func(t *testing.T) {
		rec := app.do(http.MethodPost, path+"/grade-types", token, []byte(`{"name":"Midterm","weight":40}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &midterm)
		assert.Equal(t, cls.ID, midterm.ClassID)
	})

	var quizzes grading.Criterion
	t.Run("add criterion", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/grade-types/"+midterm.ID+"/criteria", token, []byte(`{"name":"Quizzes","weight":100}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &quizzes)
	})

	var quiz1 grading.Component
	t.Run("add component", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/v1/criteria/"+quizzes.ID+"/components", token, []byte(`{"name":"Quiz 1","max_score":20}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &quiz1)
	})

	app.run(t, []httpTest{
		{
			name: "grade types cannot exceed 100%", method: http.MethodPost, path: path + "/grade-types", token: token,
			body:     []byte(`{"name":"Finals","weight":70}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"weight": "weights must not exceed 100%, 60% remaining"}),
		},
		{
			name: "criteria cannot exceed 100%", method: http.MethodPost, path: "/api/v1/grade-types/" + midterm.ID + "/criteria", token: token,
			body: []byte(`{"name":"Exams","weight":1}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "weight must be positive", method: http.MethodPost, path: path + "/grade-types", token: token,
			body: []byte(`{"name":"Finals","weight":0}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "max score must be positive", method: http.MethodPost, path: "/api/v1/criteria/" + quizzes.ID + "/components", token: token,
			body: []byte(`{"name":"Quiz 2","max_score":0}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "other teacher", path: path + "/scheme", token: app.token(t, other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "other teacher (grade type)", method: http.MethodPut, path: "/api/v1/grade-types/" + midterm.ID, token: app.token(t, other),
			body: []byte(`{"name":"Hacked","weight":10}`), wantCode: http.StatusForbidden,
		},
		{name: "student cannot edit", method: http.MethodPost, path: path + "/grade-types", token: app.token(t, student), body: []byte(`{"name":"Finals","weight":60}`), wantCode: http.StatusForbidden},
		{
			name: "unknown component", method: http.MethodDelete, path: "/api/v1/components/a3e8fbfd-5d0b-4a4e-9a34-8b2a2c51d6c3", token: token,
			wantCode: http.StatusNotFound,
		},
	})

	t.Run("scheme", func(t *testing.T) {
		rec := app.do(http.MethodGet, path+"/scheme", token)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp SchemeResponse
		unmarshalBody(t, rec, &resp)
		assert.False(t, resp.Complete, "grade types only weigh 40%")
		require.Len(t, resp.GradeTypes, 1)
		require.Len(t, resp.GradeTypes[0].Criteria, 1)
		require.Len(t, resp.GradeTypes[0].Criteria[0].Components, 1)
		assert.Equal(t, quiz1.ID, resp.GradeTypes[0].Criteria[0].Components[0].ID)
	})

	t.Run("update grade type", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/api/v1/grade-types/"+midterm.ID, token, []byte(`{"name":"Midterm","weight":100}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		scheme, err := app.GradingSvc.Scheme(context.Background(), cls.ID)
		require.NoError(t, err)
		assert.True(t, scheme.Complete())
	})

	t.Run("delete component", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/api/v1/components/"+quiz1.ID, token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_gradingApi_scores(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "Hero", "hero")
	outsider := app.Student(t, "Outsider", "outsider")
	cls := app.Class(t, "Section A", app.Subject(t, "MATH101", "Algebra"), teacher, student)
	gt, comp := app.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
	token := app.token(t, teacher)
	path := "/api/v1/classes/" + cls.ID + "/scores"

	score := func(studentID string, s float64) grading.ScoreInput {
		return grading.ScoreInput{ComponentID: comp.ID, StudentID: studentID, Score: &s}
	}

	app.run(t, []httpTest{
		{
			name: "score above max", method: http.MethodPut, path: path, token: token,
			body:     marchallObj(t, grading.RecordScores{Scores: []grading.ScoreInput{score(student.ID, 51)}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"scores[0].score": "score must be between 0 and 50"}),
		},
		{
			name: "negative score", method: http.MethodPut, path: path, token: token,
			body: marchallObj(t, grading.RecordScores{Scores: []grading.ScoreInput{score(student.ID, -1)}}), wantCode: http.StatusBadRequest,
		},
		{
			name: "student not enrolled", method: http.MethodPut, path: path, token: token,
			body:     marchallObj(t, grading.RecordScores{Scores: []grading.ScoreInput{score(outsider.ID, 10)}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"scores[0].student_id": "student is not enrolled"}),
		},
		{name: "no scores", method: http.MethodPut, path: path, token: token, body: []byte(`{"scores":[]}`), wantCode: http.StatusBadRequest},
		{
			name: "record", method: http.MethodPut, path: path, token: token,
			body: marchallObj(t, grading.RecordScores{Scores: []grading.ScoreInput{score(student.ID, 45)}}),
		},
	})

	t.Run("grade sheet", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/classes/"+cls.ID+"/grade-types/"+gt.ID+"/sheet", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var gs grading.GradeSheet
		unmarshalBody(t, rec, &gs)
		assert.True(t, gs.Complete)
		require.Len(t, gs.Rows, 1)
		assert.Equal(t, 90.0, gs.Rows[0].Percentage)
		assert.Equal(t, 1.75, gs.Rows[0].GradePoint)
		assert.Equal(t, grading.RemarksPassed, gs.Rows[0].Remarks)
	})

	t.Run("class sheet", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/v1/classes/"+cls.ID+"/sheet", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var cs grading.ClassSheet
		unmarshalBody(t, rec, &cs)
		require.Len(t, cs.Rows, 1)
		assert.Equal(t, 90.0, cs.Rows[0].Final.Percentage)
		assert.Equal(t, grading.RemarksPassed, cs.Rows[0].Final.Remarks)
	})

	t.Run("locked once submitted", func(t *testing.T) {
		sub, err := app.SubmissionSvc.Submit(ctx, cls.ID, gt.ID, teacher)
		require.NoError(t, err)

		body := marchallObj(t, grading.RecordScores{Scores: []grading.ScoreInput{score(student.ID, 10)}})
		rec := app.do(http.MethodPut, path, token, body)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = app.do(http.MethodDelete, "/api/v1/grade-types/"+gt.ID, token)
		assert.Equal(t, http.StatusConflict, rec.Code)

		// declining unlocks the grade type
		_, err = app.SubmissionSvc.Decline(ctx, sub.ID, admin, submissionDecline("fix the scores"))
		require.NoError(t, err)
		rec = app.do(http.MethodPut, path, token, body)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var scores []grading.Score
		unmarshalBody(t, rec, &scores)
		require.Len(t, scores, 1)
		assert.Equal(t, 10.0, scores[0].Score)
	})
}
