package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/class"
)

func Test_classApi_access(t *testing.T) {
	app := setup(t)
	path := "/api/v1/classes"

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	other := app.Teacher(t, "other")
	student := app.Student(t, "Hero", "hero")
	outsider := app.Student(t, "Outsider", "outsider")

	math := app.Subject(t, "MATH101", "Algebra")
	cls := app.Class(t, "Section A", math, teacher, student)
	app.Class(t, "Section B", math, other)
	detail := path + "/" + cls.ID

	app.run(t, []httpTest{
		{name: "Auth required", path: detail, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin", path: detail, token: app.token(t, admin)},
		{name: "class teacher", path: detail, token: app.token(t, teacher)},
		{
			name: "other teacher", path: detail, token: app.token(t, other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "enrolled student", path: detail, token: app.token(t, student)},
		{name: "enrolled student (roster)", path: detail + "/students", token: app.token(t, student)},
		{name: "outsider student", path: detail, token: app.token(t, outsider), wantCode: http.StatusForbidden},
		{
			name: "not found", path: path + "/a3e8fbfd-5d0b-4a4e-9a34-8b2a2c51d6c3", token: app.token(t, admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "class not found"}),
		},
		{name: "teacher cannot update", method: http.MethodPut, path: detail, token: app.token(t, teacher), body: []byte(`{}`), wantCode: http.StatusForbidden},
		{name: "teacher cannot delete", method: http.MethodDelete, path: detail, token: app.token(t, teacher), wantCode: http.StatusForbidden},
	})

	t.Run("list is scoped to the user", func(t *testing.T) {
		for _, tc := range []struct {
			token string
			want  int
		}{
			{token: app.token(t, admin), want: 2},
			{token: app.token(t, teacher), want: 1},
			{token: app.token(t, other), want: 1},
			{token: app.token(t, student), want: 1},
			{token: app.token(t, outsider), want: 0},
		} {
			rec := app.do(http.MethodGet, path, tc.token)
			require.Equal(t, http.StatusOK, rec.Code)

			var classes []class.Class
			unmarshalBody(t, rec, &classes)
			assert.Len(t, classes, tc.want)
		}
	})
}

func Test_classApi_manage(t *testing.T) {
	app := setup(t)
	path := "/api/v1/classes"
	ctx := context.Background()

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "Hero", "hero")
	student2 := app.Student(t, "Sidekick", "sidekick")
	adminToken := app.token(t, admin)
	math := app.Subject(t, "MATH101", "Algebra")

	newClass := func(name, teacherID, year string) []byte {
		return marchallObj(t, class.NewClass{Name: name, SubjectID: math.ID, TeacherID: teacherID, SchoolYear: year, Term: class.TermFirst})
	}

	var cls class.Class
	t.Run("create", func(t *testing.T) {
		rec := app.do(http.MethodPost, path, adminToken, newClass("Section A", teacher.ID, "2024-2025"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &cls)
		assert.Equal(t, "MATH101", cls.SubjectCode)
		assert.Equal(t, teacher.DisplayName(), cls.TeacherName)
	})

	app.run(t, []httpTest{
		{
			name: "teacher must be a teacher", method: http.MethodPost, path: path, token: adminToken,
			body:     newClass("Section B", student.ID, "2024-2025"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"teacher_id": "user is not a teacher"}),
		},
		{
			name: "duplicate", method: http.MethodPost, path: path, token: adminToken,
			body:     newClass("Section A", teacher.ID, "2024-2025"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": class.ErrClassExists.Error()}),
		},
		{
			name: "invalid school year", method: http.MethodPost, path: path, token: adminToken,
			body: newClass("Section C", teacher.ID, "2024"), wantCode: http.StatusBadRequest,
		},
		{
			name: "teacher cannot create", method: http.MethodPost, path: path, token: app.token(t, teacher),
			body: newClass("Section D", teacher.ID, "2024-2025"), wantCode: http.StatusForbidden,
		},
		{
			name: "enroll", method: http.MethodPost, path: path + "/" + cls.ID + "/students", token: adminToken,
			body: marchallObj(t, class.Enrollment{StudentIDs: []string{student.ID, student2.ID, student.ID}}),
			wantData: marchallObj(t, EnrollmentResponse{Count: 2}),
		},
		{
			name: "cannot enroll a teacher", method: http.MethodPost, path: path + "/" + cls.ID + "/students", token: adminToken,
			body:     marchallObj(t, class.Enrollment{StudentIDs: []string{teacher.ID}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_ids": "user is not a student: " + teacher.DisplayName()}),
		},
		{
			name: "enroll nobody", method: http.MethodPost, path: path + "/" + cls.ID + "/students", token: adminToken,
			body: []byte(`{"student_ids":[]}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unenroll", method: http.MethodDelete, path: path + "/" + cls.ID + "/students", token: adminToken,
			body: marchallObj(t, class.Enrollment{StudentIDs: []string{student2.ID}}), wantData: marchallObj(t, EnrollmentResponse{Count: 1}),
		},
	})

	roster, err := app.ClassSvc.Roster(ctx, cls.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, student.ID, roster[0].ID)

	t.Run("student sees their class", func(t *testing.T) {
		rec := app.do(http.MethodGet, path+"/"+cls.ID, app.token(t, student))
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = app.do(http.MethodGet, path+"/"+cls.ID, app.token(t, student2))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("cannot delete a class with approved grades", func(t *testing.T) {
		gt, comp := app.SimpleScheme(t, cls.ID, "Midterm", 100, 50)
		app.Score(t, cls.ID, comp.ID, student.ID, 40)
		sub, err := app.SubmissionSvc.Submit(ctx, cls.ID, gt.ID, teacher)
		require.NoError(t, err)
		_, err = app.SubmissionSvc.Approve(ctx, sub.ID, admin)
		require.NoError(t, err)

		rec := app.do(http.MethodDelete, path+"/"+cls.ID, adminToken)
		assert.Equal(t, http.StatusConflict, rec.Code)
		checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "class has approved grades"})}, rec)
	})
}
