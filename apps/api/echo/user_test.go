package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/testutil"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	path := "/api/v1/users/login"

	testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "Pwd.1234", []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, app.UserRepo, "Gone", "gone", "gone@test.cd", "Pwd.1234", []string{user.RoleStudent}, false)

	app.run(t, []httpTest{
		{
			name: "missing credentials", method: http.MethodPost, path: path, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "wrong password", method: http.MethodPost, path: path,
			body:     marchallObj(t, LoginRequest{Username: "teacher", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: path,
			body:     marchallObj(t, LoginRequest{Username: "ghost", Password: "Pwd.1234"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", method: http.MethodPost, path: path,
			body:     marchallObj(t, LoginRequest{Username: "gone", Password: "Pwd.1234"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("by username or email", func(t *testing.T) {
		for _, uname := range []string{"teacher", "TEACHER@test.cd"} {
			rec := app.do(http.MethodPost, path, "", marchallObj(t, LoginRequest{Username: uname, Password: "Pwd.1234"}))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp LoginResponse
			unmarshalBody(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)

			// the token grants access to the API
			rec = app.do(http.MethodGet, "/api/v1/classes", resp.Token)
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		usr, err := app.UserSvc.GetByUsername(context.Background(), "teacher")
		require.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero())
	})
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	path := "/api/v1/users"

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "Hero", "hero")

	app.run(t, []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: path, token: app.token(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Admin required (teacher)", path: path, token: app.token(t, teacher),
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("filter by role", func(t *testing.T) {
		rec := app.do(http.MethodGet, path+"?role="+user.RoleTeacher, app.token(t, admin))
		require.Equal(t, http.StatusOK, rec.Code)

		var users []user.User
		unmarshalBody(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, teacher.ID, users[0].ID)
	})

	t.Run("roles", func(t *testing.T) {
		rec := app.do(http.MethodGet, path+"/roles", app.token(t, admin))
		require.Equal(t, http.StatusOK, rec.Code)

		var roles []user.Role
		unmarshalBody(t, rec, &roles)
		assert.Equal(t, user.Roles, roles)
	})
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	path := "/api/v1/users/register"

	admin := app.Admin(t, "admin")
	principal := testutil.CreateUser(t, app.UserRepo, "Principal", "principal", "principal@test.cd", "", []string{user.RoleAdminPrincipal}, true)

	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New " + uname,
			Username:        uname,
			Email:           uname + "@test.cd",
			Password:        "Complex.Pwd-2021",
			PasswordConfirm: "Complex.Pwd-2021",
			Roles:           roles,
		})
	}

	app.run(t, []httpTest{
		{
			name: "cannot set a higher role", method: http.MethodPost, path: path,
			body: newUser("boss", user.RoleAdminPrincipal), token: app.token(t, admin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{
			name: "teacher", method: http.MethodPost, path: path,
			body: newUser("mwalimu", user.RoleTeacher), token: app.token(t, admin),
			wantCode: http.StatusCreated,
		},
		{
			name: "duplicate username", method: http.MethodPost, path: path,
			body: newUser("mwalimu", user.RoleTeacher), token: app.token(t, principal),
			wantCode: http.StatusBadRequest,
		},
	})

	usr, err := app.UserSvc.GetByUsername(context.Background(), "mwalimu")
	require.NoError(t, err)
	assert.True(t, usr.IsTeacher())
	assert.True(t, usr.IsActive)
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)

	admin := app.Admin(t, "admin")
	teacher := app.Teacher(t, "teacher")
	student := app.Student(t, "Hero", "hero")
	other := app.Student(t, "Other", "other")

	app.run(t, []httpTest{
		{name: "own profile", path: "/api/v1/users/" + student.ID, token: app.token(t, student)},
		{
			name: "someone else's profile", path: "/api/v1/users/" + other.ID, token: app.token(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "admin sees anyone", path: "/api/v1/users/" + other.ID, token: app.token(t, admin)},
		{
			name: "non-admin cannot change roles", method: http.MethodPut, path: "/api/v1/users/" + student.ID,
			body: []byte(`{"roles":["admin:"]}`), token: app.token(t, student), wantCode: http.StatusForbidden,
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/api/v1/users/" + admin.ID,
			token: app.token(t, admin), wantCode: http.StatusForbidden,
		},
		{
			name: "delete", method: http.MethodDelete, path: "/api/v1/users/" + teacher.ID,
			token: app.token(t, admin), wantCode: http.StatusNoContent,
		},
	})

	_, err := app.UserSvc.GetByID(context.Background(), teacher.ID)
	assert.Error(t, err)
}

func Test_userApi_deactivatedToken(t *testing.T) {
	app := setup(t)

	student := app.Student(t, "Hero", "hero")
	token := app.token(t, student)

	inactive := false
	_, err := app.UserSvc.Update(context.Background(), student, user.UpdateUser{
		Name:     student.Name,
		Username: student.Username,
		Email:    student.Email,
		IsActive: &inactive,
	})
	require.NoError(t, err)

	rec := app.do(http.MethodGet, "/api/v1/me/grades", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
