package dashboard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core/dashboard"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/testutil"
)

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	stats, err := env.DashboardSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dashboard.Stats{}, stats)

	admin := env.Admin(t, "admin")
	teacher := env.Teacher(t, "teach")
	stu := env.Student(t, "Stu", "stu")
	env.Student(t, "Other", "other")
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone", "", "", []string{user.RoleStudent}, false)
	cls := env.Class(t, "Section A", env.Subject(t, "MATH101", "Algebra"), teacher, stu)
	env.Subject(t, "PHY101", "Physics")
	mid, midComp := env.SimpleScheme(t, cls.ID, "Midterm", 50, 10)
	final, _ := env.SimpleScheme(t, cls.ID, "Final", 50, 10)
	env.Score(t, cls.ID, midComp.ID, stu.ID, 10)

	sub, err := env.SubmissionSvc.Submit(ctx, cls.ID, mid.ID, teacher)
	require.NoError(t, err)
	_, err = env.SubmissionSvc.Approve(ctx, sub.ID, admin)
	require.NoError(t, err)
	_, err = env.SubmissionSvc.Submit(ctx, cls.ID, final.ID, teacher)
	require.NoError(t, err)

	stats, err = env.DashboardSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dashboard.Stats{
		Admins:   1,
		Teachers: 1,
		Students: 2,
		Subjects: 2,
		Classes:  1,
		Pending:  1,
		Approved: 1,
	}, stats)
}
