// Package testutil wires the services on the in-memory store (or a test PostgreSQL database) & provides
// fixtures for tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/dashboard"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/subject"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
	archivesvc "github.com/trezcool/alama/services/archive"
	emailsvc "github.com/trezcool/alama/services/email"
	logsvc "github.com/trezcool/alama/services/logger"
	reportsvc "github.com/trezcool/alama/services/report"
	"github.com/trezcool/alama/storage/database"
	inmemdb "github.com/trezcool/alama/storage/database/inmem"
	boiledrepos "github.com/trezcool/alama/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/alama/storage/database/sqlx"
)

// Env is the whole service stack on a test database.
type Env struct {
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
	Mail       *emailsvc.ConsoleServiceMock
	Archive    core.ArchiveStore
	ArchiveDir string
	Renderer   *reportsvc.Renderer

	DB       *inmemdb.DB // in-memory env only
	SQL      *sql.DB     // SQL env only
	UserRepo user.Repository

	UserSvc       user.Service
	SubjectSvc    subject.Service
	ClassSvc      class.Service
	GradingSvc    grading.Service
	SubmissionSvc submission.Service
	DashboardSvc  dashboard.Service
}

// NewValidator returns a validator with every custom validation registered on translator.
func NewValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	class.InitValidators(validate, translator)
	return validate
}

type repositories struct {
	user       user.Repository
	subject    subject.Repository
	class      class.Repository
	grading    grading.Repository
	submission submission.Repository
	stats      dashboard.Repository
}

// NewEnv returns the service stack on a fresh in-memory database.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := inmemdb.NewDB()
	env := newEnv(t, repositories{
		user:       inmemdb.NewUserRepository(db),
		subject:    inmemdb.NewSubjectRepository(db),
		class:      inmemdb.NewClassRepository(db),
		grading:    inmemdb.NewGradingRepository(db),
		submission: inmemdb.NewSubmissionRepository(db),
		stats:      inmemdb.NewStatsRepository(db),
	})
	env.DB = db
	return env
}

// NewSQLEnv returns the service stack on the PostgreSQL database at $ALAMA_TEST_DATABASE_URL,
// migrated & emptied. The test is skipped when the variable is not set.
func NewSQLEnv(t *testing.T) *Env {
	t.Helper()

	dsn := os.Getenv(TestDatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s is not set", TestDatabaseURLEnv)
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("NewSQLEnv() failed to open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err = database.Migrate(ctx, db); err != nil {
		t.Fatalf("NewSQLEnv() failed to migrate: %v", err)
	}
	if _, err = db.ExecContext(ctx, truncateAll); err != nil {
		t.Fatalf("NewSQLEnv() failed to truncate: %v", err)
	}

	env := newEnv(t, repositories{
		user:       boiledrepos.NewUserRepository(db),
		subject:    boiledrepos.NewSubjectRepository(db),
		class:      boiledrepos.NewClassRepository(db),
		grading:    boiledrepos.NewGradingRepository(db),
		submission: boiledrepos.NewSubmissionRepository(db),
		stats:      sqlxrepos.NewStatsRepository(db),
	})
	env.SQL = db
	return env
}

const (
	TestDatabaseURLEnv = "ALAMA_TEST_DATABASE_URL"

	truncateAll = `TRUNCATE "user", subject, class, enrollment, grade_type, grading_criterion, component,
		component_score, grade_submission, grade CASCADE`
)

func newEnv(t *testing.T, repos repositories) *Env {
	translator := core.NewTranslator()
	env := &Env{
		Conf:       core.NewTestConfig(),
		Validate:   NewValidator(translator),
		Translator: translator,
		Logger:     logsvc.NewDiscardLogger(),
		ArchiveDir: t.TempDir(),
		UserRepo:   repos.user,
	}
	env.Conf.Archive.Dir = env.ArchiveDir
	env.Mail = emailsvc.NewConsoleServiceMock(env.Conf, env.Logger)
	env.Archive = archivesvc.NewLocalStore(env.ArchiveDir)
	env.Renderer = reportsvc.NewRenderer(env.Conf)

	env.UserSvc = user.NewService(repos.user, env.Mail, env.Conf)
	env.SubjectSvc = subject.NewService(repos.subject)
	env.ClassSvc = class.NewService(repos.class, env.SubjectSvc, env.UserSvc)
	env.GradingSvc = grading.NewService(repos.grading, env.ClassSvc)
	env.SubmissionSvc = submission.NewService(
		repos.submission,
		env.ClassSvc,
		env.GradingSvc,
		env.UserSvc,
		env.Mail,
		env.Archive,
		env.Renderer,
		env.Logger,
	)
	env.DashboardSvc = dashboard.NewService(repos.stats)
	return env
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *Env) Admin(t *testing.T, uname string) user.User {
	return CreateUser(t, env.UserRepo, "Admin "+uname, uname, uname+"@test.cd", "", []string{user.RoleAdmin}, true)
}

func (env *Env) Teacher(t *testing.T, uname string) user.User {
	return CreateUser(t, env.UserRepo, "Teacher "+uname, uname, uname+"@test.cd", "", []string{user.RoleTeacher}, true)
}

func (env *Env) Student(t *testing.T, name string, uname string) user.User {
	return CreateUser(t, env.UserRepo, name, uname, uname+"@test.cd", "", []string{user.RoleStudent}, true)
}

func (env *Env) Subject(t *testing.T, code, name string) subject.Subject {
	t.Helper()
	subj, err := env.SubjectSvc.Create(context.Background(), subject.NewSubject{Code: code, Name: name})
	if err != nil {
		t.Fatalf("Subject() failed: %v", err)
	}
	return subj
}

func (env *Env) Class(t *testing.T, name string, subj subject.Subject, teacher user.User, students ...user.User) class.Class {
	t.Helper()
	ctx := context.Background()

	cls, err := env.ClassSvc.Create(ctx, class.NewClass{
		Name:       name,
		SubjectID:  subj.ID,
		TeacherID:  teacher.ID,
		SchoolYear: "2024-2025",
		Term:       class.TermFirst,
	})
	if err != nil {
		t.Fatalf("Class() failed: %v", err)
	}
	if len(students) > 0 {
		ids := make([]string, 0, len(students))
		for _, st := range students {
			ids = append(ids, st.ID)
		}
		if _, err = env.ClassSvc.Enroll(ctx, cls.ID, class.Enrollment{StudentIDs: ids}); err != nil {
			t.Fatalf("Class() failed to enroll: %v", err)
		}
		if cls, err = env.ClassSvc.GetByID(ctx, cls.ID); err != nil {
			t.Fatalf("Class() failed: %v", err)
		}
	}
	return cls
}

// SimpleScheme gives the class a single grade type (weighted gtWeight) made of one criterion
// (weighted 100) with one component scored out of maxScore.
func (env *Env) SimpleScheme(t *testing.T, classID, gtName string, gtWeight, maxScore float64) (grading.GradeType, grading.Component) {
	t.Helper()
	ctx := context.Background()

	gt, err := env.GradingSvc.AddGradeType(ctx, classID, grading.GradeTypeInput{Name: gtName, Weight: gtWeight})
	if err != nil {
		t.Fatalf("SimpleScheme() failed: %v", err)
	}
	c, err := env.GradingSvc.AddCriterion(ctx, gt.ID, grading.CriterionInput{Name: "Exams", Weight: 100})
	if err != nil {
		t.Fatalf("SimpleScheme() failed: %v", err)
	}
	comp, err := env.GradingSvc.AddComponent(ctx, c.ID, grading.ComponentInput{Name: "Exam 1", MaxScore: maxScore})
	if err != nil {
		t.Fatalf("SimpleScheme() failed: %v", err)
	}
	if gt, err = env.GradingSvc.GetGradeType(ctx, gt.ID); err != nil {
		t.Fatalf("SimpleScheme() failed: %v", err)
	}
	return gt, comp
}

// Score records the score of the student on comp.
func (env *Env) Score(t *testing.T, classID, compID, studentID string, score float64) {
	t.Helper()
	err := env.GradingSvc.RecordScores(context.Background(), classID, grading.RecordScores{
		Scores: []grading.ScoreInput{{ComponentID: compID, StudentID: studentID, Score: &score}},
	})
	if err != nil {
		t.Fatalf("Score() failed: %v", err)
	}
}
