package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/alama/apps/api/echo"
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

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBParam is empty when the app runs on the in-memory store.
	DBParam struct {
		dig.In
		DB *sql.DB `optional:"true"`
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc       user.Service
		SubjectSvc    subject.Service
		ClassSvc      class.Service
		GradingSvc    grading.Service
		SubmissionSvc submission.Service
		DashboardSvc  dashboard.Service
		Reports       *reportsvc.Renderer
	}

	submissionParams struct {
		dig.In
		Repo     submission.Repository
		ClassSvc class.Service
		GradeSvc grading.Service
		UserSvc  user.Service
		MailSvc  core.EmailService
		Archive  core.ArchiveStore
		Reports  *reportsvc.Renderer
		Logger   core.Logger
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, core.DB) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newArchiveStore(conf *core.Config, logger core.Logger) core.ArchiveStore {
	store, err := archivesvc.NewStore(context.Background(), conf.Archive)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up archive store: %v", err), err)
	}
	return store
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	class.InitValidators(validate, translator)
	return validate
}

func newSubmissionService(p submissionParams) submission.Service {
	return submission.NewService(p.Repo, p.ClassSvc, p.GradeSvc, p.UserSvc, p.MailSvc, p.Archive, p.Reports, p.Logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		SubjectSvc:    p.SubjectSvc,
		ClassSvc:      p.ClassSvc,
		GradingSvc:    p.GradingSvc,
		SubmissionSvc: p.SubmissionSvc,
		DashboardSvc:  p.DashboardSvc,
		Reports:       p.Reports,
	})
}

func provideSQLStorage(c *dig.Container) {
	must(c.Provide(newDB))
	must(c.Provide(boiledrepos.NewUserRepository))
	must(c.Provide(boiledrepos.NewSubjectRepository))
	must(c.Provide(boiledrepos.NewClassRepository))
	must(c.Provide(boiledrepos.NewGradingRepository))
	must(c.Provide(boiledrepos.NewSubmissionRepository))
	must(c.Provide(sqlxrepos.NewStatsRepository))
}

func provideInmemStorage(c *dig.Container) {
	must(c.Provide(inmemdb.NewDB))
	must(c.Provide(inmemdb.NewUserRepository))
	must(c.Provide(inmemdb.NewSubjectRepository))
	must(c.Provide(inmemdb.NewClassRepository))
	must(c.Provide(inmemdb.NewGradingRepository))
	must(c.Provide(inmemdb.NewSubmissionRepository))
	must(c.Provide(inmemdb.NewStatsRepository))
}

// New returns a new dependency injection dig.Container.
// When inmem is set, the repositories are backed by the in-memory store instead of PostgreSQL.
func New(inmem bool) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	if inmem {
		provideInmemStorage(c)
	} else {
		provideSQLStorage(c)
	}
	must(c.Provide(newEmailService))
	must(c.Provide(newArchiveStore))
	must(c.Provide(reportsvc.NewRenderer))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(subject.NewService))
	must(c.Provide(class.NewService))
	must(c.Provide(grading.NewService))
	must(c.Provide(newSubmissionService))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(newServer))

	return c
}

// Visualize writes the object graph of c in DOT format.
func Visualize(c *dig.Container, w io.Writer) error {
	return dig.Visualize(c, w)
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
