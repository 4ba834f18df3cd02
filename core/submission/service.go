package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/user"
	"github.com/trezcool/alama/services/telemetry"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("submission")
	ErrAlreadyPending  = core.NewConflictError("a submission is already pending review")
	ErrAlreadyApproved = core.NewConflictError("grades already approved")
)

type (
	Repository interface {
		// OpenSubmission returns the PENDING or APPROVED submission of the class grade type, or ErrNotFound.
		OpenSubmission(ctx context.Context, classID, gradeTypeID string) (Submission, error)
		// CreateSubmission stores the submission & its grades in a single transaction.
		CreateSubmission(ctx context.Context, sub Submission, grades []Grade) (Submission, error)
		// Review moves a PENDING submission to status with a single conditional write.
		// It returns core.ErrInvalidTransition when the submission is no longer PENDING.
		Review(ctx context.Context, id, status, reviewerID, remarks string, at time.Time) error
		// QuerySubmissions lists submissions, most recent first.
		QuerySubmissions(ctx context.Context, filter *QueryFilter) ([]Submission, error)
		// GetSubmission returns the submission along with its grades.
		GetSubmission(ctx context.Context, id string) (Submission, error)
		// ApprovedGrades returns the approved grades of the student by grade type ID.
		ApprovedGrades(ctx context.Context, studentID string) (map[string]Grade, error)
	}

	// SheetRenderer renders the grades of a submission as a PDF document.
	SheetRenderer interface {
		GradeSheetPDF(w io.Writer, sub Submission) error
	}

	Service interface {
		Submit(ctx context.Context, classID, gradeTypeID string, teacher user.User) (Submission, error)
		Approve(ctx context.Context, id string, admin user.User) (Submission, error)
		Decline(ctx context.Context, id string, admin user.User, d Decline) (Submission, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Submission, error)
		GetByID(ctx context.Context, id string) (Submission, error)
		// LatestByGradeType returns the most recent submission of each grade type of the class.
		LatestByGradeType(ctx context.Context, classID string) (map[string]Submission, error)
		StudentGrades(ctx context.Context, studentID string) ([]ClassGrades, error)
	}

	service struct {
		repo     Repository
		clsSvc   class.Service
		gradeSvc grading.Service
		usrSvc   user.Service
		mailSvc  core.EmailService
		archive  core.ArchiveStore
		renderer SheetRenderer
		logger   core.Logger
		now      func() time.Time // mockable
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(
	repo Repository,
	clsSvc class.Service,
	gradeSvc grading.Service,
	usrSvc user.Service,
	mailSvc core.EmailService,
	archive core.ArchiveStore,
	renderer SheetRenderer,
	logger core.Logger,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(clsSvc, "clsSvc"),
		vala.IsNotNil(gradeSvc, "gradeSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(archive, "archive"),
		vala.IsNotNil(renderer, "renderer"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		clsSvc:   clsSvc,
		gradeSvc: gradeSvc,
		usrSvc:   usrSvc,
		mailSvc:  mailSvc,
		archive:  archive,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit snapshots the computed grades of the class grade type for admin review.
func (svc *service) Submit(ctx context.Context, classID, gradeTypeID string, teacher user.User) (Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "submission.Submit",
		attribute.String("class.id", classID),
		attribute.String("grade_type.id", gradeTypeID),
	)
	sub, err := svc.submit(ctx, classID, gradeTypeID, teacher)
	telemetry.EndSpan(span, err)
	return sub, err
}

func (svc *service) submit(ctx context.Context, classID, gradeTypeID string, teacher user.User) (Submission, error) {
	cls, err := svc.clsSvc.GetByID(ctx, classID)
	if err != nil {
		return Submission{}, err
	}
	if cls.TeacherID != teacher.ID {
		return Submission{}, core.ErrForbidden
	}

	switch open, err := svc.repo.OpenSubmission(ctx, classID, gradeTypeID); {
	case err == nil && open.IsPending():
		return Submission{}, ErrAlreadyPending
	case err == nil:
		return Submission{}, ErrAlreadyApproved
	case !core.IsNotFound(err):
		return Submission{}, errors.Wrap(err, "finding open submission")
	}

	sheet, err := svc.gradeSvc.GradeSheet(ctx, classID, gradeTypeID)
	if err != nil {
		return Submission{}, err
	}
	if !sheet.Complete {
		return Submission{}, core.NewFieldError("grade_type_id", "grading criteria weights must add up to 100%")
	}
	if len(sheet.Rows) == 0 {
		return Submission{}, core.NewFieldError("class_id", "class has no enrolled students")
	}

	grades := make([]Grade, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		grades = append(grades, Grade{
			StudentID:   row.Student.ID,
			StudentName: row.Student.Name,
			Percentage:  row.Percentage,
			GradePoint:  row.GradePoint,
			Remarks:     row.Remarks,
		})
	}

	sub, err := svc.repo.CreateSubmission(ctx, Submission{
		ClassID:       cls.ID,
		GradeTypeID:   sheet.GradeType.ID,
		TeacherID:     teacher.ID,
		Status:        StatusPending,
		SubmittedAt:   svc.now().UTC(),
		ClassName:     cls.Name,
		SubjectCode:   cls.SubjectCode,
		GradeTypeName: sheet.GradeType.Name,
		TeacherName:   teacher.DisplayName(),
	}, grades)
	if err != nil {
		return Submission{}, err
	}
	transitions.WithLabelValues(StatusPending).Inc()

	svc.notifyAdmins(ctx, sub, len(grades))
	return sub, nil
}

func (svc *service) Approve(ctx context.Context, id string, admin user.User) (Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "submission.Approve", attribute.String("submission.id", id))
	sub, err := svc.approve(ctx, id, admin)
	telemetry.EndSpan(span, err)
	return sub, err
}

func (svc *service) approve(ctx context.Context, id string, admin user.User) (Submission, error) {
	if err := svc.repo.Review(ctx, id, StatusApproved, admin.ID, "", svc.now().UTC()); err != nil {
		return Submission{}, err
	}
	transitions.WithLabelValues(StatusApproved).Inc()

	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "finding submission")
	}
	svc.archiveGradeSheet(ctx, sub)
	svc.notifyTeacher(ctx, sub)
	return sub, nil
}

func (svc *service) Decline(ctx context.Context, id string, admin user.User, d Decline) (Submission, error) {
	ctx, span := telemetry.StartSpan(ctx, "submission.Decline", attribute.String("submission.id", id))
	sub, err := svc.decline(ctx, id, admin, d)
	telemetry.EndSpan(span, err)
	return sub, err
}

func (svc *service) decline(ctx context.Context, id string, admin user.User, d Decline) (Submission, error) {
	remarks := core.CleanString(d.Remarks)
	if remarks == "" {
		return Submission{}, core.NewFieldError("remarks", "remarks are required to decline a submission")
	}
	if err := svc.repo.Review(ctx, id, StatusDeclined, admin.ID, remarks, svc.now().UTC()); err != nil {
		return Submission{}, err
	}
	transitions.WithLabelValues(StatusDeclined).Inc()

	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "finding submission")
	}
	svc.notifyTeacher(ctx, sub)
	return sub, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter)
}

func (svc *service) GetByID(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *service) LatestByGradeType(ctx context.Context, classID string) (map[string]Submission, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, &QueryFilter{ClassID: classID})
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Submission, len(subs))
	for _, sub := range subs {
		if _, ok := latest[sub.GradeTypeID]; !ok { // most recent first
			latest[sub.GradeTypeID] = sub
		}
	}
	return latest, nil
}

// StudentGrades lists the approved grades of the student, per enrolled class.
func (svc *service) StudentGrades(ctx context.Context, studentID string) ([]ClassGrades, error) {
	classes, err := svc.clsSvc.Query(ctx, &class.QueryFilter{StudentID: studentID}, []core.DBOrdering{
		{Field: "school_year", Ascending: false},
		{Field: "name", Ascending: true},
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	approved, err := svc.repo.ApprovedGrades(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying approved grades")
	}

	scale := svc.gradeSvc.Scale()
	result := make([]ClassGrades, 0, len(classes))
	for _, cls := range classes {
		scheme, err := svc.gradeSvc.Scheme(ctx, cls.ID)
		if err != nil {
			return nil, errors.Wrap(err, "loading scheme")
		}

		cg := ClassGrades{Class: cls, GradeTypes: make([]GradeTypeGrade, 0, len(scheme.GradeTypes))}
		parts := make([]grading.WeightedPercentage, 0, len(scheme.GradeTypes))
		for _, gt := range scheme.GradeTypes {
			gtg := GradeTypeGrade{GradeTypeID: gt.ID, Name: gt.Name, Weight: gt.Weight}
			if g, ok := approved[gt.ID]; ok {
				res := g.Result()
				gtg.Grade = &res
				parts = append(parts, grading.WeightedPercentage{Percentage: g.Percentage, Weight: gt.Weight})
			}
			cg.GradeTypes = append(cg.GradeTypes, gtg)
		}
		if len(parts) > 0 && len(parts) == len(scheme.GradeTypes) && scheme.GradeTypesWeight() == grading.FullWeight {
			final := scale.Result(grading.FinalPercentage(parts...))
			cg.Final = &final
		}
		result = append(result, cg)
	}
	return result, nil
}

// ArchiveKey is the archive location of the grade sheet of an approved submission.
func ArchiveKey(sub Submission) string {
	return fmt.Sprintf("grade-sheets/%s/%s/%s.pdf", sub.ClassID, sub.GradeTypeID, sub.ID)
}

// archiveGradeSheet stores the PDF grade sheet of sub; failures are logged, the approval stands.
func (svc *service) archiveGradeSheet(ctx context.Context, sub Submission) {
	var buf bytes.Buffer
	err := svc.renderer.GradeSheetPDF(&buf, sub)
	if err == nil {
		err = svc.archive.Put(ctx, ArchiveKey(sub), "application/pdf", &buf)
	}
	if err != nil {
		archiveFailures.Inc()
		svc.logger.Error("submission.archiveGradeSheet", errors.Wrap(err, "archiving "+ArchiveKey(sub)))
	}
}

func (svc *service) notifyAdmins(ctx context.Context, sub Submission, students int) {
	active := true
	admins, err := svc.usrSvc.Query(ctx, &user.QueryFilter{Roles: []string{user.RoleAdmin}, IsActive: &active}, nil)
	if err != nil {
		svc.logger.Error("submission.notifyAdmins", errors.Wrap(err, "querying admins"))
		return
	}

	msgs := make([]*core.EmailMessage, 0, len(admins))
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: admin.DisplayName(), Address: admin.Email}},
			Subject:      fmt.Sprintf("%s grades submitted for %s", sub.GradeTypeName, sub.ClassTitle()),
			TemplateName: "submission_submitted",
			TemplateData: map[string]interface{}{
				"Name":         admin.DisplayName(),
				"Teacher":      sub.TeacherName,
				"GradeType":    sub.GradeTypeName,
				"Class":        sub.ClassTitle(),
				"Students":     students,
				"SubmissionID": sub.ID,
			},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func (svc *service) notifyTeacher(ctx context.Context, sub Submission) {
	teacher, err := svc.usrSvc.GetByID(ctx, sub.TeacherID)
	if err != nil {
		svc.logger.Error("submission.notifyTeacher", errors.Wrap(err, "finding teacher"))
		return
	}
	if teacher.Email == "" {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: teacher.DisplayName(), Address: teacher.Email}},
		Subject:      fmt.Sprintf("%s grades for %s %s", sub.GradeTypeName, sub.ClassTitle(), sub.Status),
		TemplateName: "submission_reviewed",
		TemplateData: map[string]interface{}{
			"Name":      teacher.DisplayName(),
			"GradeType": sub.GradeTypeName,
			"Class":     sub.ClassTitle(),
			"Status":    sub.Status,
			"Reviewer":  sub.ReviewerName,
			"Remarks":   sub.Remarks,
			"ClassID":   sub.ClassID,
		},
	})
}
