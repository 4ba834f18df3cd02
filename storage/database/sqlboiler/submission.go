package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/submission"
)

const submissionColumns = `gs.id, gs.class_id, gs.grade_type_id, gs.teacher_id, gs.status, gs.remarks, gs.submitted_at,
	COALESCE(gs.reviewed_by::text, '') AS reviewed_by, gs.reviewed_at,
	c.name AS class_name, s.code AS subject_code, gt.name AS grade_type_name,
	` + userDisplayName + ` AS teacher_name,
	COALESCE(NULLIF(r.name, ''), r.username, r.email, '') AS reviewer_name`

const gradeColumns = `g.submission_id, g.student_id, g.student_name, g.percentage, g.grade_point, g.remarks`

type (
	submissionRow struct {
		ID            string    `boil:"id"`
		ClassID       string    `boil:"class_id"`
		GradeTypeID   string    `boil:"grade_type_id"`
		TeacherID     string    `boil:"teacher_id"`
		Status        string    `boil:"status"`
		Remarks       string    `boil:"remarks"`
		SubmittedAt   time.Time `boil:"submitted_at"`
		ReviewedBy    string    `boil:"reviewed_by"`
		ReviewedAt    null.Time `boil:"reviewed_at"`
		ClassName     string    `boil:"class_name"`
		SubjectCode   string    `boil:"subject_code"`
		GradeTypeName string    `boil:"grade_type_name"`
		TeacherName   string    `boil:"teacher_name"`
		ReviewerName  string    `boil:"reviewer_name"`
	}

	gradeRow struct {
		SubmissionID string  `boil:"submission_id"`
		StudentID    string  `boil:"student_id"`
		StudentName  string  `boil:"student_name"`
		Percentage   float64 `boil:"percentage"`
		GradePoint   float64 `boil:"grade_point"`
		Remarks      string  `boil:"remarks"`
	}

	approvedGradeRow struct {
		SubmissionID string  `boil:"submission_id"`
		StudentID    string  `boil:"student_id"`
		StudentName  string  `boil:"student_name"`
		Percentage   float64 `boil:"percentage"`
		GradePoint   float64 `boil:"grade_point"`
		Remarks      string  `boil:"remarks"`
		GradeTypeID  string  `boil:"grade_type_id"`
	}
)

func (row submissionRow) unboil() submission.Submission {
	sub := submission.Submission{
		ID:            row.ID,
		ClassID:       row.ClassID,
		GradeTypeID:   row.GradeTypeID,
		TeacherID:     row.TeacherID,
		Status:        row.Status,
		Remarks:       row.Remarks,
		SubmittedAt:   row.SubmittedAt.UTC(),
		ReviewedBy:    row.ReviewedBy,
		ClassName:     row.ClassName,
		SubjectCode:   row.SubjectCode,
		GradeTypeName: row.GradeTypeName,
		TeacherName:   row.TeacherName,
		ReviewerName:  row.ReviewerName,
	}
	if row.ReviewedAt.Valid {
		sub.ReviewedAt = row.ReviewedAt.Time.UTC()
	}
	return sub
}

func (row gradeRow) unboil() submission.Grade {
	return submission.Grade{
		SubmissionID: row.SubmissionID,
		StudentID:    row.StudentID,
		StudentName:  row.StudentName,
		Percentage:   row.Percentage,
		GradePoint:   row.GradePoint,
		Remarks:      row.Remarks,
	}
}

type submissionRepository struct {
	db core.DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db core.DB) submission.Repository {
	return &submissionRepository{db: db}
}

func submissionQuery(mods ...qm.QueryMod) *queries.Query {
	return newQuery(append([]qm.QueryMod{
		qm.Select(submissionColumns),
		qm.From("grade_submission AS gs"),
		qm.InnerJoin("class AS c ON c.id = gs.class_id"),
		qm.InnerJoin("subject AS s ON s.id = c.subject_id"),
		qm.InnerJoin("grade_type AS gt ON gt.id = gs.grade_type_id"),
		qm.InnerJoin(`"user" AS u ON u.id = gs.teacher_id`),
		qm.LeftOuterJoin(`"user" AS r ON r.id = gs.reviewed_by`),
	}, mods...)...)
}

func (repo submissionRepository) OpenSubmission(ctx context.Context, classID, gradeTypeID string) (submission.Submission, error) {
	if !isUUID(classID, gradeTypeID) {
		return submission.Submission{}, submission.ErrNotFound
	}
	var row submissionRow
	err := submissionQuery(
		qm.Where("gs.class_id = ? AND gs.grade_type_id = ?", classID, gradeTypeID),
		qm.Where("gs.status IN (?, ?)", submission.StatusPending, submission.StatusApproved),
		qm.Limit(1),
	).Bind(ctx, repo.db, &row)
	if err != nil {
		return submission.Submission{}, trapNoRows(err, submission.ErrNotFound, "finding open submission")
	}
	return row.unboil(), nil
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission, grades []submission.Grade) (submission.Submission, error) {
	sub.ID = uuid.New().String()
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		_, err := exec(ctx, tx,
			`INSERT INTO grade_submission (id, class_id, grade_type_id, teacher_id, status, remarks, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sub.ID, sub.ClassID, sub.GradeTypeID, sub.TeacherID, sub.Status, sub.Remarks, sub.SubmittedAt.UTC())
		if err != nil {
			return err
		}
		for _, g := range grades {
			_, err = exec(ctx, tx,
				`INSERT INTO grade (submission_id, student_id, student_name, percentage, grade_point, remarks)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				sub.ID, g.StudentID, g.StudentName, g.Percentage, g.GradePoint, g.Remarks)
			if err != nil {
				return errors.Wrap(err, "inserting grade")
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			// lost a race against another submission of the same grade type
			if open, oerr := repo.OpenSubmission(ctx, sub.ClassID, sub.GradeTypeID); oerr == nil && open.IsApproved() {
				return submission.Submission{}, submission.ErrAlreadyApproved
			}
			return submission.Submission{}, submission.ErrAlreadyPending
		}
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return repo.GetSubmission(ctx, sub.ID)
}

func (repo submissionRepository) Review(ctx context.Context, id, status, reviewerID, remarks string, at time.Time) error {
	if !isUUID(id) {
		return submission.ErrNotFound
	}
	cnt, err := exec(ctx, repo.db,
		`UPDATE grade_submission SET status = $2, reviewed_by = $3, remarks = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'PENDING'`,
		id, status, null.NewString(reviewerID, reviewerID != ""), remarks, at.UTC())
	if err != nil {
		return errors.Wrap(err, "reviewing submission")
	}
	if cnt > 0 {
		return nil
	}

	found, err := exists(ctx, repo.db, `SELECT 1 FROM grade_submission WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "finding submission")
	}
	if !found {
		return submission.ErrNotFound
	}
	return core.ErrInvalidTransition
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, filter *submission.QueryFilter) ([]submission.Submission, error) {
	var mods []qm.QueryMod
	if filter != nil {
		for _, id := range []string{filter.ClassID, filter.GradeTypeID, filter.TeacherID} {
			if id != "" && !isUUID(id) {
				return []submission.Submission{}, nil
			}
		}
		if filter.Status != "" {
			mods = append(mods, qm.Where("gs.status = ?", filter.Status))
		}
		if filter.ClassID != "" {
			mods = append(mods, qm.Where("gs.class_id = ?", filter.ClassID))
		}
		if filter.GradeTypeID != "" {
			mods = append(mods, qm.Where("gs.grade_type_id = ?", filter.GradeTypeID))
		}
		if filter.TeacherID != "" {
			mods = append(mods, qm.Where("gs.teacher_id = ?", filter.TeacherID))
		}
	}
	mods = append(mods, qm.OrderBy("gs.submitted_at DESC, gs.id DESC"))

	var rows []submissionRow
	if err := submissionQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.unboil())
	}
	return subs, nil
}

func (repo submissionRepository) GetSubmission(ctx context.Context, id string) (submission.Submission, error) {
	if !isUUID(id) {
		return submission.Submission{}, submission.ErrNotFound
	}
	var row submissionRow
	if err := submissionQuery(qm.Where("gs.id = ?", id)).Bind(ctx, repo.db, &row); err != nil {
		return submission.Submission{}, trapNoRows(err, submission.ErrNotFound, "finding submission")
	}
	sub := row.unboil()

	var rows []gradeRow
	err := queries.Raw(`SELECT `+gradeColumns+` FROM grade g WHERE g.submission_id = $1 ORDER BY g.student_name, g.student_id`, id).
		Bind(ctx, repo.db, &rows)
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "querying grades")
	}
	sub.Grades = make([]submission.Grade, 0, len(rows))
	for _, g := range rows {
		sub.Grades = append(sub.Grades, g.unboil())
	}
	return sub, nil
}

func (repo submissionRepository) ApprovedGrades(ctx context.Context, studentID string) (map[string]submission.Grade, error) {
	grades := make(map[string]submission.Grade)
	if !isUUID(studentID) {
		return grades, nil
	}
	var rows []approvedGradeRow
	err := queries.Raw(
		`SELECT `+gradeColumns+`, gs.grade_type_id
		FROM grade g INNER JOIN grade_submission gs ON gs.id = g.submission_id
		WHERE g.student_id = $1 AND gs.status = 'APPROVED'`,
		studentID).Bind(ctx, repo.db, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying approved grades")
	}
	for _, row := range rows {
		grades[row.GradeTypeID] = gradeRow{
			SubmissionID: row.SubmissionID,
			StudentID:    row.StudentID,
			StudentName:  row.StudentName,
			Percentage:   row.Percentage,
			GradePoint:   row.GradePoint,
			Remarks:      row.Remarks,
		}.unboil()
	}
	return grades, nil
}
