package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
)

const (
	classColumns = `c.id, c.name, c.subject_id, c.teacher_id, c.school_year, c.term, c.created_at, c.updated_at,
		s.code AS subject_code, s.name AS subject_name,
		`+userDisplayName+` AS teacher_name,
		(SELECT COUNT(*) FROM enrollment e WHERE e.class_id = c.id) AS student_count`

	// display name of a user aliased as u
	userDisplayName = `COALESCE(NULLIF(u.name, ''), u.username, u.email)`
)

var classOrderColumns = map[string]string{
	"name":        "c.name",
	"school_year": "c.school_year",
	"term":        "c.term",
	"created_at":  "c.created_at",
	"updated_at":  "c.updated_at",
}

type classRow struct {
	ID           string    `boil:"id"`
	Name         string    `boil:"name"`
	SubjectID    string    `boil:"subject_id"`
	TeacherID    string    `boil:"teacher_id"`
	SchoolYear   string    `boil:"school_year"`
	Term         string    `boil:"term"`
	CreatedAt    time.Time `boil:"created_at"`
	UpdatedAt    time.Time `boil:"updated_at"`
	SubjectCode  string    `boil:"subject_code"`
	SubjectName  string    `boil:"subject_name"`
	TeacherName  string    `boil:"teacher_name"`
	StudentCount int       `boil:"student_count"`
}

func (row classRow) unboil() class.Class {
	return class.Class{
		ID:           row.ID,
		Name:         row.Name,
		SubjectID:    row.SubjectID,
		TeacherID:    row.TeacherID,
		SchoolYear:   row.SchoolYear,
		Term:         row.Term,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		SubjectCode:  row.SubjectCode,
		SubjectName:  row.SubjectName,
		TeacherName:  row.TeacherName,
		StudentCount: row.StudentCount,
	}
}

type classRepository struct {
	db core.DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db core.DB) class.Repository {
	return &classRepository{db: db}
}

func classQuery(mods ...qm.QueryMod) *queries.Query {
	return newQuery(append([]qm.QueryMod{
		qm.Select(classColumns),
		qm.From("class AS c"),
		qm.InnerJoin("subject AS s ON s.id = c.subject_id"),
		qm.InnerJoin(`"user" AS u ON u.id = c.teacher_id`),
	}, mods...)...)
}

func (repo classRepository) CheckClassUniqueness(ctx context.Context, cls class.Class) error {
	if !isUUID(cls.SubjectID) {
		return nil
	}
	mods := []qm.QueryMod{
		qm.Select("id"),
		qm.From("class"),
		qm.Where("subject_id = ? AND name = ? AND school_year = ? AND term = ?", cls.SubjectID, cls.Name, cls.SchoolYear, cls.Term),
		qm.Limit(1),
	}
	if cls.ID != "" {
		mods = append(mods, qm.Where("id <> ?", cls.ID))
	}

	var rows []struct {
		ID string `boil:"id"`
	}
	if err := newQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return errors.Wrap(err, "checking class uniqueness")
	}
	if len(rows) > 0 {
		return class.ErrClassExists
	}
	return nil
}

func (repo classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	cls.ID = uuid.New().String()
	_, err := exec(ctx, repo.db,
		`INSERT INTO class (id, name, subject_id, teacher_id, school_year, term, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cls.ID, cls.Name, cls.SubjectID, cls.TeacherID, cls.SchoolYear, cls.Term, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return class.Class{}, class.ErrClassExists
		}
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return repo.GetClass(ctx, cls.ID)
}

func (repo classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	var mods []qm.QueryMod
	if filter != nil {
		for _, id := range []string{filter.SubjectID, filter.TeacherID, filter.StudentID} {
			if id != "" && !isUUID(id) {
				return []class.Class{}, nil
			}
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Where("(c.name ILIKE ? OR s.code ILIKE ? OR s.name ILIKE ?)", val, val, val))
		}
		if filter.SubjectID != "" {
			mods = append(mods, qm.Where("c.subject_id = ?", filter.SubjectID))
		}
		if filter.TeacherID != "" {
			mods = append(mods, qm.Where("c.teacher_id = ?", filter.TeacherID))
		}
		if filter.StudentID != "" {
			mods = append(mods, qm.Where("EXISTS (SELECT 1 FROM enrollment e WHERE e.class_id = c.id AND e.student_id = ?)", filter.StudentID))
		}
		if filter.SchoolYear != "" {
			mods = append(mods, qm.Where("c.school_year = ?", filter.SchoolYear))
		}
		if filter.Term != "" {
			mods = append(mods, qm.Where("c.term = ?", filter.Term))
		}
	}
	mods = append(mods, orderBy(ordering, classOrderColumns, "c.school_year DESC, s.code ASC, c.name ASC"))

	var rows []classRow
	if err := classQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.unboil())
	}
	return classes, nil
}

func (repo classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	if !isUUID(id) {
		return class.Class{}, class.ErrNotFound
	}
	var row classRow
	if err := classQuery(qm.Where("c.id = ?", id)).Bind(ctx, repo.db, &row); err != nil {
		return class.Class{}, trapNoRows(err, class.ErrNotFound, "finding class")
	}
	return row.unboil(), nil
}

func (repo classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	cnt, err := exec(ctx, repo.db,
		`UPDATE class SET name = $2, subject_id = $3, teacher_id = $4, school_year = $5, term = $6, updated_at = $7
		WHERE id = $1`,
		cls.ID, cls.Name, cls.SubjectID, cls.TeacherID, cls.SchoolYear, cls.Term, cls.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return class.Class{}, class.ErrClassExists
		}
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if cnt == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return repo.GetClass(ctx, cls.ID)
}

func (repo classRepository) DeleteClass(ctx context.Context, id string) error {
	if !isUUID(id) {
		return class.ErrNotFound
	}
	cnt, err := exec(ctx, repo.db, `DELETE FROM class WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if cnt == 0 {
		return class.ErrNotFound
	}
	return nil
}

func (repo classRepository) HasApprovedSubmissions(ctx context.Context, classID string) (bool, error) {
	if !isUUID(classID) {
		return false, nil
	}
	ok, err := exists(ctx, repo.db, `SELECT 1 FROM grade_submission WHERE class_id = $1 AND status = 'APPROVED'`, classID)
	return ok, errors.Wrap(err, "checking approved submissions")
}

func (repo classRepository) Enroll(ctx context.Context, classID string, studentIDs []string) (int, error) {
	if !isUUID(classID) {
		return 0, class.ErrNotFound
	}
	if len(studentIDs) == 0 {
		return 0, nil
	}
	cnt, err := exec(ctx, repo.db,
		`INSERT INTO enrollment (class_id, student_id, created_at)
		SELECT $1::uuid, student_id, $3::timestamptz FROM UNNEST($2::uuid[]) AS student_id
		ON CONFLICT DO NOTHING`,
		classID, pq.StringArray(studentIDs), time.Now().UTC())
	if err != nil {
		if isFKViolation(err) {
			return 0, class.ErrNotFound
		}
		return 0, errors.Wrap(err, "enrolling students")
	}
	return int(cnt), nil
}

func (repo classRepository) Unenroll(ctx context.Context, classID string, studentIDs []string) (int, error) {
	if !isUUID(classID) || len(studentIDs) == 0 || !isUUID(studentIDs...) {
		return 0, nil
	}
	var cnt int64
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		_, err := exec(ctx, tx,
			`DELETE FROM component_score WHERE student_id = ANY($2) AND component_id IN (
				SELECT cp.id FROM component cp
				INNER JOIN grading_criterion gc ON gc.id = cp.criterion_id
				INNER JOIN grade_type gt ON gt.id = gc.grade_type_id
				WHERE gt.class_id = $1 AND NOT EXISTS (
					SELECT 1 FROM grade_submission gs
					WHERE gs.grade_type_id = gt.id AND gs.status IN ('PENDING', 'APPROVED')
				)
			)`,
			classID, pq.StringArray(studentIDs))
		if err != nil {
			return errors.Wrap(err, "deleting scores")
		}
		cnt, err = exec(ctx, tx, `DELETE FROM enrollment WHERE class_id = $1 AND student_id = ANY($2)`, classID, pq.StringArray(studentIDs))
		return errors.Wrap(err, "deleting enrollments")
	})
	if err != nil {
		return 0, err
	}
	return int(cnt), nil
}

func (repo classRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	if !isUUID(classID, studentID) {
		return false, nil
	}
	ok, err := exists(ctx, repo.db, `SELECT 1 FROM enrollment WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	return ok, errors.Wrap(err, "checking enrollment")
}

func (repo classRepository) Roster(ctx context.Context, classID string) ([]class.Student, error) {
	if !isUUID(classID) {
		return []class.Student{}, nil
	}
	var rows []struct {
		ID       string `boil:"id"`
		Name     string `boil:"name"`
		Username string `boil:"username"`
		Email    string `boil:"email"`
	}
	err := queries.Raw(
		`SELECT u.id, `+userDisplayName+` AS name, COALESCE(u.username, '') AS username, COALESCE(u.email, '') AS email
		FROM enrollment e INNER JOIN "user" u ON u.id = e.student_id
		WHERE e.class_id = $1
		ORDER BY 2, u.id`,
		classID).Bind(ctx, repo.db, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	students := make([]class.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, class.Student{ID: row.ID, Name: row.Name, Username: row.Username, Email: row.Email})
	}
	return students, nil
}
