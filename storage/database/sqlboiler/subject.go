package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/subject"
)

const subjectColumns = `id, code, name, description, created_at, updated_at`

var subjectOrderColumns = map[string]string{
	"code":       "code",
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type subjectRow struct {
	ID          string    `boil:"id"`
	Code        string    `boil:"code"`
	Name        string    `boil:"name"`
	Description string    `boil:"description"`
	CreatedAt   time.Time `boil:"created_at"`
	UpdatedAt   time.Time `boil:"updated_at"`
}

func (row subjectRow) unboil() subject.Subject {
	return subject.Subject{
		ID:          row.ID,
		Code:        row.Code,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type subjectRepository struct {
	db core.DB
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db core.DB) subject.Repository {
	return &subjectRepository{db: db}
}

func (repo subjectRepository) CheckCodeUniqueness(ctx context.Context, code string, excluded []subject.Subject) error {
	mods := []qm.QueryMod{qm.Select("id"), qm.From("subject"), qm.Where("code = ?", code), qm.Limit(1)}
	if len(excluded) > 0 {
		ids := make(pq.StringArray, 0, len(excluded))
		for _, s := range excluded {
			ids = append(ids, s.ID)
		}
		mods = append(mods, qm.Where("id <> ALL(?)", ids))
	}

	var rows []struct {
		ID string `boil:"id"`
	}
	if err := newQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return errors.Wrap(err, "checking subject uniqueness")
	}
	if len(rows) > 0 {
		return subject.ErrCodeExists
	}
	return nil
}

func (repo subjectRepository) CreateSubject(ctx context.Context, subj subject.Subject) (subject.Subject, error) {
	subj.ID = uuid.New().String()
	_, err := exec(ctx, repo.db,
		`INSERT INTO subject (`+subjectColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		subj.ID, subj.Code, subj.Name, subj.Description, subj.CreatedAt.UTC(), subj.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return subject.Subject{}, subject.ErrCodeExists
		}
		return subject.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return subj, nil
}

func (repo subjectRepository) QuerySubjects(ctx context.Context, filter *subject.QueryFilter, ordering []core.DBOrdering) ([]subject.Subject, error) {
	mods := []qm.QueryMod{qm.Select(subjectColumns), qm.From("subject")}
	if filter != nil && filter.Search != "" {
		val := "%" + filter.Search + "%"
		mods = append(mods, qm.Where("(code ILIKE ? OR name ILIKE ?)", val, val))
	}
	mods = append(mods, orderBy(ordering, subjectOrderColumns, "code ASC"))

	var rows []subjectRow
	if err := newQuery(mods...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]subject.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.unboil())
	}
	return subjects, nil
}

func (repo subjectRepository) GetSubject(ctx context.Context, id string) (subject.Subject, error) {
	if !isUUID(id) {
		return subject.Subject{}, subject.ErrNotFound
	}
	var row subjectRow
	err := newQuery(qm.Select(subjectColumns), qm.From("subject"), qm.Where("id = ?", id)).Bind(ctx, repo.db, &row)
	if err != nil {
		return subject.Subject{}, trapNoRows(err, subject.ErrNotFound, "finding subject")
	}
	return row.unboil(), nil
}

func (repo subjectRepository) UpdateSubject(ctx context.Context, subj subject.Subject) (subject.Subject, error) {
	cnt, err := exec(ctx, repo.db,
		`UPDATE subject SET code = $2, name = $3, description = $4, updated_at = $5 WHERE id = $1`,
		subj.ID, subj.Code, subj.Name, subj.Description, subj.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return subject.Subject{}, subject.ErrCodeExists
		}
		return subject.Subject{}, errors.Wrap(err, "updating subject")
	}
	if cnt == 0 {
		return subject.Subject{}, subject.ErrNotFound
	}
	return subj, nil
}

func (repo subjectRepository) DeleteSubjectsByID(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 || !isUUID(ids...) {
		return 0, nil
	}
	cnt, err := exec(ctx, repo.db, `DELETE FROM subject WHERE id = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		if isFKViolation(err) {
			return 0, subject.ErrHasClasses
		}
		return 0, errors.Wrap(err, "deleting subjects")
	}
	return int(cnt), nil
}
