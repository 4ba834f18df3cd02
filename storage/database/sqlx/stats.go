// Package sqlxrepos holds the read-only reporting queries, written with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core/dashboard"
)

const statsQuery = `
SELECT
	(SELECT COUNT(*) FROM "user" u WHERE u.is_active AND EXISTS (
		SELECT 1 FROM UNNEST(u.roles) AS r WHERE r LIKE 'admin:%')) AS admins,
	(SELECT COUNT(*) FROM "user" u WHERE u.is_active AND EXISTS (
		SELECT 1 FROM UNNEST(u.roles) AS r WHERE r LIKE 'teacher:%')) AS teachers,
	(SELECT COUNT(*) FROM "user" u WHERE u.is_active AND EXISTS (
		SELECT 1 FROM UNNEST(u.roles) AS r WHERE r LIKE 'student:%')) AS students,
	(SELECT COUNT(*) FROM subject) AS subjects,
	(SELECT COUNT(*) FROM class) AS classes,
	(SELECT COUNT(*) FROM grade_submission WHERE status = 'PENDING') AS pending,
	(SELECT COUNT(*) FROM grade_submission WHERE status = 'APPROVED') AS approved,
	(SELECT COUNT(*) FROM grade_submission WHERE status = 'DECLINED') AS declined`

type statsRepository struct {
	db *sqlx.DB
}

var _ dashboard.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *sql.DB) dashboard.Repository {
	return &statsRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo statsRepository) Stats(ctx context.Context) (dashboard.Stats, error) {
	var stats dashboard.Stats
	if err := repo.db.GetContext(ctx, &stats, statsQuery); err != nil {
		return dashboard.Stats{}, errors.Wrap(err, "querying stats")
	}
	return stats, nil
}
