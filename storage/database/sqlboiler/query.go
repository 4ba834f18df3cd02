// Package boiledrepos implements the domain repositories on postgres with sqlboiler's query builder.
package boiledrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/alama/core"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var dialect = drivers.Dialect{
	LQ:                   '"',
	RQ:                   '"',
	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

// newQuery builds a postgres select query from mods.
func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

// orderBy maps orderings to a qm.OrderBy; columns holds the SQL expression of each field.
func orderBy(ordering []core.DBOrdering, columns map[string]string, dflt string) qm.QueryMod {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		list = append(list, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(list) == 0 {
		return qm.OrderBy(dflt)
	}
	return qm.OrderBy(strings.Join(list, ", "))
}

// exec runs a raw write statement with $N placeholders.
func exec(ctx context.Context, ex core.DBExecutor, query string, args ...interface{}) (int64, error) {
	res, err := queries.Raw(query, args...).ExecContext(ctx, ex)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// exists runs SELECT EXISTS on query.
func exists(ctx context.Context, ex core.DBExecutor, query string, args ...interface{}) (bool, error) {
	var res struct {
		Exists bool `boil:"exists"`
	}
	if err := queries.Raw(`SELECT EXISTS (`+query+`) AS "exists"`, args...).Bind(ctx, ex, &res); err != nil {
		return false, err
	}
	return res.Exists, nil
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func pqErrCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool { return pqErrCode(err) == pqUniqueViolation }

func isFKViolation(err error) bool { return pqErrCode(err) == pqForeignKeyViolation }

// withTx runs fn in a transaction, rolled back when fn fails.
func withTx(ctx context.Context, db core.DB, fn func(tx core.DBExecutor) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

func ifaces(ids []string) []interface{} {
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}

// isUUID reports whether all ids are valid uuids; postgres errors on malformed uuid values.
func isUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
