// Package directory resolves job titles and user display data owned by the
// marketplace services.
package directory

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"messaging-service/internal/models"
)

// Directory batch-resolves display data. Unknown ids are absent from the result.
type Directory interface {
	JobTitles(ctx context.Context, jobIDs []string) (map[string]string, error)
	Users(ctx context.Context, userIDs []string) (map[string]models.UserDisplay, error)
}

// SQLDirectory reads the shared jobs and users tables.
type SQLDirectory struct {
	db *sqlx.DB
}

// NewSQLDirectory constructs a SQLDirectory.
func NewSQLDirectory(db *sqlx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// JobTitles returns job titles keyed by job id.
func (d *SQLDirectory) JobTitles(ctx context.Context, jobIDs []string) (map[string]string, error) {
	ids := lo.Uniq(lo.Compact(jobIDs))
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, title FROM jobs WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID    string `db:"id"`
		Title string `db:"title"`
	}
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	titles := make(map[string]string, len(rows))
	for _, row := range rows {
		titles[row.ID] = row.Title
	}
	return titles, nil
}

// Users returns display data keyed by user id.
func (d *SQLDirectory) Users(ctx context.Context, userIDs []string) (map[string]models.UserDisplay, error) {
	ids := lo.Uniq(lo.Compact(userIDs))
	if len(ids) == 0 {
		return map[string]models.UserDisplay{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, name, email, COALESCE(avatar, '') AS avatar FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []models.UserDisplay
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return lo.KeyBy(rows, func(u models.UserDisplay) string { return u.ID }), nil
}
