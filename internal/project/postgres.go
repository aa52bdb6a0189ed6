package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
	apperrors "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/postgres"
)

const projectColumns = `id, key, name, lead, description, url, assignee_type, created_at, updated_at`

// PostgresRepository stores projects in the projects table.
type PostgresRepository struct {
	db *postgres.Client
}

func NewPostgresRepository(db *postgres.Client) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p issue.Project) error {
	_, err := r.db.DB.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Key, p.Name, p.Lead, p.Description, p.URL, string(p.AssigneeType), p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.ErrProjectExists
	}
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, p issue.Project) error {
	res, err := r.db.DB.ExecContext(ctx, `
		UPDATE projects
		SET key = $2, name = $3, lead = $4, description = $5, url = $6, assignee_type = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, p.Key, p.Name, p.Lead, p.Description, p.URL, string(p.AssigneeType), p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.ErrProjectExists
	}
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (issue.Project, error) {
	return r.queryOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (issue.Project, error) {
	return r.queryOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE key = $1`, key)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (issue.Project, error) {
	return r.queryOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE LOWER(name) = LOWER($1)`, name)
}

func (r *PostgresRepository) List(ctx context.Context) ([]issue.Project, error) {
	rows, err := r.db.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []issue.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, arg any) (issue.Project, error) {
	p, err := scanProject(r.db.DB.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return issue.Project{}, apperrors.ErrProjectNotFound
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (issue.Project, error) {
	var p issue.Project
	var assignee string
	err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Lead, &p.Description, &p.URL, &assignee, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return issue.Project{}, err
	}
	if err != nil {
		return issue.Project{}, fmt.Errorf("scanning project: %w", err)
	}
	p.AssigneeType = issue.AssigneeType(assignee)
	return p, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.ErrProjectNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
