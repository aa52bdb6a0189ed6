package visibility

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/postgres"
)

// PostgresStore reads field layouts from PostgreSQL. The tables are created
// by the migrations package.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load reads all layout tables inside one read-only transaction so the
// snapshot is consistent.
func (s *PostgresStore) Load(ctx context.Context) (Layout, error) {
	var layout Layout
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		schemes, defaultID, err := loadSchemes(ctx, tx)
		if err != nil {
			return err
		}
		layout.Schemes = schemes
		layout.DefaultSchemeID = defaultID

		if layout.Assignments, err = loadAssignments(ctx, tx); err != nil {
			return err
		}
		layout.Contexts, err = loadContexts(ctx, tx)
		return err
	})
	if err != nil {
		return Layout{}, fmt.Errorf("loading field layout: %w", err)
	}
	return layout, nil
}

func loadSchemes(ctx context.Context, tx *sql.Tx) ([]Scheme, string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT s.id, s.name, s.is_default, COALESCE(array_agg(h.field_id) FILTER (WHERE h.field_id IS NOT NULL), '{}')
		FROM field_layout_schemes s
		LEFT JOIN field_layout_hidden h ON h.scheme_id = s.id
		GROUP BY s.id, s.name, s.is_default
		ORDER BY s.id`)
	if err != nil {
		return nil, "", fmt.Errorf("querying schemes: %w", err)
	}
	defer rows.Close()

	var schemes []Scheme
	var defaultID string
	for rows.Next() {
		var sc Scheme
		var isDefault bool
		if err := rows.Scan(&sc.ID, &sc.Name, &isDefault, pq.Array(&sc.Hidden)); err != nil {
			return nil, "", fmt.Errorf("scanning scheme: %w", err)
		}
		if isDefault {
			defaultID = sc.ID
		}
		schemes = append(schemes, sc)
	}
	return schemes, defaultID, rows.Err()
}

func loadAssignments(ctx context.Context, tx *sql.Tx) ([]Assignment, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT project_id, issue_type_id, scheme_id FROM field_layout_assignments ORDER BY project_id, issue_type_id`)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ProjectID, &a.IssueTypeID, &a.SchemeID); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadContexts(ctx context.Context, tx *sql.Tx) ([]FieldContext, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT field_id, project_ids, issue_type_ids FROM custom_field_contexts ORDER BY field_id, id`)
	if err != nil {
		return nil, fmt.Errorf("querying field contexts: %w", err)
	}
	defer rows.Close()

	var out []FieldContext
	for rows.Next() {
		var c FieldContext
		if err := rows.Scan(&c.FieldID, pq.Array(&c.ProjectIDs), pq.Array(&c.IssueTypeIDs)); err != nil {
			return nil, fmt.Errorf("scanning field context: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AssignScheme points a project (and optionally one issue type) at a scheme.
func (s *PostgresStore) AssignScheme(ctx context.Context, a Assignment) error {
	issueType := a.IssueTypeID
	if issueType == "" {
		issueType = AnyIssueType
	}
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO field_layout_assignments (project_id, issue_type_id, scheme_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, issue_type_id) DO UPDATE SET scheme_id = EXCLUDED.scheme_id`,
		a.ProjectID, issueType, a.SchemeID)
	if err != nil {
		return fmt.Errorf("assigning scheme %s to project %s: %w", a.SchemeID, a.ProjectID, err)
	}
	return nil
}

// RemoveProject drops every scheme assignment of projectID.
func (s *PostgresStore) RemoveProject(ctx context.Context, projectID string) error {
	if _, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM field_layout_assignments WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("removing assignments of project %s: %w", projectID, err)
	}
	return nil
}
