package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/models"
)

const templateColumns = `name, channel, category, subject, content, variables, is_active, description, created_at, updated_at`

// CreateTemplate inserts a new template.
func (d *DB) CreateTemplate(ctx context.Context, t models.Template) error {
	variables, err := json.Marshal(variablesOrEmpty(t.Variables))
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	query := `
	INSERT INTO notification_templates (
		name, channel, category, subject, content, variables, is_active, description, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = d.Conn.Exec(ctx, query,
		t.Name, string(t.Channel), string(t.Category), t.Subject, t.Content,
		variables, t.IsActive, t.Description, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by name.
func (d *DB) GetTemplate(ctx context.Context, name string) (models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE name = $1`
	t, err := scanTemplate(d.Conn.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, errs.ErrNotFound
		}
		return models.Template{}, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns matching templates ordered by name.
func (d *DB) ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.Template, error) {
	var conds []string
	var args []any
	if f.Channel != "" {
		args = append(args, string(f.Channel))
		conds = append(conds, fmt.Sprintf("channel = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	query := `SELECT ` + templateColumns + ` FROM notification_templates`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY name`

	rows, err := d.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]models.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// UpdateTemplate overwrites every mutable column of an existing template.
func (d *DB) UpdateTemplate(ctx context.Context, t models.Template) error {
	variables, err := json.Marshal(variablesOrEmpty(t.Variables))
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}
	query := `
	UPDATE notification_templates
	SET channel = $1, category = $2, subject = $3, content = $4, variables = $5,
	    is_active = $6, description = $7, updated_at = $8
	WHERE name = $9`
	result, err := d.Conn.Exec(ctx, query,
		string(t.Channel), string(t.Category), t.Subject, t.Content, variables,
		t.IsActive, t.Description, t.UpdatedAt, t.Name)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteTemplate(ctx context.Context, name string) error {
	result, err := d.Conn.Exec(ctx, `DELETE FROM notification_templates WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (models.Template, error) {
	var t models.Template
	var channel, category string
	var variables []byte
	err := row.Scan(&t.Name, &channel, &category, &t.Subject, &t.Content, &variables,
		&t.IsActive, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Template{}, err
	}
	t.Channel = models.Channel(channel)
	t.Category = models.Category(category)
	if err := decodeJSON(variables, &t.Variables); err != nil {
		return models.Template{}, fmt.Errorf("invalid variables for template %s: %w", t.Name, err)
	}
	return t, nil
}

func variablesOrEmpty(vs []models.Variable) []models.Variable {
	if vs == nil {
		return []models.Variable{}
	}
	return vs
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
