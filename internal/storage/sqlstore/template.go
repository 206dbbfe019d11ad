package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"estimator/internal/storage"
)

// createTemplate inserts the template with its bindings and BOM. Parameters
// and formulas must already carry their catalog IDs; BOM items are resolved
// to resources by code and type.
func createTemplate(ctx context.Context, q querier, t *storage.Template) (int64, error) {
	const op = "storage.sqlstore.CreateTemplate"

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	if t.Status == "" {
		t.Status = storage.StatusDraft
	}
	if t.Version == 0 {
		t.Version = 1
	}

	res, err := q.ExecContext(ctx, `INSERT INTO templates (code, name, description, category, status, version,
		base_price, margin_percent, currency, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Code, t.Name, t.Description, t.Category, t.Status, t.Version, t.BasePrice, t.MarginPercent, t.Currency, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: template %q: %w", op, t.Code, storage.ErrCodeConflict)
		}
		return 0, fmt.Errorf("%s: insert template: %w", op, err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, tp := range t.Parameters {
		_, err := q.ExecContext(ctx, `INSERT INTO template_parameters (template_id, parameter_id, group_name, sort_order) VALUES (?, ?, ?, ?)`,
			t.ID, tp.Parameter.ID, tp.GroupName, tp.SortOrder)
		if err != nil {
			return 0, fmt.Errorf("%s: bind parameter %q: %w", op, tp.Parameter.Code, err)
		}
	}

	for _, tf := range t.Formulas {
		_, err := q.ExecContext(ctx, `INSERT INTO template_formulas (template_id, formula_id, execution_order) VALUES (?, ?, ?)`,
			t.ID, tf.Formula.ID, tf.ExecutionOrder)
		if err != nil {
			return 0, fmt.Errorf("%s: bind formula %q: %w", op, tf.Formula.Code, err)
		}
	}

	res, err = q.ExecContext(ctx, `INSERT INTO bom_templates (template_id, include_waste, include_setup, round_quantities,
		quantity_precision) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Bom.IncludeWaste, t.Bom.IncludeSetup, t.Bom.RoundQuantities, t.Bom.QuantityPrecision)
	if err != nil {
		return 0, fmt.Errorf("%s: insert bom: %w", op, err)
	}
	t.Bom.ID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for i := range t.Bom.Items {
		item := &t.Bom.Items[i]

		r, err := findResourceByCode(ctx, q, item.ResourceCode, item.ResourceType)
		if err != nil {
			return 0, fmt.Errorf("%s: bom item %d: %w", op, i, err)
		}

		res, err := q.ExecContext(ctx, `INSERT INTO bom_template_items (bom_template_id, resource_id, quantity_formula,
			quantity_unit, include_condition, group_name, sort_order, is_optional) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Bom.ID, r.ID, item.QuantityFormula, item.QuantityUnit, item.IncludeCondition, item.GroupName,
			item.SortOrder, item.IsOptional)
		if err != nil {
			return 0, fmt.Errorf("%s: insert bom item %q: %w", op, item.ResourceCode, err)
		}
		item.ID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	return t.ID, nil
}

func (s *Storage) CreateTemplate(ctx context.Context, t *storage.Template) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx storage.CatalogTx) error {
		var err error
		id, err = tx.CreateTemplate(ctx, t)
		return err
	})
	return id, err
}

const templateColumns = `id, code, name, description, category, status, version, base_price, margin_percent, currency, created_at`

// GetTemplateByCode loads the full aggregate.
func (s *Storage) GetTemplateByCode(ctx context.Context, code string) (*storage.Template, error) {
	const op = "storage.sqlstore.GetTemplateByCode"

	t := &storage.Template{}
	err := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE code = ?`, code).Scan(
		&t.ID, &t.Code, &t.Name, &t.Description, &t.Category, &t.Status, &t.Version,
		&t.BasePrice, &t.MarginPercent, &t.Currency, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: template code='%s': %w", op, code, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: query template: %w", op, err)
	}

	if t.Parameters, err = s.templateParameters(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.Formulas, err = s.templateFormulas(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.templateBom(ctx, t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

func (s *Storage) templateParameters(ctx context.Context, templateID int64) ([]storage.TemplateParameter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.code, p.name, p.type, p.unit, p.min_value, p.max_value, p.select_options, p.default_value,
			p.is_required, p.validation_pattern, p.validation_message, p.description, tp.group_name, tp.sort_order
		FROM template_parameters tp
		JOIN parameters p ON p.id = tp.parameter_id
		WHERE tp.template_id = ?
		ORDER BY tp.sort_order, p.id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("query parameters: %w", err)
	}
	defer rows.Close()

	params := []storage.TemplateParameter{}
	for rows.Next() {
		var tp storage.TemplateParameter
		row := &tailScanner{rows: rows, tail: []any{&tp.GroupName, &tp.SortOrder}}
		if err := scanParameter(row, &tp.Parameter); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		params = append(params, tp)
	}

	return params, rows.Err()
}

func (s *Storage) templateFormulas(ctx context.Context, templateID int64) ([]storage.TemplateFormula, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.code, f.name, f.expression, f.input_parameters, f.output_unit, f.rounding_method,
			f.precision_places, f.priority, f.conditions, f.is_active, tf.execution_order
		FROM template_formulas tf
		JOIN formulas f ON f.id = tf.formula_id
		WHERE tf.template_id = ?
		ORDER BY tf.execution_order, f.id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("query formulas: %w", err)
	}
	defer rows.Close()

	formulas := []storage.TemplateFormula{}
	for rows.Next() {
		var tf storage.TemplateFormula
		row := &tailScanner{rows: rows, tail: []any{&tf.ExecutionOrder}}
		if err := scanFormula(row, &tf.Formula); err != nil {
			return nil, fmt.Errorf("scan formula: %w", err)
		}
		formulas = append(formulas, tf)
	}

	return formulas, rows.Err()
}

func (s *Storage) templateBom(ctx context.Context, t *storage.Template) error {
	err := s.db.QueryRowContext(ctx, `SELECT id, include_waste, include_setup, round_quantities, quantity_precision
		FROM bom_templates WHERE template_id = ?`, t.ID).Scan(
		&t.Bom.ID, &t.Bom.IncludeWaste, &t.Bom.IncludeSetup, &t.Bom.RoundQuantities, &t.Bom.QuantityPrecision,
	)
	if errors.Is(err, sql.ErrNoRows) {
		t.Bom.Items = []storage.BomTemplateItem{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("query bom: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, r.code, r.type, i.quantity_formula, i.quantity_unit, i.include_condition, i.group_name,
			i.sort_order, i.is_optional
		FROM bom_template_items i
		JOIN resources r ON r.id = i.resource_id
		WHERE i.bom_template_id = ?
		ORDER BY i.sort_order, i.id`, t.Bom.ID)
	if err != nil {
		return fmt.Errorf("query bom items: %w", err)
	}
	defer rows.Close()

	t.Bom.Items = []storage.BomTemplateItem{}
	for rows.Next() {
		var it storage.BomTemplateItem
		err := rows.Scan(&it.ID, &it.ResourceCode, &it.ResourceType, &it.QuantityFormula, &it.QuantityUnit,
			&it.IncludeCondition, &it.GroupName, &it.SortOrder, &it.IsOptional)
		if err != nil {
			return fmt.Errorf("scan bom item: %w", err)
		}
		t.Bom.Items = append(t.Bom.Items, it)
	}

	return rows.Err()
}

// tailScanner appends join columns after the ones a row scanner consumes.
type tailScanner struct {
	rows *sql.Rows
	tail []any
}

func (t *tailScanner) Scan(dest ...any) error {
	return t.rows.Scan(append(dest, t.tail...)...)
}

// GetAllTemplates lists templates, optionally filtered by status.
func (s *Storage) GetAllTemplates(ctx context.Context, status storage.TemplateStatus) ([]storage.TemplateSummary, error) {
	const op = "storage.sqlstore.GetAllTemplates"

	query := `SELECT id, code, name, category, status, version, created_at FROM templates`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	templates := []storage.TemplateSummary{}
	for rows.Next() {
		var t storage.TemplateSummary
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Category, &t.Status, &t.Version, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		templates = append(templates, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", op, err)
	}

	return templates, nil
}

// UpdateTemplateStatus changes status and, when given, version. The rest of
// a template is immutable after creation.
func (s *Storage) UpdateTemplateStatus(ctx context.Context, code string, upd storage.TemplateStatusUpdate) error {
	const op = "storage.sqlstore.UpdateTemplateStatus"

	var (
		res sql.Result
		err error
	)
	if upd.Version != nil {
		res, err = s.db.ExecContext(ctx, `UPDATE templates SET status = ?, version = ? WHERE code = ?`, upd.Status, *upd.Version, code)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE templates SET status = ? WHERE code = ?`, upd.Status, code)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		// MySQL reports 0 when the values did not change
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM templates WHERE code = ?`, code).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s: template code='%s': %w", op, code, storage.ErrNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}
