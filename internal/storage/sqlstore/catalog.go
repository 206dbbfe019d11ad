package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"estimator/internal/storage"
)

const parameterColumns = `id, code, name, type, unit, min_value, max_value, select_options, default_value,
	is_required, validation_pattern, validation_message, description`

type scanner interface {
	Scan(dest ...any) error
}

func scanParameter(row scanner, p *storage.Parameter) error {
	var (
		minValue, maxValue   sql.NullFloat64
		optionsJSON, defJSON string
		pattern, patternMsg  string
	)

	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Unit, &minValue, &maxValue, &optionsJSON, &defJSON,
		&p.IsRequired, &pattern, &patternMsg, &p.Description)
	if err != nil {
		return err
	}

	if minValue.Valid {
		p.MinValue = &minValue.Float64
	}
	if maxValue.Valid {
		p.MaxValue = &maxValue.Float64
	}
	if err := json.Unmarshal([]byte(optionsJSON), &p.SelectOptions); err != nil {
		return fmt.Errorf("select_options: %w", err)
	}
	if err := json.Unmarshal([]byte(defJSON), &p.DefaultValue); err != nil {
		return fmt.Errorf("default_value: %w", err)
	}
	if pattern != "" {
		p.Validation = &storage.ValidationRule{Pattern: pattern, Message: patternMsg}
	}

	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func findParameterByCode(ctx context.Context, q querier, code string) (*storage.Parameter, error) {
	const op = "storage.sqlstore.FindParameterByCode"

	p := &storage.Parameter{}
	err := scanParameter(q.QueryRowContext(ctx, `SELECT `+parameterColumns+` FROM parameters WHERE code = ?`, code), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: parameter %q: %w", op, code, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// upsertParameter is find-or-create by code. An existing row of another type
// is a conflict; a compatible row is returned as stored.
func upsertParameter(ctx context.Context, q querier, p storage.Parameter) (storage.Parameter, error) {
	const op = "storage.sqlstore.UpsertParameter"

	existing, err := findParameterByCode(ctx, q, p.Code)
	switch {
	case err == nil:
		if existing.Type != p.Type {
			return storage.Parameter{}, fmt.Errorf("%s: %q is %s, not %s: %w", op, p.Code, existing.Type, p.Type, storage.ErrCodeConflict)
		}
		return *existing, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Parameter{}, err
	}

	options := p.SelectOptions
	if options == nil {
		options = []string{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return storage.Parameter{}, fmt.Errorf("%s: %w", op, err)
	}
	defJSON, err := json.Marshal(p.DefaultValue)
	if err != nil {
		return storage.Parameter{}, fmt.Errorf("%s: %w", op, err)
	}

	var pattern, patternMsg string
	if p.Validation != nil {
		pattern, patternMsg = p.Validation.Pattern, p.Validation.Message
	}

	res, err := q.ExecContext(ctx, `INSERT INTO parameters (code, name, type, unit, min_value, max_value, select_options,
		default_value, is_required, validation_pattern, validation_message, description) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Code, p.Name, p.Type, p.Unit, nullFloat(p.MinValue), nullFloat(p.MaxValue), string(optionsJSON),
		string(defJSON), p.IsRequired, pattern, patternMsg, p.Description)
	if err != nil {
		if isUniqueViolation(err) {
			// lost a race against a concurrent insert of the same code
			winner, ferr := findParameterByCode(ctx, q, p.Code)
			if ferr != nil {
				return storage.Parameter{}, fmt.Errorf("%s: %w", op, ferr)
			}
			if winner.Type != p.Type {
				return storage.Parameter{}, fmt.Errorf("%s: %q is %s, not %s: %w", op, p.Code, winner.Type, p.Type, storage.ErrCodeConflict)
			}
			return *winner, nil
		}
		return storage.Parameter{}, fmt.Errorf("%s: %w", op, err)
	}

	p.ID, err = res.LastInsertId()
	if err != nil {
		return storage.Parameter{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

const formulaColumns = `id, code, name, expression, input_parameters, output_unit, rounding_method,
	precision_places, priority, conditions, is_active`

func scanFormula(row scanner, f *storage.Formula) error {
	var inputsJSON string

	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.Expression, &inputsJSON, &f.OutputUnit, &f.RoundingMethod,
		&f.Precision, &f.Priority, &f.Conditions, &f.IsActive)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(inputsJSON), &f.InputParameters); err != nil {
		return fmt.Errorf("input_parameters: %w", err)
	}

	return nil
}

func findFormulaByCode(ctx context.Context, q querier, code string) (*storage.Formula, error) {
	const op = "storage.sqlstore.FindFormulaByCode"

	f := &storage.Formula{}
	err := scanFormula(q.QueryRowContext(ctx, `SELECT `+formulaColumns+` FROM formulas WHERE code = ?`, code), f)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: formula %q: %w", op, code, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return f, nil
}

// sameFormula compares what changes a formula's published value.
func sameFormula(a, b storage.Formula) bool {
	return strings.TrimSpace(a.Expression) == strings.TrimSpace(b.Expression) &&
		strings.TrimSpace(a.Conditions) == strings.TrimSpace(b.Conditions) &&
		a.RoundingMethod == b.RoundingMethod &&
		a.Precision == b.Precision
}

func upsertFormula(ctx context.Context, q querier, f storage.Formula) (storage.Formula, error) {
	const op = "storage.sqlstore.UpsertFormula"

	existing, err := findFormulaByCode(ctx, q, f.Code)
	switch {
	case err == nil:
		if !sameFormula(*existing, f) {
			return storage.Formula{}, fmt.Errorf("%s: %q already computes %q: %w", op, f.Code, existing.Expression, storage.ErrCodeConflict)
		}
		return *existing, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Formula{}, err
	}

	inputs := f.InputParameters
	if inputs == nil {
		inputs = []string{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return storage.Formula{}, fmt.Errorf("%s: %w", op, err)
	}

	rounding := f.RoundingMethod
	if rounding == "" {
		rounding = storage.RoundNone
	}

	res, err := q.ExecContext(ctx, `INSERT INTO formulas (code, name, expression, input_parameters, output_unit,
		rounding_method, precision_places, priority, conditions, is_active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Code, f.Name, f.Expression, string(inputsJSON), f.OutputUnit, rounding, f.Precision, f.Priority,
		f.Conditions, f.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			winner, ferr := findFormulaByCode(ctx, q, f.Code)
			if ferr != nil {
				return storage.Formula{}, fmt.Errorf("%s: %w", op, ferr)
			}
			if !sameFormula(*winner, f) {
				return storage.Formula{}, fmt.Errorf("%s: %q already computes %q: %w", op, f.Code, winner.Expression, storage.ErrCodeConflict)
			}
			return *winner, nil
		}
		return storage.Formula{}, fmt.Errorf("%s: %w", op, err)
	}

	f.ID, err = res.LastInsertId()
	if err != nil {
		return storage.Formula{}, fmt.Errorf("%s: %w", op, err)
	}
	f.RoundingMethod = rounding
	f.InputParameters = inputs

	return f, nil
}

const resourceColumns = `id, code, name, type, base_unit, unit_cost, is_active`

func scanResource(row scanner, r *storage.Resource) error {
	return row.Scan(&r.ID, &r.Code, &r.Name, &r.Type, &r.BaseUnit, &r.UnitCost, &r.IsActive)
}

func findResourceByCode(ctx context.Context, q querier, code string, typ storage.ResourceType) (*storage.Resource, error) {
	const op = "storage.sqlstore.FindResourceByCode"

	r := &storage.Resource{}
	err := scanResource(q.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE code = ? AND type = ?`, code, typ), r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %s %q: %w", op, typ, code, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

func upsertResource(ctx context.Context, q querier, r storage.Resource) (storage.Resource, error) {
	const op = "storage.sqlstore.UpsertResource"

	existing, err := findResourceByCode(ctx, q, r.Code, r.Type)
	switch {
	case err == nil:
		return *existing, nil
	case !errors.Is(err, storage.ErrNotFound):
		return storage.Resource{}, err
	}

	res, err := q.ExecContext(ctx, `INSERT INTO resources (code, type, name, base_unit, unit_cost, is_active) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Code, r.Type, r.Name, r.BaseUnit, r.UnitCost, r.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			winner, ferr := findResourceByCode(ctx, q, r.Code, r.Type)
			if ferr != nil {
				return storage.Resource{}, fmt.Errorf("%s: %w", op, ferr)
			}
			return *winner, nil
		}
		return storage.Resource{}, fmt.Errorf("%s: %w", op, err)
	}

	r.ID, err = res.LastInsertId()
	if err != nil {
		return storage.Resource{}, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

func (s *Storage) GetAllResources(ctx context.Context, typ storage.ResourceType) ([]storage.Resource, error) {
	const op = "storage.sqlstore.GetAllResources"

	query := `SELECT ` + resourceColumns + ` FROM resources`
	var args []any
	if typ != "" {
		query += ` WHERE type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY type, code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	resources := []storage.Resource{}
	for rows.Next() {
		var r storage.Resource
		if err := scanResource(rows, &r); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		resources = append(resources, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", op, err)
	}

	return resources, nil
}

// GetResources returns the resources with the given (code, type) keys.
// Keys without a row are absent from the map.
func (s *Storage) GetResources(ctx context.Context, keys []storage.ResourceKey) (map[storage.ResourceKey]storage.Resource, error) {
	const op = "storage.sqlstore.GetResources"

	out := make(map[storage.ResourceKey]storage.Resource, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	wanted := make(map[storage.ResourceKey]bool, len(keys))
	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		wanted[k] = true
		codes = append(codes, k.Code)
	}
	slices.Sort(codes)
	codes = slices.Compact(codes)

	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(codes)), ", ")

	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE code IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r storage.Resource
		if err := scanResource(rows, &r); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		if wanted[r.Key()] {
			out[r.Key()] = r
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", op, err)
	}

	return out, nil
}
