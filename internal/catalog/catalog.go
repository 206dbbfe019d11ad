// Package catalog defines and validates the typed inputs of product templates.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"estimator/internal/storage"
)

type ParameterUpserter interface {
	UpsertParameter(ctx context.Context, p storage.Parameter) (storage.Parameter, error)
}

// Define checks a parameter definition and upserts it by code. It returns
// the stored definition, which wins over p when the code already exists.
// Re-defining a code with the same type is idempotent.
func Define(ctx context.Context, store ParameterUpserter, p storage.Parameter) (storage.Parameter, error) {
	const op = "catalog.Define"

	if err := CheckDefinition(p); err != nil {
		return storage.Parameter{}, err
	}

	saved, err := store.UpsertParameter(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrCodeConflict) {
			return storage.Parameter{}, fmt.Errorf("%s: %q: %w", op, p.Code, ErrDuplicateCodeConflict)
		}
		return storage.Parameter{}, fmt.Errorf("%s: %w", op, err)
	}

	return saved, nil
}

// CheckDefinition validates the definition itself: type, bounds, options,
// pattern and that the default value passes the parameter's own validation.
func CheckDefinition(p storage.Parameter) error {
	if p.Code == "" {
		return &DefinitionError{Code: p.Code, Reason: "code is empty"}
	}
	if !p.Type.Valid() {
		return &DefinitionError{Code: p.Code, Reason: fmt.Sprintf("unknown type %q", p.Type)}
	}

	switch p.Type {
	case storage.ParamNumber:
		if p.MinValue != nil && p.MaxValue != nil && *p.MinValue > *p.MaxValue {
			return &DefinitionError{Code: p.Code, Reason: "min_value is greater than max_value"}
		}
	case storage.ParamSelect:
		if len(p.SelectOptions) == 0 {
			return &DefinitionError{Code: p.Code, Reason: "select parameter has no options"}
		}
		seen := make(map[string]bool, len(p.SelectOptions))
		for _, o := range p.SelectOptions {
			if seen[o] {
				return &DefinitionError{Code: p.Code, Reason: fmt.Sprintf("duplicate option %q", o)}
			}
			seen[o] = true
		}
	case storage.ParamText:
		if p.Validation != nil && p.Validation.Pattern != "" {
			if _, err := regexp.Compile(p.Validation.Pattern); err != nil {
				return &DefinitionError{Code: p.Code, Reason: fmt.Sprintf("invalid pattern: %v", err)}
			}
		}
	}

	if !p.DefaultValue.IsZero() {
		if _, err := Validate(p, p.DefaultValue.Interface()); err != nil {
			return &DefinitionError{Code: p.Code, Reason: fmt.Sprintf("default value: %v", err)}
		}
	}

	return nil
}

// Compatible reports whether b may be stored under a's code.
func Compatible(a, b storage.Parameter) bool {
	return a.Code == b.Code && a.Type == b.Type
}
