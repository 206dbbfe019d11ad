// Package bom expands a template's resource rules into concrete quantities.
package bom

import (
	"errors"
	"fmt"
	"sort"

	"estimator/internal/formula"
	"estimator/internal/storage"
)

var ErrNegativeQuantity = errors.New("negative quantity")

const (
	WarnUnresolvedResource   = "UnresolvedResource"
	WarnRequiredItemExcluded = "RequiredItemExcluded"
)

// ItemError attaches the originating BOM item to an evaluation failure.
type ItemError struct {
	ItemID       int64
	ResourceCode string
	Err          error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("bom item %d (%s): %v", e.ItemID, e.ResourceCode, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

type Warning struct {
	Kind         string `json:"kind"`
	ItemID       int64  `json:"item_id"`
	ResourceCode string `json:"resource_code"`
	Message      string `json:"message"`
}

// Line is one materialized resource consumption, traceable to its item.
type Line struct {
	ItemID       int64                `json:"item_id"`
	ResourceCode string               `json:"resource_code"`
	Name         string               `json:"name"`
	Type         storage.ResourceType `json:"type"`
	RawQuantity  float64              `json:"raw_quantity"`
	Quantity     float64              `json:"quantity"`
	Unit         string               `json:"unit"`
	UnitCost     float64              `json:"unit_cost"`
	Group        string               `json:"group"`
	SortOrder    int                  `json:"sort_order"`
	Optional     bool                 `json:"optional"`
	// Source is the identifier the quantity was read from when a companion
	// value replaced the authored formula.
	Source string `json:"source,omitempty"`
}

type Result struct {
	Lines    []Line    `json:"lines"`
	Warnings []Warning `json:"warnings"`
}

// Materialize evaluates every item of the BOM against env. Resources are keyed
// by code and type. Unknown or inactive resources produce a warning and no
// line; evaluator failures abort with an *ItemError.
func Materialize(b storage.BomTemplate, env formula.Env, resources map[storage.ResourceKey]storage.Resource) (*Result, error) {
	items := make([]storage.BomTemplateItem, len(b.Items))
	copy(items, b.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })

	res := &Result{Lines: make([]Line, 0, len(items))}

	for _, item := range items {
		itemErr := func(err error) error {
			return &ItemError{ItemID: item.ID, ResourceCode: item.ResourceCode, Err: err}
		}

		if item.IncludeCondition != "" {
			guard, err := formula.Compile(item.IncludeCondition)
			if err != nil {
				return nil, itemErr(err)
			}
			ok, err := guard.EvalBool(env)
			if err != nil {
				return nil, itemErr(err)
			}
			if !ok {
				if !item.IsOptional {
					res.Warnings = append(res.Warnings, Warning{
						Kind:         WarnRequiredItemExcluded,
						ItemID:       item.ID,
						ResourceCode: item.ResourceCode,
						Message:      fmt.Sprintf("include condition %q is false", item.IncludeCondition),
					})
				}
				continue
			}
		}

		resource, ok := resources[storage.ResourceKey{Code: item.ResourceCode, Type: item.ResourceType}]
		if !ok || !resource.IsActive {
			res.Warnings = append(res.Warnings, Warning{
				Kind:         WarnUnresolvedResource,
				ItemID:       item.ID,
				ResourceCode: item.ResourceCode,
				Message:      fmt.Sprintf("%s resource %q not found", item.ResourceType, item.ResourceCode),
			})
			continue
		}

		raw, source, err := quantity(b, item, env)
		if err != nil {
			return nil, itemErr(err)
		}
		if raw < 0 {
			return nil, itemErr(fmt.Errorf("%w: %v", ErrNegativeQuantity, raw))
		}

		qty := raw
		if b.RoundQuantities {
			qty, err = formula.Round(raw, storage.RoundCeil, b.QuantityPrecision)
			if err != nil {
				return nil, itemErr(err)
			}
		}

		unit := item.QuantityUnit
		if unit == "" {
			unit = resource.BaseUnit
		}

		res.Lines = append(res.Lines, Line{
			ItemID:       item.ID,
			ResourceCode: resource.Code,
			Name:         resource.Name,
			Type:         resource.Type,
			RawQuantity:  raw,
			Quantity:     qty,
			Unit:         unit,
			UnitCost:     resource.UnitCost,
			Group:        item.GroupName,
			SortOrder:    item.SortOrder,
			Optional:     item.IsOptional,
			Source:       source,
		})
	}

	return res, nil
}

// quantity evaluates the item's formula. When the formula is a bare
// identifier the BOM flags may swap in its companions: <ident>_with_waste
// replaces the value and <ident>_setup is added to it.
func quantity(b storage.BomTemplate, item storage.BomTemplateItem, env formula.Env) (float64, string, error) {
	expr, err := formula.Compile(item.QuantityFormula)
	if err != nil {
		return 0, "", err
	}

	q, err := expr.EvalNumber(env)
	if err != nil {
		return 0, "", err
	}

	name, bare := expr.Ident()
	if !bare {
		return q, "", nil
	}

	source := ""
	if b.IncludeWaste {
		if v, ok := env[name+"_with_waste"]; ok && !v.IsText {
			q = v.Num
			source = name + "_with_waste"
		}
	}
	if b.IncludeSetup {
		if v, ok := env[name+"_setup"]; ok && !v.IsText {
			q += v.Num
			if source == "" {
				source = name
			}
			source += "+" + name + "_setup"
		}
	}

	return q, source, nil
}
