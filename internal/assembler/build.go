package assembler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"estimator/internal/catalog"
	"estimator/internal/formula"
	"estimator/internal/storage"
)

const dimensionsGroup = "Dimensions"

func bound(v float64) *float64 { return &v }

// baseline parameters every template gets unless a block already defines them
func baselineParameters() []storage.Parameter {
	return []storage.Parameter{
		{Code: "length", Name: "Length", Type: storage.ParamNumber, Unit: "mm", MinValue: bound(1), MaxValue: bound(100000), DefaultValue: storage.NumberValue(1000), IsRequired: true},
		{Code: "width", Name: "Width", Type: storage.ParamNumber, Unit: "mm", MinValue: bound(1), MaxValue: bound(100000), DefaultValue: storage.NumberValue(1000), IsRequired: true},
		{Code: "height", Name: "Height", Type: storage.ParamNumber, Unit: "mm", MinValue: bound(0), MaxValue: bound(100000), DefaultValue: storage.NumberValue(0)},
		{Code: "quantity", Name: "Quantity", Type: storage.ParamNumber, Unit: "pcs", MinValue: bound(1), MaxValue: bound(1000000), DefaultValue: storage.NumberValue(1), IsRequired: true},
	}
}

func implicitFormulas() []storage.Formula {
	return []storage.Formula{
		{Code: "area", Name: "Area", Expression: "length*width/1e6", InputParameters: []string{"length", "width"}, OutputUnit: "m2", RoundingMethod: storage.RoundNone, IsActive: true},
		{Code: "volume", Name: "Volume", Expression: "length*width*height/1e9", InputParameters: []string{"length", "width", "height"}, OutputUnit: "m3", RoundingMethod: storage.RoundNone, IsActive: true},
	}
}

// sanitize turns a resource code into an identifier the formula language accepts.
func sanitize(code string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(code)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	s := strings.TrimRight(b.String(), "_")
	if s == "" || unicode.IsDigit(rune(s[0])) {
		s = "r_" + s
	}
	return s
}

// draft is the template before catalog IDs are known.
type draft struct {
	template storage.Template
	rules    []resolvedRule
}

type resolvedRule struct {
	ResourceRule
	Type storage.ResourceType
}

// build assembles the template in memory. It validates blocks, adds baseline
// parameters and formulas, generates per-rule formulas and BOM items, and
// checks the formula graph. Nothing is persisted.
func build(req Request) (*draft, Validation, error) {
	var v Validation
	fail := func(err error) (*draft, Validation, error) {
		v.Errors = append(v.Errors, err.Error())
		return nil, v, err
	}

	if strings.TrimSpace(req.Name) == "" {
		return fail(fmt.Errorf("%w: name is required", ErrInvalidMetadata))
	}
	if req.QuantityPrecision < 0 || req.QuantityPrecision > 12 {
		return fail(fmt.Errorf("%w: quantity_precision must be within 0..12", ErrInvalidMetadata))
	}

	var (
		hasResources, hasOptions bool
		blocks                   []Block
		seenRefs                 = map[string]bool{}
	)
	for i, b := range req.Blocks {
		switch b.Type {
		case BlockOptions:
			hasOptions = true
		case BlockMaterials, BlockWorkTypes:
			hasResources = true
		case BlockFormulas:
		default:
			return fail(fmt.Errorf("%w: block %d has unknown type %q", ErrInvalidBlock, i, b.Type))
		}
		if b.Ref != "" {
			if seenRefs[b.Ref] {
				v.Warnings = append(v.Warnings, fmt.Sprintf("block %q is referenced more than once; later copies are ignored", b.Ref))
				continue
			}
			seenRefs[b.Ref] = true
		}
		blocks = append(blocks, b)
	}

	if !hasResources {
		return fail(ErrMissingResourceBlock)
	}
	if !hasOptions {
		v.Warnings = append(v.Warnings, "no OPTIONS block: the template only has baseline parameters")
	}

	d := &draft{template: storage.Template{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Status:        storage.StatusDraft,
		Version:       1,
		BasePrice:     req.BasePrice,
		MarginPercent: req.MarginPercent,
		Currency:      req.Currency,
		Bom: storage.BomTemplate{
			RoundQuantities:   req.RoundQuantities,
			QuantityPrecision: req.QuantityPrecision,
		},
	}}

	// parameters
	params := map[string]storage.Parameter{}
	addParam := func(p storage.Parameter, group string) error {
		if prev, ok := params[p.Code]; ok {
			if !catalog.Compatible(prev, p) {
				return fmt.Errorf("%w: parameter %q is both %s and %s", ErrDuplicateCodeConflict, p.Code, prev.Type, p.Type)
			}
			v.Warnings = append(v.Warnings, fmt.Sprintf("parameter %q is defined more than once; the first definition is used", p.Code))
			return nil
		}
		if err := catalog.CheckDefinition(p); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
		}
		params[p.Code] = p
		d.template.Parameters = append(d.template.Parameters, storage.TemplateParameter{
			Parameter: p,
			GroupName: group,
			SortOrder: len(d.template.Parameters) + 1,
		})
		return nil
	}

	for _, b := range blocks {
		if b.Type != BlockOptions {
			continue
		}
		for _, p := range b.Options {
			if err := addParam(p, b.Name); err != nil {
				return fail(err)
			}
		}
	}
	for _, p := range baselineParameters() {
		if _, covered := params[p.Code]; covered {
			continue
		}
		if err := addParam(p, dimensionsGroup); err != nil {
			return fail(err)
		}
	}

	// formulas
	formulas := map[string]storage.Formula{}
	addFormula := func(f storage.Formula) error {
		if _, clash := params[f.Code]; clash {
			return fmt.Errorf("%w: formula %q has the code of a parameter", ErrDuplicateCodeConflict, f.Code)
		}
		if f.RoundingMethod == "" {
			f.RoundingMethod = storage.RoundNone
		}
		if prev, ok := formulas[f.Code]; ok {
			if strings.TrimSpace(prev.Expression) != strings.TrimSpace(f.Expression) || prev.Conditions != f.Conditions ||
				prev.RoundingMethod != f.RoundingMethod || prev.Precision != f.Precision {
				return fmt.Errorf("%w: formula %q is defined twice with different expressions", ErrDuplicateCodeConflict, f.Code)
			}
			v.Warnings = append(v.Warnings, fmt.Sprintf("formula %q is defined more than once", f.Code))
			return nil
		}
		if len(f.InputParameters) == 0 {
			inputs, err := formula.InferInputs(f.Expression, f.Conditions)
			if err != nil {
				return fmt.Errorf("formula %q: %w", f.Code, err)
			}
			f.InputParameters = inputs
		}
		formulas[f.Code] = f
		d.template.Formulas = append(d.template.Formulas, storage.TemplateFormula{
			Formula:        f,
			ExecutionOrder: (len(d.template.Formulas) + 1) * 10,
		})
		return nil
	}

	for _, f := range implicitFormulas() {
		if err := addFormula(f); err != nil {
			return fail(err)
		}
	}
	for _, b := range blocks {
		if b.Type != BlockFormulas {
			continue
		}
		for _, f := range b.Formulas {
			if strings.TrimSpace(f.Code) == "" {
				return fail(fmt.Errorf("%w: formula in block %q has no code", ErrInvalidBlock, b.Name))
			}
			if err := addFormula(f); err != nil {
				return fail(err)
			}
		}
	}

	// resource rules
	usedBases := map[string]int{}
	for _, b := range blocks {
		typ := storage.ResourceMaterial
		switch b.Type {
		case BlockMaterials:
		case BlockWorkTypes:
			typ = storage.ResourceLabor
		default:
			continue
		}

		for _, r := range b.Rules {
			if strings.TrimSpace(r.ResourceCode) == "" || strings.TrimSpace(r.Quantity) == "" {
				return fail(fmt.Errorf("%w: rule in block %q needs resource_code and quantity", ErrInvalidBlock, b.Name))
			}
			if r.WastePercent < 0 {
				return fail(fmt.Errorf("%w: rule %q has a negative waste_percent", ErrInvalidBlock, r.ResourceCode))
			}

			base := r.FormulaCode
			if base == "" {
				base = sanitize(r.ResourceCode)
			}
			if n := usedBases[base]; n > 0 {
				usedBases[base] = n + 1
				base = base + "_" + strconv.Itoa(n+1)
			} else {
				usedBases[base] = 1
			}

			rounding := r.RoundingMethod
			if rounding == "" {
				rounding = storage.RoundCeil
			}

			qtyCode := base + "_quantity"
			err := addFormula(storage.Formula{
				Code:           qtyCode,
				Name:           r.ResourceCode + " quantity",
				Expression:     r.Quantity,
				OutputUnit:     r.Unit,
				RoundingMethod: rounding,
				Precision:      r.Precision,
				Conditions:     r.Condition,
				IsActive:       true,
			})
			if err != nil {
				return fail(err)
			}

			if r.WastePercent > 0 {
				d.template.Bom.IncludeWaste = true
				err := addFormula(storage.Formula{
					Code:           qtyCode + "_with_waste",
					Name:           r.ResourceCode + " quantity with waste",
					Expression:     fmt.Sprintf("%s * (1 + %s / 100)", qtyCode, strconv.FormatFloat(r.WastePercent, 'f', -1, 64)),
					OutputUnit:     r.Unit,
					RoundingMethod: rounding,
					Precision:      r.Precision,
					Conditions:     r.Condition,
					IsActive:       true,
				})
				if err != nil {
					return fail(err)
				}
			}

			if strings.TrimSpace(r.Setup) != "" {
				d.template.Bom.IncludeSetup = true
				err := addFormula(storage.Formula{
					Code:           qtyCode + "_setup",
					Name:           r.ResourceCode + " setup",
					Expression:     r.Setup,
					OutputUnit:     r.Unit,
					RoundingMethod: storage.RoundNone,
					Conditions:     r.Condition,
					IsActive:       true,
				})
				if err != nil {
					return fail(err)
				}
			}

			d.template.Bom.Items = append(d.template.Bom.Items, storage.BomTemplateItem{
				ResourceCode:     r.ResourceCode,
				ResourceType:     typ,
				QuantityFormula:  qtyCode,
				QuantityUnit:     r.Unit,
				IncludeCondition: r.Condition,
				GroupName:        b.Name,
				SortOrder:        len(d.template.Bom.Items) + 1,
				IsOptional:       r.Optional,
			})
			d.rules = append(d.rules, resolvedRule{ResourceRule: r, Type: typ})
		}
	}

	paramCodes := make([]string, 0, len(params))
	for _, tp := range d.template.Parameters {
		paramCodes = append(paramCodes, tp.Parameter.Code)
	}
	if err := formula.CheckGraph(d.template.Formulas, paramCodes); err != nil {
		return fail(err)
	}
	unknowns, err := formula.GuardedUnknowns(d.template.Formulas, paramCodes)
	if err != nil {
		return fail(err)
	}
	for _, tf := range d.template.Formulas {
		if refs := unknowns[tf.Formula.Code]; len(refs) > 0 {
			v.Warnings = append(v.Warnings, fmt.Sprintf("formula %q reads undefined %s and fails if its condition holds",
				tf.Formula.Code, strings.Join(refs, ", ")))
		}
	}
	if err := checkBomExpressions(d.template.Bom.Items, paramCodes, formulas); err != nil {
		return fail(err)
	}

	return d, v, nil
}

// checkBomExpressions makes sure include conditions only read known codes.
func checkBomExpressions(items []storage.BomTemplateItem, params []string, formulas map[string]storage.Formula) error {
	known := make(map[string]bool, len(params)+len(formulas))
	for _, p := range params {
		known[p] = true
	}
	for code := range formulas {
		known[code] = true
	}

	for _, it := range items {
		if it.IncludeCondition == "" {
			continue
		}
		refs, err := formula.InferInputs(it.IncludeCondition, "")
		if err != nil {
			return fmt.Errorf("condition of %q: %w", it.ResourceCode, err)
		}
		for _, ref := range refs {
			if !known[ref] {
				return fmt.Errorf("condition of %q: %w", it.ResourceCode,
					&formula.Error{Kind: formula.ErrUndefinedReference, Pos: -1, Msg: fmt.Sprintf("%q is neither a parameter nor a formula", ref)})
			}
		}
	}
	return nil
}

func preview(t *storage.Template) Preview {
	return Preview{
		EstimatedParameters: len(t.Parameters),
		EstimatedFormulas:   len(t.Formulas),
		EstimatedBomItems:   len(t.Bom.Items),
	}
}

// IsDefinitionError reports whether err rejects the template definition
// itself, as opposed to a storage failure.
func IsDefinitionError(err error) bool {
	var fe *formula.Error
	var de *catalog.DefinitionError
	return errors.Is(err, ErrMissingResourceBlock) ||
		errors.Is(err, ErrDuplicateCodeConflict) ||
		errors.Is(err, ErrUnknownResource) ||
		errors.Is(err, ErrInvalidBlock) ||
		errors.Is(err, ErrInvalidMetadata) ||
		errors.As(err, &fe) ||
		errors.As(err, &de)
}
