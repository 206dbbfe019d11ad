package assembler

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estimator/internal/formula"
	"estimator/internal/storage"
	"estimator/internal/storage/sqlstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *sqlstore.Storage {
	t.Helper()

	db, err := sql.Open(sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := sqlstore.Open(db, sqlstore.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	return s
}

func lightBox() Request {
	return Request{
		Metadata: Metadata{Name: "Light box", Category: "signage", Currency: "RUB", MarginPercent: bound(30), RoundQuantities: true},
		Blocks: []Block{
			{
				Ref:  "opts/lightbox",
				Type: BlockOptions,
				Name: "Light box options",
				Options: []storage.Parameter{
					{Code: "painted", Name: "Painted", Type: storage.ParamBoolean, DefaultValue: storage.BoolValue(false)},
				},
			},
			{
				Ref:  "mat/acrylic",
				Type: BlockMaterials,
				Name: "Face",
				Rules: []ResourceRule{{
					ResourceCode: "ACR-3mm",
					Quantity:     "area * 2",
					Unit:         "m2",
					WastePercent: 10,
					Resource:     &ResourceDef{Name: "Acrylic 3mm", BaseUnit: "m2", UnitCost: 1500},
				}},
			},
			{
				Ref:  "work/paint",
				Type: BlockWorkTypes,
				Name: "Painting",
				Rules: []ResourceRule{{
					ResourceCode:   "painting",
					Quantity:       "area * 0.5",
					Unit:           "h",
					Condition:      "painted",
					Optional:       true,
					RoundingMethod: storage.RoundNone,
					Resource:       &ResourceDef{Name: "Painting", BaseUnit: "h", UnitCost: 800},
				}},
			},
		},
	}
}

func TestBuild_GeneratesFormulasAndBom(t *testing.T) {
	d, v, err := build(lightBox())
	require.NoError(t, err)
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.Warnings)

	var paramCodes []string
	for _, tp := range d.template.Parameters {
		paramCodes = append(paramCodes, tp.Parameter.Code)
	}
	assert.Equal(t, []string{"painted", "length", "width", "height", "quantity"}, paramCodes)

	var formulaCodes []string
	for _, tf := range d.template.Formulas {
		formulaCodes = append(formulaCodes, tf.Formula.Code)
	}
	assert.Equal(t, []string{"area", "volume", "acr_3mm_quantity", "acr_3mm_quantity_with_waste", "painting_quantity"}, formulaCodes)

	waste := d.template.Formulas[3].Formula
	assert.Equal(t, "acr_3mm_quantity * (1 + 10 / 100)", waste.Expression)
	assert.Equal(t, storage.RoundCeil, waste.RoundingMethod)
	assert.Equal(t, []string{"acr_3mm_quantity"}, waste.InputParameters)

	assert.True(t, d.template.Bom.IncludeWaste)
	assert.False(t, d.template.Bom.IncludeSetup)
	require.Len(t, d.template.Bom.Items, 2)
	assert.Equal(t, "acr_3mm_quantity", d.template.Bom.Items[0].QuantityFormula)
	assert.Equal(t, storage.ResourceMaterial, d.template.Bom.Items[0].ResourceType)
	assert.Equal(t, storage.ResourceLabor, d.template.Bom.Items[1].ResourceType)
	assert.Equal(t, "painted", d.template.Bom.Items[1].IncludeCondition)
}

func TestBuild_ImplicitFormulasEvaluate(t *testing.T) {
	d, _, err := build(lightBox())
	require.NoError(t, err)

	env := formula.Env{
		"length": formula.Number(2000), "width": formula.Number(1000), "height": formula.Number(500),
		"quantity": formula.Number(1), "painted": formula.Bool(false),
	}
	res, err := formula.Run(d.template.Formulas, env)
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.Env["area"].Num)
	assert.Equal(t, 1.0, res.Env["volume"].Num)
	assert.Equal(t, 4.0, res.Env["acr_3mm_quantity"].Num)
	assert.Equal(t, 5.0, res.Env["acr_3mm_quantity_with_waste"].Num)
	assert.Equal(t, 0.0, res.Env["painting_quantity"].Num)
}

func TestBuild_MissingResourceBlock(t *testing.T) {
	req := Request{
		Metadata: Metadata{Name: "Options only"},
		Blocks:   []Block{{Type: BlockOptions, Name: "x"}},
	}

	_, v, err := build(req)
	assert.ErrorIs(t, err, ErrMissingResourceBlock)
	assert.NotEmpty(t, v.Errors)
	assert.True(t, IsDefinitionError(err))
}

func TestBuild_GuardedFormulaWithUnknownInput(t *testing.T) {
	req := lightBox()
	req.Blocks = append(req.Blocks, Block{
		Ref:  "calc/lamination",
		Type: BlockFormulas,
		Name: "Lamination",
		Formulas: []storage.Formula{
			{Code: "lamination_extra", Name: "Lamination extra", Expression: "missing_param * 2", Conditions: "false", IsActive: true},
		},
	})

	d, v, err := build(req)
	require.NoError(t, err)
	assert.Empty(t, v.Errors)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], "lamination_extra")
	assert.Contains(t, v.Warnings[0], "missing_param")

	env := formula.Env{
		"length": formula.Number(2000), "width": formula.Number(1000), "height": formula.Number(500),
		"quantity": formula.Number(1), "painted": formula.Bool(false),
	}
	res, err := formula.Run(d.template.Formulas, env)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Env["lamination_extra"].Num)
}

func TestBuild_UnguardedFormulaWithUnknownInput(t *testing.T) {
	req := lightBox()
	req.Blocks = append(req.Blocks, Block{
		Type:     BlockFormulas,
		Name:     "Lamination",
		Formulas: []storage.Formula{{Code: "lamination_extra", Expression: "missing_param * 2", IsActive: true}},
	})

	_, _, err := build(req)
	assert.ErrorIs(t, err, formula.ErrUndefinedReference)
}

func TestBuild_Warnings(t *testing.T) {
	req := lightBox()
	req.Blocks = append(req.Blocks[1:], req.Blocks[1])

	_, v, err := build(req)
	require.NoError(t, err)
	require.Len(t, v.Warnings, 2)
	assert.Contains(t, v.Warnings[0], "mat/acrylic")
	assert.Contains(t, v.Warnings[1], "OPTIONS")
}

func TestBuild_BaselineParameterCoveredByBlock(t *testing.T) {
	req := lightBox()
	req.Blocks[0].Options = append(req.Blocks[0].Options, storage.Parameter{
		Code: "length", Name: "Length", Type: storage.ParamNumber, Unit: "mm", MaxValue: bound(3000), DefaultValue: storage.NumberValue(600),
	})

	d, _, err := build(req)
	require.NoError(t, err)

	count := 0
	for _, tp := range d.template.Parameters {
		if tp.Parameter.Code == "length" {
			count++
			assert.Equal(t, 3000.0, *tp.Parameter.MaxValue)
			assert.Equal(t, "Light box options", tp.GroupName)
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuild_Conflicts(t *testing.T) {
	t.Run("parameter type", func(t *testing.T) {
		req := lightBox()
		req.Blocks[0].Options = append(req.Blocks[0].Options, storage.Parameter{Code: "painted", Type: storage.ParamText})
		_, _, err := build(req)
		assert.ErrorIs(t, err, ErrDuplicateCodeConflict)
	})

	t.Run("formula shadows parameter", func(t *testing.T) {
		req := lightBox()
		req.Blocks = append(req.Blocks, Block{Type: BlockFormulas, Name: "custom", Formulas: []storage.Formula{
			{Code: "painted", Expression: "1", IsActive: true},
		}})
		_, _, err := build(req)
		assert.ErrorIs(t, err, ErrDuplicateCodeConflict)
	})

	t.Run("formula redefined", func(t *testing.T) {
		req := lightBox()
		req.Blocks = append(req.Blocks, Block{Type: BlockFormulas, Name: "custom", Formulas: []storage.Formula{
			{Code: "area", Expression: "length*width", IsActive: true},
		}})
		_, _, err := build(req)
		assert.ErrorIs(t, err, ErrDuplicateCodeConflict)
	})
}

func TestBuild_FormulaGraphChecked(t *testing.T) {
	req := lightBox()
	req.Blocks[1].Rules[0].Quantity = "perimeter * 2"

	_, _, err := build(req)
	assert.ErrorIs(t, err, formula.ErrUndefinedReference)

	req.Blocks = append(req.Blocks, Block{Type: BlockFormulas, Name: "custom", Formulas: []storage.Formula{
		{Code: "perimeter", Expression: "acr_3mm_quantity + 1", IsActive: true},
	}})
	_, _, err = build(req)
	assert.ErrorIs(t, err, formula.ErrCyclicFormulaDependency)
}

func TestBuild_SameResourceTwice(t *testing.T) {
	req := lightBox()
	req.Blocks[1].Rules = append(req.Blocks[1].Rules, ResourceRule{ResourceCode: "ACR-3mm", Quantity: "0.1", Unit: "m2"})

	d, _, err := build(req)
	require.NoError(t, err)
	require.Len(t, d.template.Bom.Items, 3)
	assert.Equal(t, "acr_3mm_2_quantity", d.template.Bom.Items[1].QuantityFormula)
	assert.Equal(t, "ACR-3mm", d.template.Bom.Items[1].ResourceCode)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "acr_3mm", sanitize("ACR-3mm"))
	assert.Equal(t, "r_3d_print", sanitize("3D print"))
	assert.Equal(t, "steel_sheet", sanitize("  steel__sheet!! "))
	assert.Equal(t, "r_", sanitize("---"))
}

func TestAssemble_PersistsTemplate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := New(discardLogger(), store)

	res, err := a.Assemble(ctx, lightBox())
	require.NoError(t, err)
	assert.NotEmpty(t, res.TemplateCode)
	assert.NotZero(t, res.TemplateID)
	assert.Equal(t, Preview{EstimatedParameters: 5, EstimatedFormulas: 5, EstimatedBomItems: 2}, res.Preview)

	got, err := store.GetTemplateByCode(ctx, res.TemplateCode)
	require.NoError(t, err)
	assert.Equal(t, "Light box", got.Name)
	assert.Equal(t, storage.StatusDraft, got.Status)
	assert.Len(t, got.Parameters, 5)
	assert.Len(t, got.Formulas, 5)
	assert.Len(t, got.Bom.Items, 2)
	assert.True(t, got.Bom.IncludeWaste)
}

func TestAssemble_IdempotentCatalog(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := New(discardLogger(), store)

	first, err := a.Assemble(ctx, lightBox())
	require.NoError(t, err)
	second, err := a.Assemble(ctx, lightBox())
	require.NoError(t, err)

	assert.NotEqual(t, first.TemplateCode, second.TemplateCode)

	t1, err := store.GetTemplateByCode(ctx, first.TemplateCode)
	require.NoError(t, err)
	t2, err := store.GetTemplateByCode(ctx, second.TemplateCode)
	require.NoError(t, err)

	require.Equal(t, len(t1.Parameters), len(t2.Parameters))
	for i := range t1.Parameters {
		assert.Equal(t, t1.Parameters[i].Parameter.ID, t2.Parameters[i].Parameter.ID)
	}
	require.Equal(t, len(t1.Formulas), len(t2.Formulas))
	for i := range t1.Formulas {
		assert.Equal(t, t1.Formulas[i].Formula.ID, t2.Formulas[i].Formula.ID)
	}

	resources, err := store.GetAllResources(ctx, "")
	require.NoError(t, err)
	assert.Len(t, resources, 2)

	list, err := store.GetAllTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAssemble_ReturnsStoredParameterDefinition(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := New(discardLogger(), store)

	withDepth := func(max float64) Request {
		req := lightBox()
		req.Blocks[0].Options = append(req.Blocks[0].Options, storage.Parameter{
			Code: "depth", Name: "Depth", Type: storage.ParamNumber, Unit: "mm",
			MinValue: bound(10), MaxValue: bound(max), DefaultValue: storage.NumberValue(100),
		})
		return req
	}

	first, err := a.Assemble(ctx, withDepth(500))
	require.NoError(t, err)
	second, err := a.Assemble(ctx, withDepth(900))
	require.NoError(t, err)

	depth := func(tpl *storage.Template) storage.Parameter {
		for _, tp := range tpl.Parameters {
			if tp.Parameter.Code == "depth" {
				return tp.Parameter
			}
		}
		t.Fatalf("depth missing from %q", tpl.Code)
		return storage.Parameter{}
	}

	returned := depth(second.Template)
	assert.Equal(t, depth(first.Template).ID, returned.ID)
	require.NotNil(t, returned.MaxValue)
	assert.Equal(t, 500.0, *returned.MaxValue)

	stored, err := store.GetTemplateByCode(ctx, second.TemplateCode)
	require.NoError(t, err)
	assert.Equal(t, *depth(stored).MaxValue, *returned.MaxValue)
}

func TestAssemble_CatalogConflictPersistsNothing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := New(discardLogger(), store)

	_, err := a.Assemble(ctx, lightBox())
	require.NoError(t, err)

	changed := lightBox()
	changed.Blocks[1].Rules[0].Quantity = "area * 3"

	res, err := a.Assemble(ctx, changed)
	assert.ErrorIs(t, err, ErrDuplicateCodeConflict)
	assert.NotEmpty(t, res.Validation.Errors)

	list, err := store.GetAllTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAssemble_UnknownResource(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := New(discardLogger(), store)

	req := lightBox()
	req.Blocks[1].Rules[0].Resource = nil

	_, err := a.Assemble(ctx, req)
	assert.ErrorIs(t, err, ErrUnknownResource)

	resources, err := store.GetAllResources(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestPreview_RollsBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a := New(discardLogger(), store)

	res, err := a.Preview(ctx, lightBox())
	require.NoError(t, err)
	assert.Empty(t, res.TemplateCode)
	assert.Zero(t, res.TemplateID)
	assert.Equal(t, 2, res.Preview.EstimatedBomItems)
	require.NotNil(t, res.Template)
	assert.Zero(t, res.Template.Parameters[0].Parameter.ID)

	list, err := store.GetAllTemplates(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
