package bom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estimator/internal/formula"
	"estimator/internal/storage"
)

func keyed(list ...storage.Resource) map[storage.ResourceKey]storage.Resource {
	m := make(map[storage.ResourceKey]storage.Resource, len(list))
	for _, r := range list {
		m[r.Key()] = r
	}
	return m
}

func resources() map[storage.ResourceKey]storage.Resource {
	return keyed(
		storage.Resource{Code: "acrylic", Name: "Acrylic sheet", Type: storage.ResourceMaterial, BaseUnit: "m2", UnitCost: 1200, IsActive: true},
		storage.Resource{Code: "cutting", Name: "Laser cutting", Type: storage.ResourceLabor, BaseUnit: "h", UnitCost: 900, IsActive: true},
		storage.Resource{Code: "old_ink", Name: "Ink", Type: storage.ResourceMaterial, BaseUnit: "l", UnitCost: 50, IsActive: false},
	)
}

func item(id int64, code string, typ storage.ResourceType, qty string) storage.BomTemplateItem {
	return storage.BomTemplateItem{ID: id, ResourceCode: code, ResourceType: typ, QuantityFormula: qty, SortOrder: int(id)}
}

func env() formula.Env {
	return formula.Env{
		"area":                        formula.Number(2),
		"painted":                     formula.Bool(false),
		"acrylic_quantity":            formula.Number(2.5),
		"acrylic_quantity_with_waste": formula.Number(2.75),
		"acrylic_quantity_setup":      formula.Number(0.25),
		"cutting_quantity":            formula.Number(1.2),
	}
}

func TestMaterialize_Basic(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{
		item(2, "cutting", storage.ResourceLabor, "area * 0.6"),
		item(1, "acrylic", storage.ResourceMaterial, "acrylic_quantity"),
	}}

	res, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, "acrylic", res.Lines[0].ResourceCode)
	assert.Equal(t, 2.5, res.Lines[0].Quantity)
	assert.Equal(t, "m2", res.Lines[0].Unit)
	assert.Equal(t, 1200.0, res.Lines[0].UnitCost)

	assert.Equal(t, "cutting", res.Lines[1].ResourceCode)
	assert.Equal(t, storage.ResourceLabor, res.Lines[1].Type)
	assert.InDelta(t, 1.2, res.Lines[1].Quantity, 1e-9)
}

func TestMaterialize_WasteAndSetupCompanions(t *testing.T) {
	b := storage.BomTemplate{
		IncludeWaste: true,
		Items:        []storage.BomTemplateItem{item(1, "acrylic", storage.ResourceMaterial, "acrylic_quantity")},
	}

	res, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Equal(t, 2.75, res.Lines[0].Quantity)
	assert.Equal(t, "acrylic_quantity_with_waste", res.Lines[0].Source)

	b.IncludeSetup = true
	res, err = Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Lines[0].Quantity)

	// companions are only looked up for bare identifiers
	b.Items[0].QuantityFormula = "acrylic_quantity * 1"
	res, err = Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Equal(t, 2.5, res.Lines[0].Quantity)
	assert.Empty(t, res.Lines[0].Source)
}

func TestMaterialize_RoundQuantities(t *testing.T) {
	b := storage.BomTemplate{
		RoundQuantities:   true,
		QuantityPrecision: 0,
		Items:             []storage.BomTemplateItem{item(1, "cutting", storage.ResourceLabor, "cutting_quantity")},
	}

	res, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Lines[0].Quantity)
	assert.Equal(t, 1.2, res.Lines[0].RawQuantity)

	b.QuantityPrecision = 1
	res, err = Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Equal(t, 1.2, res.Lines[0].Quantity)
}

func TestMaterialize_SameResourceNotMerged(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{
		item(1, "acrylic", storage.ResourceMaterial, "1"),
		item(2, "acrylic", storage.ResourceMaterial, "2"),
	}}

	res, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, int64(1), res.Lines[0].ItemID)
	assert.Equal(t, int64(2), res.Lines[1].ItemID)
}

func TestMaterialize_IncludeCondition(t *testing.T) {
	optional := item(1, "acrylic", storage.ResourceMaterial, "missing_ident")
	optional.IncludeCondition = "painted"
	optional.IsOptional = true

	required := item(2, "cutting", storage.ResourceLabor, "1")
	required.IncludeCondition = "area > 10"

	b := storage.BomTemplate{Items: []storage.BomTemplateItem{optional, required}}

	res, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnRequiredItemExcluded, res.Warnings[0].Kind)
	assert.Equal(t, "cutting", res.Warnings[0].ResourceCode)
}

func TestMaterialize_UnresolvedResourceIsPartial(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{
		item(1, "steel", storage.ResourceMaterial, "1"),
		item(2, "old_ink", storage.ResourceMaterial, "1"),
		item(3, "acrylic", storage.ResourceLabor, "1"),
		item(4, "acrylic", storage.ResourceMaterial, "1"),
	}}

	res, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, int64(4), res.Lines[0].ItemID)

	require.Len(t, res.Warnings, 3)
	for _, w := range res.Warnings {
		assert.Equal(t, WarnUnresolvedResource, w.Kind)
	}
}

func TestMaterialize_SameCodeBothTypes(t *testing.T) {
	res := keyed(
		storage.Resource{Code: "paint", Name: "Paint", Type: storage.ResourceMaterial, BaseUnit: "l", UnitCost: 100, IsActive: true},
		storage.Resource{Code: "paint", Name: "Painting", Type: storage.ResourceLabor, BaseUnit: "h", UnitCost: 1000, IsActive: true},
	)
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{
		item(1, "paint", storage.ResourceMaterial, "1"),
		item(2, "paint", storage.ResourceLabor, "1"),
	}}

	out, err := Materialize(b, env(), res)
	require.NoError(t, err)
	assert.Empty(t, out.Warnings)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, storage.ResourceMaterial, out.Lines[0].Type)
	assert.Equal(t, 100.0, out.Lines[0].UnitCost)
	assert.Equal(t, storage.ResourceLabor, out.Lines[1].Type)
	assert.Equal(t, 1000.0, out.Lines[1].UnitCost)
}

func TestMaterialize_EvaluatorErrorCarriesItem(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{
		item(1, "acrylic", storage.ResourceMaterial, "1"),
		item(7, "cutting", storage.ResourceLabor, "area / (area - 2)"),
	}}

	_, err := Materialize(b, env(), resources())

	var ie *ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(7), ie.ItemID)
	assert.Equal(t, "cutting", ie.ResourceCode)
	assert.ErrorIs(t, err, formula.ErrDivisionByZero)
}

func TestMaterialize_UndefinedReference(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{item(3, "acrylic", storage.ResourceMaterial, "nope * 2")}}

	_, err := Materialize(b, env(), resources())
	assert.ErrorIs(t, err, formula.ErrUndefinedReference)
}

func TestMaterialize_NegativeQuantity(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{item(1, "acrylic", storage.ResourceMaterial, "1 - area")}}

	_, err := Materialize(b, env(), resources())
	assert.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestMaterialize_DoesNotReorderInput(t *testing.T) {
	b := storage.BomTemplate{Items: []storage.BomTemplateItem{
		item(2, "cutting", storage.ResourceLabor, "1"),
		item(1, "acrylic", storage.ResourceMaterial, "1"),
	}}

	_, err := Materialize(b, env(), resources())
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Items[0].ID)
}
