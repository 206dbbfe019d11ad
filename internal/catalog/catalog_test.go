package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"estimator/internal/storage"
)

func f64(v float64) *float64 { return &v }

func lengthParam() storage.Parameter {
	return storage.Parameter{
		Code:         "length",
		Name:         "Length",
		Type:         storage.ParamNumber,
		Unit:         "mm",
		MinValue:     f64(100),
		MaxValue:     f64(3000),
		DefaultValue: storage.NumberValue(1000),
		IsRequired:   true,
	}
}

func tp(p storage.Parameter) storage.TemplateParameter {
	return storage.TemplateParameter{Parameter: p}
}

type MockUpserter struct {
	mock.Mock
}

func (m *MockUpserter) UpsertParameter(ctx context.Context, p storage.Parameter) (storage.Parameter, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(storage.Parameter), args.Error(1)
}

func TestValidate_Number(t *testing.T) {
	p := lengthParam()

	tests := []struct {
		name string
		raw  any
		want float64
		kind ErrorKind
	}{
		{"float", 2000.0, 2000, ""},
		{"json number", json.Number("150"), 150, ""},
		{"numeric string", " 250.5 ", 250.5, ""},
		{"lower bound", 100.0, 100, ""},
		{"upper bound", 3000.0, 3000, ""},
		{"below min", 99.0, 0, KindOutOfRange},
		{"above max", 3001.0, 0, KindOutOfRange},
		{"word", "abc", 0, KindNotANumber},
		{"bool", true, 0, KindNotANumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Validate(p, tt.raw)
			if tt.kind != "" {
				var fe *FieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.kind, fe.Kind)
				assert.Equal(t, "length", fe.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, storage.NumberValue(tt.want), v)
		})
	}
}

func TestValidate_Select(t *testing.T) {
	p := storage.Parameter{Code: "finish", Type: storage.ParamSelect, SelectOptions: []string{"matte", "gloss"}}

	v, err := Validate(p, "gloss")
	require.NoError(t, err)
	assert.Equal(t, storage.TextValue("gloss"), v)

	_, err = Validate(p, "satin")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindInvalidOption, fe.Kind)

	sizes := storage.Parameter{Code: "size", Type: storage.ParamSelect, SelectOptions: []string{"2", "3"}}
	v, err = Validate(sizes, 3.0)
	require.NoError(t, err)
	assert.Equal(t, storage.NumberValue(3), v)
}

func TestValidate_TextPattern(t *testing.T) {
	p := storage.Parameter{
		Code:       "article",
		Type:       storage.ParamText,
		Validation: &storage.ValidationRule{Pattern: `^[A-Z]{2}-\d+$`, Message: "article must look like AB-123"},
	}

	v, err := Validate(p, "KP-45")
	require.NoError(t, err)
	assert.Equal(t, storage.TextValue("KP-45"), v)

	_, err = Validate(p, "kp45")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindPatternMismatch, fe.Kind)
	assert.Equal(t, "article must look like AB-123", fe.Message)
}

func TestValidate_Boolean(t *testing.T) {
	p := storage.Parameter{Code: "painted", Type: storage.ParamBoolean}

	v, err := Validate(p, true)
	require.NoError(t, err)
	assert.Equal(t, storage.BoolValue(true), v)

	v, err = Validate(p, "false")
	require.NoError(t, err)
	assert.Equal(t, storage.BoolValue(false), v)

	for _, raw := range []any{"yes", 1.0, nil} {
		_, err = Validate(p, raw)
		var fe *FieldError
		require.ErrorAs(t, err, &fe, "%v", raw)
		assert.Equal(t, KindNotABoolean, fe.Kind)
	}
}

func TestValidateAll_DefaultsAndRequired(t *testing.T) {
	width := lengthParam()
	width.Code = "width"
	width.DefaultValue = storage.Value{}

	note := storage.Parameter{Code: "note", Type: storage.ParamText}
	count := storage.Parameter{Code: "count", Type: storage.ParamNumber}

	params := []storage.TemplateParameter{tp(lengthParam()), tp(width), tp(note), tp(count)}

	_, err := ValidateAll(params, map[string]any{})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs.Fields, 1)
	assert.Equal(t, "width", verrs.Fields[0].Code)
	assert.Equal(t, KindRequired, verrs.Fields[0].Kind)

	values, err := ValidateAll(params, map[string]any{"width": 500.0, "extra": 1.0})
	require.NoError(t, err)
	assert.Equal(t, storage.NumberValue(1000), values["length"])
	assert.Equal(t, storage.NumberValue(500), values["width"])
	assert.Equal(t, storage.TextValue(""), values["note"])
	assert.Equal(t, storage.NumberValue(0), values["count"])
	assert.NotContains(t, values, "extra")
}

func TestValidateAll_CollectsEveryFailure(t *testing.T) {
	painted := storage.Parameter{Code: "painted", Type: storage.ParamBoolean}
	params := []storage.TemplateParameter{tp(lengthParam()), tp(painted)}

	_, err := ValidateAll(params, map[string]any{"length": 5.0, "painted": "maybe"})

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Fields, 2)
	assert.Equal(t, map[string]string{
		"length":  verrs.Fields[0].Message,
		"painted": verrs.Fields[1].Message,
	}, verrs.Map())
}

func TestUnknown(t *testing.T) {
	params := []storage.TemplateParameter{tp(lengthParam())}
	assert.Equal(t, []string{"a", "b"}, Unknown(params, map[string]any{"b": 1, "length": 2, "a": 3}))
	assert.Empty(t, Unknown(params, map[string]any{"length": 2}))
}

func TestCheckDefinition(t *testing.T) {
	assert.NoError(t, CheckDefinition(lengthParam()))

	bad := []storage.Parameter{
		{Code: "", Type: storage.ParamNumber},
		{Code: "x", Type: "DATE"},
		{Code: "x", Type: storage.ParamNumber, MinValue: f64(10), MaxValue: f64(1)},
		{Code: "x", Type: storage.ParamSelect},
		{Code: "x", Type: storage.ParamSelect, SelectOptions: []string{"a", "a"}},
		{Code: "x", Type: storage.ParamText, Validation: &storage.ValidationRule{Pattern: "("}},
		{Code: "x", Type: storage.ParamNumber, MaxValue: f64(5), DefaultValue: storage.NumberValue(10)},
	}
	for _, p := range bad {
		var de *DefinitionError
		assert.ErrorAs(t, CheckDefinition(p), &de, "%+v", p)
	}
}

func TestDefine(t *testing.T) {
	ctx := context.Background()
	p := lengthParam()

	store := new(MockUpserter)
	saved := p
	saved.ID = 7
	store.On("UpsertParameter", ctx, p).Return(saved, nil).Twice()

	got, err := Define(ctx, store, p)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	got, err = Define(ctx, store, p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	store.AssertExpectations(t)
}

func TestDefine_ReturnsStoredDefinition(t *testing.T) {
	ctx := context.Background()
	p := lengthParam()
	p.MaxValue = f64(50000)

	stored := lengthParam()
	stored.ID = 3

	store := new(MockUpserter)
	store.On("UpsertParameter", ctx, p).Return(stored, nil)

	got, err := Define(ctx, store, p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, stored.MaxValue, got.MaxValue)
}

func TestDefine_TypeConflict(t *testing.T) {
	ctx := context.Background()
	p := lengthParam()

	store := new(MockUpserter)
	store.On("UpsertParameter", ctx, p).Return(storage.Parameter{}, storage.ErrCodeConflict)

	_, err := Define(ctx, store, p)
	assert.ErrorIs(t, err, ErrDuplicateCodeConflict)
}

func TestDefine_InvalidDefinitionNeverReachesStore(t *testing.T) {
	store := new(MockUpserter)

	_, err := Define(context.Background(), store, storage.Parameter{Code: "x", Type: "DATE"})
	var de *DefinitionError
	assert.True(t, errors.As(err, &de))
	store.AssertNotCalled(t, "UpsertParameter", mock.Anything, mock.Anything)
}
