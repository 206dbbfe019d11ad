package save

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"estimator/internal/assembler"
)

type MockAssembler struct {
	mock.Mock
}

func (m *MockAssembler) Assemble(ctx context.Context, req assembler.Request) (*assembler.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assembler.Result), args.Error(1)
}

func (m *MockAssembler) Preview(ctx context.Context, req assembler.Request) (*assembler.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assembler.Result), args.Error(1)
}

type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) ObserveAssembly(outcome string) {
	m.Called(outcome)
}

const body = `{
	"name": "Light box",
	"category": "signage",
	"blocks": [
		{"type": "MATERIALS", "name": "Face", "rules": [
			{"resource_code": "acrylic", "quantity": "area", "waste_percent": 10}
		]}
	]
}`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(h http.HandlerFunc, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/templates/assemble", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAssembleTemplate_Success(t *testing.T) {
	asm := new(MockAssembler)
	obs := new(MockObserver)
	asm.On("Assemble", mock.Anything, mock.MatchedBy(func(r assembler.Request) bool {
		return r.Name == "Light box" && len(r.Blocks) == 1 && r.Blocks[0].Rules[0].WastePercent == 10
	})).Return(&assembler.Result{
		TemplateID:   7,
		TemplateCode: "3b1f",
		Preview:      assembler.Preview{EstimatedParameters: 4, EstimatedFormulas: 4, EstimatedBomItems: 1},
	}, nil)
	obs.On("ObserveAssembly", "ok").Return()

	rr := post(AssembleTemplate(discard(), asm, obs), body)

	require.Equal(t, http.StatusCreated, rr.Code)
	var got assembler.Result
	require.NoError(t, render.DecodeJSON(rr.Body, &got))
	assert.Equal(t, int64(7), got.TemplateID)
	assert.Equal(t, 1, got.Preview.EstimatedBomItems)
	asm.AssertExpectations(t)
	obs.AssertExpectations(t)
}

func TestAssembleTemplate_Rejected(t *testing.T) {
	asm := new(MockAssembler)
	obs := new(MockObserver)
	asm.On("Assemble", mock.Anything, mock.Anything).Return(&assembler.Result{
		Validation: assembler.Validation{Errors: []string{"at least one MATERIALS or WORK_TYPES block is required"}},
	}, fmt.Errorf("assembler.Assemble: %w", assembler.ErrMissingResourceBlock))
	obs.On("ObserveAssembly", "rejected").Return()

	rr := post(AssembleTemplate(discard(), asm, obs), `{"name":"Empty","blocks":[]}`)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var got assembler.Result
	require.NoError(t, render.DecodeJSON(rr.Body, &got))
	assert.Len(t, got.Validation.Errors, 1)
	obs.AssertExpectations(t)
}

func TestAssembleTemplate_Conflict(t *testing.T) {
	asm := new(MockAssembler)
	asm.On("Assemble", mock.Anything, mock.Anything).Return(&assembler.Result{},
		fmt.Errorf("assembler.Assemble: %w", assembler.ErrDuplicateCodeConflict))

	rr := post(AssembleTemplate(discard(), asm, nil), body)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAssembleTemplate_StorageError(t *testing.T) {
	asm := new(MockAssembler)
	obs := new(MockObserver)
	asm.On("Assemble", mock.Anything, mock.Anything).Return(&assembler.Result{}, errors.New("disk full"))
	obs.On("ObserveAssembly", "error").Return()

	rr := post(AssembleTemplate(discard(), asm, obs), body)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk full")
	obs.AssertExpectations(t)
}

func TestAssembleTemplate_InvalidJSON(t *testing.T) {
	asm := new(MockAssembler)

	rr := post(AssembleTemplate(discard(), asm, nil), `{`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	asm.AssertNotCalled(t, "Assemble", mock.Anything, mock.Anything)
}

func TestAssembleTemplate_MissingName(t *testing.T) {
	asm := new(MockAssembler)

	rr := post(AssembleTemplate(discard(), asm, nil), `{"blocks":[{"type":"MATERIALS"}]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	asm.AssertNotCalled(t, "Assemble", mock.Anything, mock.Anything)
}

func TestPreviewTemplate(t *testing.T) {
	asm := new(MockAssembler)
	asm.On("Preview", mock.Anything, mock.Anything).Return(&assembler.Result{
		Validation: assembler.Validation{Warnings: []string{"no OPTIONS block"}},
		Preview:    assembler.Preview{EstimatedBomItems: 1},
	}, nil)

	rr := post(PreviewTemplate(discard(), asm), body)

	require.Equal(t, http.StatusOK, rr.Code)
	var got assembler.Result
	require.NoError(t, render.DecodeJSON(rr.Body, &got))
	assert.Empty(t, got.TemplateCode)
	assert.Equal(t, []string{"no OPTIONS block"}, got.Validation.Warnings)
	asm.AssertNotCalled(t, "Assemble", mock.Anything, mock.Anything)
}
