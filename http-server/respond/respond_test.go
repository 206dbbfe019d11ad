package respond

import (
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
	"github.com/stretchr/testify/require"

	"estimator/internal/assembler"
	"estimator/internal/catalog"
	"estimator/internal/formula"
	"estimator/internal/service/estimate"
	"estimator/internal/storage"
)

func TestError_Status(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", &catalog.ValidationErrors{Fields: []catalog.FieldError{{Code: "length", Kind: catalog.KindRequired, Message: "length is required"}}}, http.StatusUnprocessableEntity, "ValidationError"},
		{"formula", fmt.Errorf("eval: %w", &formula.Error{Kind: formula.ErrDivisionByZero, Formula: "ratio", Msg: "division by zero"}), http.StatusUnprocessableEntity, "DivisionByZero"},
		{"not found", fmt.Errorf("op: %w", storage.ErrNotFound), http.StatusNotFound, "NotFound"},
		{"archived", fmt.Errorf("op: %w", estimate.ErrTemplateArchived), http.StatusConflict, "TemplateArchived"},
		{"conflict", fmt.Errorf("op: %w", catalog.ErrDuplicateCodeConflict), http.StatusConflict, "DuplicateCodeConflict"},
		{"assembly", fmt.Errorf("op: %w", assembler.ErrMissingResourceBlock), http.StatusUnprocessableEntity, "InvalidTemplate"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, ""},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rr := httptest.NewRecorder()

			Error(rr, req, log, tc.err)

			assert.Equal(t, tc.status, rr.Code)
			var body ErrorResponse
			require.NoError(t, render.DecodeJSON(rr.Body, &body))
			assert.Equal(t, tc.kind, body.Kind)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Error)
			}
		})
	}
}

func TestError_ValidationFields(t *testing.T) {
	err := &catalog.ValidationErrors{Fields: []catalog.FieldError{
		{Code: "width", Kind: catalog.KindOutOfRange, Message: "width must be at most 100"},
	}}
	rr := httptest.NewRecorder()

	Error(rr, httptest.NewRequest(http.MethodPost, "/", nil), slog.New(slog.NewTextHandler(io.Discard, nil)), err)

	var body ErrorResponse
	require.NoError(t, render.DecodeJSON(rr.Body, &body))
	assert.Equal(t, map[string]string{"width": "width must be at most 100"}, body.Fields)
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name  string  `json:"name" validate:"required"`
		Price float64 `json:"price" validate:"gte=0"`
	}

	t.Run("valid", func(t *testing.T) {
		var p payload
		rr := httptest.NewRecorder()
		ok := Decode(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","price":1}`)), &p)
		assert.True(t, ok)
		assert.Equal(t, "a", p.Name)
	})

	t.Run("bad json", func(t *testing.T) {
		var p payload
		rr := httptest.NewRecorder()
		ok := Decode(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), &p)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("failed tags", func(t *testing.T) {
		var p payload
		rr := httptest.NewRecorder()
		ok := Decode(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":-1}`)), &p)
		assert.False(t, ok)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

		var body ErrorResponse
		require.NoError(t, render.DecodeJSON(rr.Body, &body))
		assert.Equal(t, "required", body.Fields["payload.Name"])
		assert.Equal(t, "gte", body.Fields["payload.Price"])
	})
}
