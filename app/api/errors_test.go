package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vagueness/types"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("document x: %w", types.ErrNotFound), fiber.StatusNotFound},
		{types.NewConfigError("selection", "page 12 outside 1..10"), fiber.StatusBadRequest},
		{&types.ExtractionError{Source: "scan.pdf", Err: errors.New("encrypted")}, fiber.StatusUnprocessableEntity},
		{&types.RetrievalError{Err: errors.New("connection refused")}, fiber.StatusServiceUnavailable},
		{fmt.Errorf("%w: 4 of 10 chunks", types.ErrCancelled), fiber.StatusRequestTimeout},
		{fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), fiber.StatusMethodNotAllowed},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, FromError(tt.err).Code, tt.err.Error())
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error { return ErrNotFound("abc", "run") })
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return NewValidationError(map[string]string{"Mode": "failed on 'oneof' tag"})
	})
	app.Get("/config", func(c *fiber.Ctx) error { return types.NewConfigError("format", "unsupported export format %q", "xml") })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	var apiErr Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "run with abc not found", apiErr.Message)

	resp, err = app.Test(httptest.NewRequest("GET", "/invalid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	var valErr ValidationError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&valErr))
	assert.Contains(t, valErr.Errors, "Mode")

	resp, err = app.Test(httptest.NewRequest("GET", "/config", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/nowhere", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTitleOf(t *testing.T) {
	assert.Equal(t, "IS 456 2000", titleOf("IS_456-2000.pdf"))
	assert.Equal(t, "tender", titleOf("tender.txt"))
}
