package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/validation"
)

type importRequest struct {
	Mode      string `json:"mode" validate:"required,oneof=create_only update_only upsert create_duplicates"`
	BatchSize int    `json:"batch_size" validate:"gte=0,lte=1000"`
	Filename  string `json:"filename" validate:"required,max=255"`
}

func TestValidatorSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(importRequest{
		Mode:      "upsert",
		BatchSize: 50,
		Filename:  "catalog.csv",
	})
	assert.NoError(t, err)
}

func TestValidatorErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       importRequest
		wantField string
	}{
		{
			name:      "missing mode",
			req:       importRequest{Filename: "catalog.csv"},
			wantField: "mode",
		},
		{
			name:      "unknown mode",
			req:       importRequest{Mode: "sideways", Filename: "catalog.csv"},
			wantField: "mode",
		},
		{
			name:      "batch size out of range",
			req:       importRequest{Mode: "upsert", BatchSize: 5000, Filename: "catalog.csv"},
			wantField: "batch_size",
		},
		{
			name:      "missing filename",
			req:       importRequest{Mode: "upsert"},
			wantField: "filename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			// Field details use JSON tag names, not struct field names.
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}
