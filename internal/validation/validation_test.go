package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/apperr"
)

type sample struct {
	Name  string `json:"name" validate:"notblank,max=10"`
	Color string `json:"color" validate:"omitempty,hexcolor,len=7"`
	Role  string `json:"role" validate:"omitempty,team_role"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{"ok", sample{Name: "core", Color: "#00FF00", Role: "viewer"}, ""},
		{"blank name", sample{Name: "   "}, "name is required"},
		{"long name", sample{Name: "abcdefghijk"}, "name must be at most 10 characters"},
		{"short color", sample{Name: "x", Color: "#FFF"}, "color must be a #RRGGBB color"},
		{"bad role", sample{Name: "x", Role: "superuser"}, "role must be a valid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("email", "b@x.com", "required,email"))
	err := Var("email", "not-an-email", "required,email")
	require.Error(t, err)
	assert.Equal(t, "email must be a valid email address", err.Error())
}
