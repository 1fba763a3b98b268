package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyRequest struct {
	Name        string   `json:"name" validate:"required,max=10"`
	Email       string   `json:"contact_email,omitempty" validate:"omitempty,email"`
	Scopes      []string `json:"scopes" validate:"required,min=1,dive,oneof=read write"`
	Internal    string   `json:"-" validate:"omitempty,max=1"`
	Unannotated int      `validate:"omitempty,max=5"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(keyRequest{Name: "ci", Scopes: []string{"read"}}))
	})

	t.Run("fields reported by json name", func(t *testing.T) {
		err := ValidateStruct(keyRequest{Email: "not-an-email", Unannotated: 9})
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "name is required", fields["name"])
		assert.Equal(t, "contact_email must be a valid email", fields["contact_email"])
		assert.Equal(t, "scopes is required", fields["scopes"])
		assert.Equal(t, "Unannotated must be at most 5", fields["Unannotated"])
	})

	t.Run("empty slice and dive paths", func(t *testing.T) {
		err := ValidateStruct(keyRequest{Name: "ci", Scopes: []string{}})
		assert.Equal(t, "scopes must contain at least 1 item(s)", GetValidationFields(err)["scopes"])

		err = ValidateStruct(keyRequest{Name: "ci", Scopes: []string{"read", "admin"}})
		assert.Equal(t, "scopes[1] must be one of: read write", GetValidationFields(err)["scopes[1]"])
	})

	t.Run("max on string", func(t *testing.T) {
		err := ValidateStruct(keyRequest{Name: "a-very-long-name", Scopes: []string{"read"}})
		assert.Equal(t, "name must be at most 10", GetValidationFields(err)["name"])
	})

	t.Run("non-struct input", func(t *testing.T) {
		err := ValidateStruct("nope")
		assert.Error(t, err)
		assert.False(t, IsValidationError(err))
	})
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Message: "Validation failed", Fields: map[string]string{"email": "email is required"}}
	assert.Equal(t, "Validation failed: email", err.Error())
	assert.Equal(t, "Validation failed", (&ValidationError{Message: "Validation failed"}).Error())

	assert.False(t, IsValidationError(errors.New("plain")))
	assert.Nil(t, GetValidationFields(errors.New("plain")))
}
