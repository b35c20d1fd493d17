package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"playlist-exporter/internal/apperr"
)

type sample struct {
	TargetEmail string `json:"targetEmail" validate:"required,email"`
	Name        string `json:"name,omitempty" validate:"max=5"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{TargetEmail: "friend@example.com"}))

	err := Struct(sample{})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	require.Equal(t, "targetEmail is required", apperr.Message(err))

	err = Struct(sample{TargetEmail: "not-an-email"})
	require.Equal(t, "targetEmail must be a valid email address", apperr.Message(err))

	err = Struct(sample{TargetEmail: "friend@example.com", Name: "too long"})
	require.Equal(t, "name must be at most 5 characters", apperr.Message(err))
}
