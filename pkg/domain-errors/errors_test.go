package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := New(CodeNotFound, "matching member not found")
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeInternal))
}

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(base, CodeInternal, "failed to persist verification")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOfWrappedWithFmt(t *testing.T) {
	inner := New(CodeAlreadyExists, "record already claimed")
	outer := fmt.Errorf("create verification: %w", inner)
	assert.Equal(t, CodeAlreadyExists, CodeOf(outer))
}

func TestMethodAndFields(t *testing.T) {
	err := Validation("unsupported date format",
		FieldViolation{Field: "date_of_birth", Value: "01-02-1990"},
	).WithMethod("standard")

	assert.Equal(t, "standard", MethodOf(err))
	require.Len(t, FieldsOf(err), 1)
	assert.Equal(t, "date_of_birth", FieldsOf(err)[0].Field)
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
}
