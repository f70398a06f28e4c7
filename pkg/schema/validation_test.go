package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_Errorf(t *testing.T) {
	r := &ValidationResult{}
	r.Errorf(StepPath(0, "config.url"), "%s step requires config.url", StepTypeWebhook)

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, ValidationIssue{
		Path:     "steps[0].config.url",
		Message:  "webhook step requires config.url",
		Severity: SeverityError,
	}, r.Errors[0])
}

func TestValidationResult_WarningsStayValid(t *testing.T) {
	r := &ValidationResult{}
	r.Warnf(StepPath(1, ""), "step %q is unreachable", "b")

	assert.True(t, r.Valid())
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
	assert.Equal(t, `steps[1]: step "b" is unreachable`, r.Warnings[0].String())
}

func TestValidationResult_Merge(t *testing.T) {
	a := &ValidationResult{}
	a.Errorf("/", "first")
	b := &ValidationResult{}
	b.Errorf(StepPath(0, "id"), "second")
	b.Warnf(StepPath(1, ""), "third")
	c := &ValidationResult{}
	c.Warnf("/", "fourth")

	a.Merge(b, nil, c)
	assert.Len(t, a.Errors, 2)
	assert.Len(t, a.Warnings, 2)
	assert.Equal(t, "fourth", a.Warnings[1].Message)
}

func TestValidationResult_ToError(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		r := &ValidationResult{}
		r.Errorf("steps[0].type", "unknown step type")

		err := r.ToError()
		require.Error(t, err)
		se, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, ErrCodeValidation, se.Code)
		assert.Equal(t, "steps[0].type: unknown step type", se.Message)
		assert.Len(t, se.Details["errors"], 1)
	})

	t.Run("multiple", func(t *testing.T) {
		r := &ValidationResult{}
		r.Errorf("/", "name is required")
		r.Errorf(StepPath(2, "id"), "duplicate step id")
		r.Warnf("/", "warn")

		se, ok := r.ToError().(*Error)
		require.True(t, ok)
		assert.Equal(t, "workflow definition has 2 errors:\n  /: name is required\n  steps[2].id: duplicate step id", se.Message)
		assert.Len(t, se.Details["warnings"], 1)
	})
}
