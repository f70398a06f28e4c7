package steps

import (
	"context"
	"testing"

	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicExecutor struct{}

func (panicExecutor) Type() schema.StepType { return "explode" }
func (panicExecutor) Execute(context.Context, schema.Step, map[string]any) Result {
	panic("kaboom")
}

func TestRegistry_Builtins(t *testing.T) {
	reg, err := NewDefaultRegistry(Deps{})
	require.NoError(t, err)

	assert.ElementsMatch(t, schema.StepTypes, reg.Types())
	for _, st := range schema.StepTypes {
		e, err := reg.Get(st)
		require.NoError(t, err)
		assert.Equal(t, st, e.Type())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(DelayExecutor{}))
	err := reg.Register(DelayExecutor{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	assert.True(t, schema.IsCode(reg.Register(nil), schema.ErrCodeValidation))
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := NewRegistry().Get("nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRegistry_ExecuteUnknownType(t *testing.T) {
	res := NewRegistry().Execute(context.Background(), schema.Step{ID: "x", Type: "nope"}, nil)
	assert.False(t, res.Success)
	assert.Equal(t, `unknown step type "nope"`, res.Error)
}

func TestRegistry_ExecuteRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(panicExecutor{}))

	res := reg.Execute(context.Background(), schema.Step{ID: "boom", Type: "explode"}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
}
