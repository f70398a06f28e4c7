package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// celContextVar names the single CEL variable bound to the run context:
// `ctx.order.total > 100`.
const celContextVar = "ctx"

// CELEngine evaluates Common Expression Language conditions. Numeric
// comparisons across int and double are allowed since JSON-decoded
// contexts carry every number as a double.
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(celContextVar, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, programs: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	prg, err := e.programs.getOrCompile(expression, e.program)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any{celContextVar: orEmpty(data)})
	if err != nil {
		return nil, evalError(e.Name(), expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) program(src string) (cel.Program, error) {
	ast, issues := e.env.Compile(src)
	if err := issues.Err(); err != nil {
		return nil, compileError(e.Name(), src, err)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, compileError(e.Name(), src, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
