package expressions

import (
	"context"
	"sync"

	"github.com/rendis/stepflow/pkg/schema"
)

// Engine evaluates an expression against a context map.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// programCache memoizes compiled programs keyed by source text.
// Safe for concurrent use.
type programCache[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newProgramCache[T any]() *programCache[T] {
	return &programCache[T]{items: make(map[string]T)}
}

func (c *programCache[T]) getOrCompile(src string, compile func(string) (T, error)) (T, error) {
	c.mu.RLock()
	p, ok := c.items[src]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.items[src]; ok {
		return p, nil
	}
	p, err := compile(src)
	if err != nil {
		return p, err
	}
	c.items[src] = p
	return p, nil
}

// Conditions resolves condition expressions by language and enforces a
// boolean result. The zero language selects the restricted evaluator.
type Conditions struct {
	engines map[string]Engine
}

// NewConditions builds the default condition set: restricted, expr and cel.
func NewConditions() (*Conditions, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Conditions{engines: map[string]Engine{
		"":     RestrictedEngine{},
		"expr": NewExprEngine(),
		"cel":  celEngine,
	}}, nil
}

// Register adds or replaces the engine for a language.
func (c *Conditions) Register(language string, e Engine) {
	c.engines[language] = e
}

// Evaluate runs expression in the given language and returns its boolean value.
func (c *Conditions) Evaluate(ctx context.Context, language, expression string, data map[string]any) (bool, error) {
	e, ok := c.engines[language]
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "unknown condition language %q", language)
	}
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"%s condition %q returned %T, want bool", e.Name(), expression, out)
	}
	return b, nil
}

func emptyExpression(engine string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: empty expression", engine)
}

func compileError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}

func evalError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeExecution, "%s: evaluating %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}

func orEmpty(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}
