package diagram

import (
	"testing"

	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMermaidLinear(t *testing.T) {
	model, err := Build(linearWorkflow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "---\ntitle: ETL Pipeline\n---\nflowchart TD\n")
	assert.Contains(t, output, `fetch[/"1. fetch (webhook)"/]`)
	assert.Contains(t, output, `transform["2. transform (transform)"]`)
	assert.Contains(t, output, `__start__(("Start"))`)
	assert.Contains(t, output, `__end__(("End"))`)
	assert.Contains(t, output, "    __start__ --> fetch\n")
	assert.Contains(t, output, "    store --> __end__\n")
	assert.NotContains(t, output, "classDef")
}

func TestRenderMermaidCondition(t *testing.T) {
	model, err := Build(conditionWorkflow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "title: Workflow\n")
	assert.Contains(t, output, `decide{"2. decide (condition)"}`)
	assert.Contains(t, output, `notify{{"3. Notify team (agent_call)"}}`)
	assert.Contains(t, output, `deploy(["4. deploy (delay)"])`)
	assert.Contains(t, output, "decide ==>|true| deploy")
	assert.Contains(t, output, "decide -.->|false| notify")
}

func TestRenderMermaidWithStatus(t *testing.T) {
	run := &schema.WorkflowRun{
		WorkflowID:  "wf-etl",
		Status:      schema.RunStatusCancelled,
		CurrentStep: 1,
		Context:     map[string]any{"fetch": map[string]any{}},
	}
	model, err := Build(linearWorkflow(), run)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "classDef completed")
	assert.Contains(t, output, "class fetch completed")
	assert.Contains(t, output, "class transform cancelled")
	assert.Contains(t, output, "class store skipped")
}

func TestRenderMermaidGroupsClasses(t *testing.T) {
	run := &schema.WorkflowRun{
		WorkflowID:  "wf-etl",
		Status:      schema.RunStatusCompleted,
		CurrentStep: 3,
		Context:     map[string]any{"fetch": 1, "transform": 2, "store": 3},
	}
	model, err := Build(linearWorkflow(), run)
	require.NoError(t, err)
	assert.Contains(t, RenderMermaid(model), "class fetch,store,transform completed")
}

func TestRenderMermaidEscapesQuotes(t *testing.T) {
	wf := &schema.Workflow{Steps: []schema.Step{{ID: "q", Name: `say "hi"`, Type: schema.StepTypeSetContext}}}
	model, err := Build(wf, nil)
	require.NoError(t, err)
	assert.Contains(t, RenderMermaid(model), `q["1. say #quot;hi#quot; (set_context)"]`)
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "step_one_a_b", mermaidSafeID("step-one.a b"))
}
