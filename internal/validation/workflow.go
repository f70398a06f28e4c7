package validation

import "github.com/rendis/stepflow/pkg/schema"

// WorkflowValidator runs structure, semantic and graph checks in order.
// A stage only runs when the previous ones found no errors, so a
// malformed definition is not also reported as semantically broken.
type WorkflowValidator struct {
	structure *JSONSchemaValidator
	stages    []func(*schema.Workflow) *schema.ValidationResult
}

func NewWorkflowValidator() (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		structure: jsv,
		stages:    []func(*schema.Workflow) *schema.ValidationResult{validateSemantic, validateGraph},
	}, nil
}

func (wv *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := wv.structure.Validate(wf)
	for _, stage := range wv.stages {
		if !result.Valid() {
			break
		}
		result.Merge(stage(wf))
	}
	return result
}
