package validation

import "github.com/rendis/stepflow/pkg/schema"

// Validator reports the issues of a workflow definition.
type Validator interface {
	Validate(wf *schema.Workflow) *schema.ValidationResult
}

var (
	_ Validator = (*WorkflowValidator)(nil)
	_ Validator = (*JSONSchemaValidator)(nil)
)
