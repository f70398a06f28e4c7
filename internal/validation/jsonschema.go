package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rendis/stepflow/pkg/schema"
)

var printer = message.NewPrinter(language.English)

const workflowSchemaURL = "https://stepflow.dev/schemas/workflow.json"

// workflowSchemaJSON describes the stored shape of a Workflow.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "trigger_kind", "steps"],
  "properties": {
    "id": { "type": "string" },
    "user_id": { "type": "string" },
    "name": { "type": "string", "minLength": 1 },
    "trigger_kind": {
      "type": "string",
      "enum": ["manual", "schedule", "webhook", "task_complete", "message"]
    },
    "trigger_config": { "type": "object" },
    "enabled": { "type": "boolean" },
    "steps": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/step" }
    },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "additionalProperties": false,
  "if": {
    "properties": { "trigger_kind": { "const": "schedule" } },
    "required": ["trigger_kind"]
  },
  "then": {
    "required": ["trigger_config"],
    "properties": {
      "trigger_config": {
        "required": ["cron"],
        "properties": {
          "cron": { "type": "string", "minLength": 1 },
          "context": { "type": "object" }
        }
      }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["agent_call", "condition", "transform", "delay", "webhook", "set_context"]
        },
        "name": { "type": "string" },
        "config": { "type": "object" },
        "on_success": { "type": "string" },
        "on_failure": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks the structure of a workflow against the
// workflow JSON Schema (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &JSONSchemaValidator{workflowSchema: compiled}, nil
}

// Validate reports every schema violation as an error located by its
// dotted field path.
func (v *JSONSchemaValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if wf == nil {
		result.Errorf("/", "workflow is nil")
		return result
	}
	doc, err := toJSONValue(wf)
	if err != nil {
		result.Errorf("/", "workflow is not serializable: %s", err.Error())
		return result
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			result.Errorf("/", "%s", err.Error())
			return result
		}
		collectViolations(verr, result)
	}
	return result
}

// toJSONValue round-trips through JSON so numbers become json.Number, as
// the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// collectViolations adds the leaves of a ValidationError tree.
func collectViolations(verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		result.Errorf(fieldPath(verr.InstanceLocation), "%s", verr.ErrorKind.LocalizedString(printer))
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, result)
	}
}

// fieldPath turns an instance location such as [steps 1 type] into
// "steps[1].type".
func fieldPath(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, tok := range loc {
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}
