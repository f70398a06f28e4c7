package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rendis/stepflow/pkg/mcp"
	"github.com/rendis/stepflow/pkg/schema"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readDocument decodes a YAML or JSON file into v. JSON is read through
// the YAML decoder since it is a subset.
func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadWorkflowFile reads a workflow definition from a YAML or JSON file.
func loadWorkflowFile(path string) (*schema.Workflow, error) {
	var raw map[string]any
	if err := readDocument(path, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: empty workflow document", path)
	}
	return mcp.DecodeWorkflow(raw)
}

// parseContextFlag decodes the --context flag value, a JSON object.
func parseContextFlag(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("--context must be a JSON object: %w", err)
	}
	return out, nil
}
