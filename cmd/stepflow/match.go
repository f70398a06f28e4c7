package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match <description>",
	Short: "Rank agents for a task, or suggest capabilities when no agents are given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentsFile, _ := cmd.Flags().GetString("agents")
		limit, _ := cmd.Flags().GetInt("limit")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		onlineOnly, _ := cmd.Flags().GetBool("online-only")
		description := strings.Join(args, " ")

		if agentsFile == "" {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"keywords":     matcher.ExtractKeywords(description),
				"capabilities": matcher.SuggestCapabilities(description),
			})
		}

		agents, err := loadAgentsFile(agentsFile)
		if err != nil {
			return err
		}
		opts := matcher.DefaultOptions()
		opts.Limit = limit
		opts.MinScore = minScore
		opts.OnlineOnly = onlineOnly
		return printJSON(cmd.OutOrStdout(), matcher.MatchAgents(description, agents, opts))
	},
}

// loadAgentsFile reads a YAML or JSON list of agents and validates each.
func loadAgentsFile(path string) ([]matcher.Agent, error) {
	var doc []map[string]any
	if err := readDocument(path, &doc); err != nil {
		return nil, err
	}
	agents := make([]matcher.Agent, 0, len(doc))
	for i, raw := range doc {
		a, err := agentFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: agent %d: %w", path, i, err)
		}
		if err := matcher.ValidateAgent(a); err != nil {
			return nil, fmt.Errorf("%s: agent %d: %w", path, i, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func agentFromMap(raw map[string]any) (matcher.Agent, error) {
	a := matcher.Agent{}
	a.ID, _ = raw["id"].(string)
	a.Name, _ = raw["name"].(string)
	if av, ok := raw["availability"].(string); ok {
		a.Availability = matcher.Availability(av)
	}
	switch n := raw["tasks_completed"].(type) {
	case nil:
	case int:
		a.TasksCompleted = n
	case float64:
		a.TasksCompleted = int(n)
	default:
		return a, fmt.Errorf("tasks_completed must be a number")
	}
	caps, _ := raw["capabilities"].([]any)
	for _, c := range caps {
		s, ok := c.(string)
		if !ok {
			return a, fmt.Errorf("capabilities must be strings")
		}
		a.Capabilities = append(a.Capabilities, s)
	}
	return a, nil
}

func init() {
	matchCmd.Flags().StringP("agents", "a", "", "YAML or JSON file listing candidate agents")
	matchCmd.Flags().IntP("limit", "l", matcher.DefaultLimit, "maximum number of matches")
	matchCmd.Flags().Float64("min-score", 0, "drop matches scoring below this value")
	matchCmd.Flags().Bool("online-only", false, "only consider online agents")
}
