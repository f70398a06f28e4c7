package matcher

import (
	"strings"

	"github.com/rendis/stepflow/pkg/schema"
)

// Availability is an agent's current presence state.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityBusy    Availability = "busy"
	AvailabilityAway    Availability = "away"
	AvailabilityOffline Availability = "offline"
)

var availabilityFactors = map[Availability]float64{
	AvailabilityOnline:  1,
	AvailabilityBusy:    0.5,
	AvailabilityAway:    0.25,
	AvailabilityOffline: 0,
}

// Factor is the share of the availability weight an agent in this state earns.
func (a Availability) Factor() float64 {
	return availabilityFactors[a]
}

// Agent is the matcher's view of an agent. The caller supplies agents per
// call; nothing is cached between calls.
type Agent struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Capabilities   []string     `json:"capabilities"`
	Availability   Availability `json:"availability"`
	TasksCompleted int          `json:"tasks_completed"`
}

// ValidateAgent checks the fields the ranking depends on.
func ValidateAgent(a Agent) error {
	if strings.TrimSpace(a.ID) == "" {
		return schema.NewError(schema.ErrCodeValidation, "agent id is required")
	}
	if _, ok := availabilityFactors[a.Availability]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"invalid availability %q for agent %s: must be one of online, busy, away, offline", a.Availability, a.ID)
	}
	if a.TasksCompleted < 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "agent %s has negative tasks_completed", a.ID)
	}
	return nil
}
