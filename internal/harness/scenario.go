package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end pipeline scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Identities are created first, in order.
	Identities []IdentityStep `yaml:"identities"`

	// Tasks are created through the task service after the identities.
	Tasks []TaskStep `yaml:"tasks,omitempty"`

	// Events are submitted to the engine one at a time, in order.
	Events []EventStep `yaml:"events"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// IdentityStep creates one identity.
type IdentityStep struct {
	Username    string `yaml:"username"`
	Email       string `yaml:"email"`
	PhoneNumber string `yaml:"phone_number,omitempty"`
}

// TaskStep creates one task.
type TaskStep struct {
	// Name is the scenario-local label of the task.
	Name string `yaml:"name"`

	// Owner is the username of a declared identity.
	Owner string `yaml:"owner"`

	Service      string   `yaml:"service"`
	Trigger      string   `yaml:"trigger"`
	TriggerArgs  []string `yaml:"trigger_args,omitempty"`
	Reaction     string   `yaml:"reaction"`
	ReactionArgs []string `yaml:"reaction_args,omitempty"`
	OAuthToken   string   `yaml:"oauth_token,omitempty"`

	// Fail makes the recorded reaction of this task return an error with
	// this message.
	Fail string `yaml:"fail,omitempty"`

	// Panic makes the recorded reaction of this task panic.
	Panic bool `yaml:"panic,omitempty"`
}

// EventStep submits one inbound event.
type EventStep struct {
	EventName     string            `yaml:"event_name"`
	Service       string            `yaml:"service"`
	Params        map[string]string `yaml:"params,omitempty"`
	ContextParams map[string]string `yaml:"context_params,omitempty"`

	// Message attaches dedup information to the event.
	Message *MessageRef `yaml:"message,omitempty"`

	// Expect validates the handling of this event. If nil, any outcome
	// is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// MessageRef identifies a provider message. Owner names a declared identity
// whose id becomes the dedup user id; UserID is used verbatim when Owner is
// empty, so malformed dedup blocks can be expressed.
type MessageRef struct {
	ID     string `yaml:"id"`
	Owner  string `yaml:"owner,omitempty"`
	UserID string `yaml:"user_id,omitempty"`
}

// ExpectClause specifies the expected handling of one event.
type ExpectClause struct {
	// Outcome is one of dispatched, no_match, duplicate, invalid, error.
	Outcome string `yaml:"outcome"`

	// LastReaction is the expected last reaction attempted. Checked only
	// when set.
	LastReaction string `yaml:"last_reaction,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Task is a scenario task name (reaction_called, reaction_count).
	Task string `yaml:"task,omitempty"`

	// Reaction is a reaction name (reaction_called, reaction_count). Used
	// when Task is empty.
	Reaction string `yaml:"reaction,omitempty"`

	// Params are the expected invocation params (reaction_called).
	// Subset match.
	Params map[string]string `yaml:"params,omitempty"`

	// Tasks is the expected invocation order (reaction_order).
	Tasks []string `yaml:"tasks,omitempty"`

	// Count is the expected number of invocations or rows.
	Count int `yaml:"count,omitempty"`

	// Table is the table name (row_count, final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters the rows (row_count, final_state). All fields must
	// match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertReactionCalled = "reaction_called"
	AssertReactionOrder  = "reaction_order"
	AssertReactionCount  = "reaction_count"
	AssertRowCount       = "row_count"
	AssertFinalState     = "final_state"
)

var validOutcomes = map[string]bool{
	OutcomeDispatched: true,
	OutcomeNoMatch:    true,
	OutcomeDuplicate:  true,
	OutcomeInvalid:    true,
	OutcomeError:      true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// reference resolves.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	users := make(map[string]bool, len(s.Identities))
	for i, id := range s.Identities {
		if id.Username == "" {
			return fmt.Errorf("identities[%d]: username is required", i)
		}
		if users[id.Username] {
			return fmt.Errorf("identities[%d]: duplicate username %q", i, id.Username)
		}
		users[id.Username] = true
	}

	tasks := make(map[string]bool, len(s.Tasks))
	for i, task := range s.Tasks {
		switch {
		case task.Name == "":
			return fmt.Errorf("tasks[%d]: name is required", i)
		case tasks[task.Name]:
			return fmt.Errorf("tasks[%d]: duplicate name %q", i, task.Name)
		case !users[task.Owner]:
			return fmt.Errorf("tasks[%d]: owner %q is not a declared identity", i, task.Owner)
		case task.Service == "":
			return fmt.Errorf("tasks[%d]: service is required", i)
		case task.Trigger == "":
			return fmt.Errorf("tasks[%d]: trigger is required", i)
		case task.Reaction == "":
			return fmt.Errorf("tasks[%d]: reaction is required", i)
		}
		tasks[task.Name] = true
	}

	for i, ev := range s.Events {
		if ev.Message != nil && ev.Message.Owner != "" && !users[ev.Message.Owner] {
			return fmt.Errorf("events[%d].message: owner %q is not a declared identity", i, ev.Message.Owner)
		}
		if ev.Expect != nil && !validOutcomes[ev.Expect.Outcome] {
			return fmt.Errorf("events[%d].expect: unknown outcome %q", i, ev.Expect.Outcome)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], tasks); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, tasks map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertReactionCalled, AssertReactionCount:
		if a.Task == "" && a.Reaction == "" {
			return fmt.Errorf("assertions[%d]: task or reaction is required for %s", index, a.Type)
		}
		if a.Task != "" && !tasks[a.Task] {
			return fmt.Errorf("assertions[%d]: unknown task %q", index, a.Task)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertReactionOrder:
		if len(a.Tasks) == 0 {
			return fmt.Errorf("assertions[%d]: tasks list is required for reaction_order", index)
		}
		for _, name := range a.Tasks {
			if !tasks[name] {
				return fmt.Errorf("assertions[%d]: unknown task %q", index, name)
			}
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
