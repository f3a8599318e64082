package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
identities:
  - username: pau
    email: pau@example.com
tasks:
  - name: notify
    owner: pau
    service: github
    trigger: push_event
    trigger_args: [area, main]
    reaction: send_email
events:
  - event_name: push_event
    service: github
    params: { repo: area, branch: main }
    expect:
      outcome: dispatched
assertions:
  - type: reaction_count
    task: notify
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Identities, 1)
	require.Len(t, scenario.Tasks, 1)
	require.Len(t, scenario.Events, 1)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, []string{"area", "main"}, scenario.Tasks[0].TriggerArgs)
	assert.Equal(t, map[string]string{"repo": "area", "branch": "main"}, scenario.Events[0].Params)
	assert.Equal(t, OutcomeDispatched, scenario.Events[0].Expect.Outcome)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(validScenario + "assertion:\n  - type: row_count\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
events: [{event_name: push_event, service: github}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
events: [{event_name: push_event, service: github}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: "description is required",
		},
		{
			name: "no events",
			content: `
name: n
description: d
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: "events list is required",
		},
		{
			name: "no assertions",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "duplicate username",
			content: `
name: n
description: d
identities: [{username: pau, email: a@example.com}, {username: pau, email: b@example.com}]
events: [{event_name: push_event, service: github}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: `identities[1]: duplicate username "pau"`,
		},
		{
			name: "undeclared task owner",
			content: `
name: n
description: d
tasks: [{name: t, owner: ghost, service: github, trigger: push_event, reaction: send_email}]
events: [{event_name: push_event, service: github}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: `tasks[0]: owner "ghost" is not a declared identity`,
		},
		{
			name: "task without reaction",
			content: `
name: n
description: d
identities: [{username: pau, email: a@example.com}]
tasks: [{name: t, owner: pau, service: github, trigger: push_event}]
events: [{event_name: push_event, service: github}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: "tasks[0]: reaction is required",
		},
		{
			name: "undeclared message owner",
			content: `
name: n
description: d
events: [{event_name: email_received, service: google, message: {id: "1", owner: ghost}}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: `events[0].message: owner "ghost" is not a declared identity`,
		},
		{
			name: "unknown outcome",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github, expect: {outcome: exploded}}]
assertions: [{type: row_count, table: last_events}]
`,
			wantErr: `events[0].expect: unknown outcome "exploded"`,
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github}]
assertions: [{type: trace_contains}]
`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name: "assertion on unknown task",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github}]
assertions: [{type: reaction_count, task: ghost}]
`,
			wantErr: `assertions[0]: unknown task "ghost"`,
		},
		{
			name: "reaction_called without target",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github}]
assertions: [{type: reaction_called}]
`,
			wantErr: "task or reaction is required",
		},
		{
			name: "final_state without expect",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github}]
assertions: [{type: final_state, table: tasks}]
`,
			wantErr: "expect is required for final_state",
		},
		{
			name: "row_count without table",
			content: `
name: n
description: d
events: [{event_name: push_event, service: github}]
assertions: [{type: row_count}]
`,
			wantErr: "table is required for row_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
