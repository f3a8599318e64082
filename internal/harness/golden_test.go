package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSnapshot(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "tiny",
		Trace: []TraceEvent{
			{Type: TypeEvent, Seq: 1, EventID: "evt-1", Trigger: "email_received", Service: "google", Outcome: OutcomeNoMatch},
			{Type: TypeReaction, Seq: 2, EventID: "evt-1", Task: "t", TaskID: 4, Reaction: "send_sms", Tier: "common",
				Params: map[string]string{"z": "1", "a": "2"}, Outcome: OutcomeOK},
		},
	}

	got, err := marshalSnapshot(snapshot)
	require.NoError(t, err)

	want := `{
  "scenario_name": "tiny",
  "trace": [
    {
      "type": "event",
      "seq": 1,
      "event_id": "evt-1",
      "trigger": "email_received",
      "service": "google",
      "outcome": "no_match"
    },
    {
      "type": "reaction",
      "seq": 2,
      "event_id": "evt-1",
      "task": "t",
      "task_id": 4,
      "reaction": "send_sms",
      "tier": "common",
      "params": {
        "a": "2",
        "z": "1"
      },
      "outcome": "ok"
    }
  ]
}
`
	assert.Equal(t, want, string(got))
}

func TestAssertGolden_ReusesExistingResult(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/push_dispatch.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, "push_dispatch", result))
}
