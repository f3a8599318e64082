// Package harness runs end-to-end scenarios against the event pipeline.
//
// A scenario seeds identities and tasks, submits a sequence of inbound
// events through the real engine, and checks the resulting trace and the
// final database state. Reactions are replaced by a recorder that captures
// every invocation and can be told to fail or panic for a given task, so
// fan-out isolation can be exercised without provider credentials.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	identities:
//	  - username: pau
//	    email: pau@example.com
//	tasks:
//	  - name: notify
//	    owner: pau
//	    service: github
//	    trigger: push_event
//	    trigger_args: [area, main]
//	    reaction: send_email
//	    fail: "smtp relay refused"
//	events:
//	  - event_name: push_event
//	    service: github
//	    params: { repo: area, branch: main }
//	    context_params: { commit_msg: "Initial commit" }
//	    message: { id: "42", owner: pau }
//	    expect:
//	      outcome: dispatched
//	      last_reaction: send_email
//	assertions:
//	  - type: reaction_called
//	    task: notify
//	    params: { commit_msg: "Initial commit" }
//	  - type: row_count
//	    table: last_events
//	    count: 1
//
// Tasks are created through the task service, so directional trigger
// variants are normalized exactly as they are for API clients. Task names are
// scenario-local labels used by assertions and the trace.
//
// # Assertion Types
//
//   - reaction_called: the task (or reaction) was invoked with matching params
//   - reaction_order: tasks were invoked in the given order
//   - reaction_count: the task (or reaction) was invoked exactly N times
//   - row_count: a table holds exactly N rows matching where
//   - final_state: one row of a table holds the expected values
//
// # Deterministic Testing
//
// Every run uses a fresh SQLite database, sequential event ids ("evt-1",
// "evt-2", ...) and a step clock starting at testutil.DefaultEpoch, so traces
// are byte-identical across runs and can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/push_dispatch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
