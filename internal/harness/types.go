package harness

// Trace event types.
const (
	TypeEvent    = "event"
	TypeReaction = "reaction"
)

// Event outcomes recorded in the trace.
const (
	OutcomeDispatched = "dispatched"
	OutcomeNoMatch    = "no_match"
	OutcomeDuplicate  = "duplicate"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"

	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// TraceEvent is one line of a scenario trace: either a handled inbound event
// or a reaction invoked while dispatching it.
type TraceEvent struct {
	Type    string `json:"type"` // "event" or "reaction"
	Seq     int64  `json:"seq"`
	EventID string `json:"event_id,omitempty"`

	// Event lines.
	Trigger      string `json:"trigger,omitempty"`
	Service      string `json:"service,omitempty"`
	LastReaction string `json:"last_reaction,omitempty"`

	// Reaction lines.
	Task     string            `json:"task,omitempty"`
	TaskID   int64             `json:"task_id,omitempty"`
	Reaction string            `json:"reaction,omitempty"`
	Tier     string            `json:"tier,omitempty"`
	From     string            `json:"service_from,omitempty"`
	Params   map[string]string `json:"params,omitempty"`

	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the handled events and invoked reactions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds the failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Tasks maps scenario task names to stored task ids.
	Tasks map[string]int64 `json:"tasks,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Tasks:  make(map[string]int64),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends ev with the next sequence number.
func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
