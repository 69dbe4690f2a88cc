package harness

// Trace event types.
const (
	TraceInvoke = "invoke" // a flow step was started
	TraceRun    = "run"    // the engine appended a ledger entry
	TraceResult = "result" // a flow step finished
)

// TraceEvent is one entry in a scenario's execution trace.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`
	// invoke
	Action string         `json:"action,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	// run
	RuleID string `json:"rule_id,omitempty"`
	Status string `json:"status,omitempty"`
	Event  string `json:"event,omitempty"`
	CardID string `json:"card_id,omitempty"`
	At     string `json:"at,omitempty"`
	// run and result
	Error string `json:"error,omitempty"`
	// result
	Runs int `json:"runs,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains flow steps and the ledger entries they produced, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) next() int64 {
	r.seq++
	return r.seq
}

// AddInvokeTrace records the start of a flow step.
func (r *Result) AddInvokeTrace(action string, args map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceInvoke,
		Seq:    r.next(),
		Action: action,
		Args:   args,
	})
}

// AddRunTrace records a ledger entry.
func (r *Result) AddRunTrace(ev TraceEvent) {
	ev.Type = TraceRun
	ev.Seq = r.next()
	r.Trace = append(r.Trace, ev)
}

// AddResultTrace records the end of a flow step.
func (r *Result) AddResultTrace(runs int, errText string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:  TraceResult,
		Seq:   r.next(),
		Runs:  runs,
		Error: errText,
	})
}

// Runs returns the run events of the trace.
func (r *Result) Runs() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == TraceRun {
			out = append(out, ev)
		}
	}
	return out
}
