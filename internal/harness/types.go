package harness

// Trace event types.
const (
	EventFired    = "fired"
	EventAction   = "action"
	EventLog      = "log"
	EventFinished = "finished"
	EventStopped  = "stopped"
)

// TraceEvent is one observable step of rule execution.
type TraceEvent struct {
	Type    string `json:"type"`
	Frame   int64  `json:"frame"`
	Entity  string `json:"entity"`
	Rule    string `json:"rule,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Arg     any    `json:"arg,omitempty"`
	Action  string `json:"action,omitempty"`
	Target  string `json:"target,omitempty"`
	Status  string `json:"status,omitempty"`
	Text    string `json:"text,omitempty"`
}

// matches reports whether e satisfies every non-empty field of m.
func (m Match) matches(e TraceEvent) bool {
	return (m.Event == "" || m.Event == e.Type) &&
		(m.Entity == "" || m.Entity == e.Entity) &&
		(m.Rule == "" || m.Rule == e.Rule) &&
		(m.Action == "" || m.Action == e.Action) &&
		(m.Text == "" || m.Text == e.Text)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every event in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Frames is the frame the world ended on.
	Frames int64 `json:"frames"`
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

func (r *Result) add(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
