package engine

import (
	"github.com/FilamentGames/rulescript/internal/entity"
	"github.com/FilamentGames/rulescript/internal/ir"
)

// Observer receives execution events. Callbacks run on the frame goroutine
// in the middle of dispatch and must not block.
type Observer interface {
	RuleFired(RuleFiredEvent)
	ActionPerformed(ActionEvent)
	TaskFinished(TaskEvent)
}

// RuleFiredEvent is raised when a rule's conditions pass and its task is
// launched.
type RuleFiredEvent struct {
	Token   string
	Frame   int64
	Owner   entity.Entity
	Rule    string
	Trigger ir.TriggerID
	Arg     ir.Value
}

// ActionEvent is raised once per action target.
type ActionEvent struct {
	Token  string
	Frame  int64
	Owner  entity.Entity
	Rule   string
	Action string // action key, or the hex id when unknown
	Result ActionResult
}

// TaskEvent is raised when a rule's task ends. Stopped is true when the
// task was stopped or replaced before it finished.
type TaskEvent struct {
	Token   string
	Frame   int64
	Owner   entity.Entity
	Rule    string
	Stopped bool
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RuleFired(RuleFiredEvent)    {}
func (NopObserver) ActionPerformed(ActionEvent) {}
func (NopObserver) TaskFinished(TaskEvent)      {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (os Observers) RuleFired(e RuleFiredEvent) {
	for _, o := range os {
		o.RuleFired(e)
	}
}

func (os Observers) ActionPerformed(e ActionEvent) {
	for _, o := range os {
		o.ActionPerformed(e)
	}
}

func (os Observers) TaskFinished(e TaskEvent) {
	for _, o := range os {
		o.TaskFinished(e)
	}
}
