// Package engine implements the rule runtime: the execution scope
// interpreter, per-entity runtime rule tables and the Environment that
// dispatches triggers and steps running tasks.
//
// ARCHITECTURE:
//
// Single Frame Goroutine:
// Trigger, Broadcast, Tick and table mutation run on the host's frame
// goroutine. Enqueue is the only entry point safe from other goroutines;
// queued events are drained at the start of the next Tick.
//
// Dispatch Flow:
//  1. Trigger(entity, trigger) finds the entity's runtime rule table
//  2. Rules listening for the trigger are visited in table order
//  3. Each candidate borrows an ExecutionScope from the pool and evaluates
//     its conditions
//  4. A passing rule launches its action sequence as a task; the first
//     step runs synchronously inside the dispatch
//  5. Tick steps every running task once per frame and returns the scopes
//     of finished tasks to the pool
//
// Cooperative Tasks:
// Actions return a routine.Routine when they suspend. All routines returned
// by one action are joined and awaited before the next action starts.
// Stopping a task means it is never stepped again; nothing is interrupted
// mid-step.
//
// Error Policy:
// Data problems (unknown ids, missing components, inactive targets) never
// abort execution. Lookups log and return nil, and action targets are
// classified with an ActionStatus. Contract violations such as reading a
// register on a scope without a bank panic with a *RuntimeError.
package engine
