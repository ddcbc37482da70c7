// Package tasksync keeps tasks and their Google Calendar events in step.
//
// The Orchestrator runs one calendar operation per task mutation: it asks
// the token guard for a usable access token, maps the task to an event,
// performs the remote call and persists the resulting linkage. It is the
// single place where calendar failures are classified; they are reported in
// a Result and never undo a committed task write.
//
// Service wraps a task store and an Orchestrator so callers get both the
// task and its sync outcome from one call.
package tasksync
