// Package task_tools provides MCP tools for breez tasks and their Google
// Calendar sync.
//
// Read tools (task_list, task_get, calendar_status) are always registered.
// Write tools (task_create, task_update, task_delete) are only registered
// when writes are allowed. Every mutation result carries the calendar sync
// outcome, so an agent can tell a saved task whose event failed apart from
// a fully synced one.
//
// Over the streamable-http transport the user comes from the authenticated
// request; over stdio each call passes userId.
package task_tools
