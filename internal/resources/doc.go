// Package resources provides MCP resources for a user's tasks and calendar
// integration. Resources are read-only data sources that MCP clients can
// fetch without calling a tool.
//
// Resources are addressed per user:
//
//	breez://users/{userId}/tasks
//	breez://users/{userId}/integration
//
// Over HTTP the userId in the URI must match the authenticated user.
package resources
