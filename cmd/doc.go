// Package cmd implements the command-line interface for breez.
//
// This package provides the following commands:
//   - serve: Start the HTTP server (calendar integration, task API, MCP)
//   - migrate: Create or update the database schema
//   - auth-url: Print the Google consent URL for a user
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// Settings come from environment variables and an optional .env file;
// flags override them.
package cmd
