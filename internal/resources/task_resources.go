package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/breezapp/breez/internal/server"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tools/common"
)

const (
	tasksTemplate       = "breez://users/{userId}/tasks"
	integrationTemplate = "breez://users/{userId}/integration"
)

// RegisterTaskResources registers the per-user task and integration resources.
func RegisterTaskResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc.Tasks() == nil || sc.Integrations() == nil {
		return fmt.Errorf("task service and integration store are required")
	}

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(tasksTemplate, "Tasks",
			mcp.WithTemplateDescription("All tasks of a user with their calendar event links"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return handleTasks(ctx, request, sc)
		},
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(integrationTemplate, "Calendar Integration",
			mcp.WithTemplateDescription("Google Calendar connection status of a user"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return handleIntegration(ctx, request, sc)
		},
	)

	return nil
}

// userFromRequest resolves the user the URI names. Template variables
// arrive as []string.
func userFromRequest(ctx context.Context, request mcp.ReadResourceRequest) (string, error) {
	args := map[string]any{}
	switch v := request.Params.Arguments["userId"].(type) {
	case string:
		args["userId"] = v
	case []string:
		if len(v) > 0 {
			args["userId"] = v[0]
		}
	}
	return common.UserFromArgs(ctx, args)
}

func handleTasks(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	userID, err := userFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	tasks, err := sc.Tasks().ListTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return jsonContents(request.Params.URI, map[string]any{"tasks": tasks})
}

func handleIntegration(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	userID, err := userFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	status, err := server.LookupIntegrationStatus(ctx, sc.Integrations(), userID, store.ProviderGoogleCalendar)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	status.SyncEnabled = sc.Tasks().SyncEnabled()
	return jsonContents(request.Params.URI, status)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
