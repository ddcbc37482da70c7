package task_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/breezapp/breez/internal/server"
	"github.com/breezapp/breez/internal/store"
	"github.com/breezapp/breez/internal/tasksync"
	"github.com/breezapp/breez/internal/tools/batch"
	"github.com/breezapp/breez/internal/tools/common"
)

// taskFields are the editable task arguments shared by create and update.
var taskFields = []string{"title", "description", "status", "priority", "dueDate", "startTime", "endTime"}

func userIDOption() mcp.ToolOption {
	return mcp.WithString("userId",
		mcp.Description("ID of the user the call acts for. Optional over HTTP, where the authenticated user is used."),
	)
}

func taskFieldOptions(titleRequired bool) []mcp.ToolOption {
	titleOpts := []mcp.PropertyOption{mcp.Description("Task title")}
	if titleRequired {
		titleOpts = append(titleOpts, mcp.Required())
	}
	return []mcp.ToolOption{
		mcp.WithString("title", titleOpts...),
		mcp.WithString("description", mcp.Description("Task description, copied to the calendar event")),
		mcp.WithString("status",
			mcp.Description("Task status"),
			mcp.Enum(string(store.StatusTodo), string(store.StatusInProgress), string(store.StatusDone), string(store.StatusCanceled)),
		),
		mcp.WithString("priority",
			mcp.Description("Task priority"),
			mcp.Enum(string(store.PriorityLow), string(store.PriorityMedium), string(store.PriorityHigh)),
		),
		mcp.WithString("dueDate", mcp.Description("Due date (YYYY-MM-DD). Tasks with a due date get a calendar event; an empty value removes it.")),
		mcp.WithString("startTime", mcp.Description("Start time (HH:MM, 24h). Defaults to midnight.")),
		mcp.WithString("endTime", mcp.Description("End time (HH:MM, 24h). Defaults to one hour after the start.")),
	}
}

// RegisterTaskTools registers the task tools with the MCP server
func RegisterTaskTools(s *mcpserver.MCPServer, sc *server.ServerContext, allowWrites bool) error {
	if sc.Tasks() == nil {
		return fmt.Errorf("task service is required")
	}

	registerReadTools(s, sc)
	if allowWrites {
		registerWriteTools(s, sc)
	}
	return nil
}

func registerReadTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool("task_list",
		mcp.WithDescription("List the user's tasks with their calendar event links"),
		mcp.WithReadOnlyHintAnnotation(true),
		userIDOption(),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("task_list", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListTasks(ctx, request, sc)
	}))

	getTool := mcp.NewTool("task_get",
		mcp.WithDescription("Get a single task"),
		mcp.WithReadOnlyHintAnnotation(true),
		userIDOption(),
		mcp.WithString("taskId", mcp.Required(), mcp.Description("ID of the task")),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("task_get", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetTask(ctx, request, sc)
	}))

	statusTool := mcp.NewTool("calendar_status",
		mcp.WithDescription("Show whether Google Calendar is connected for the user and which calendar tasks sync to"),
		mcp.WithReadOnlyHintAnnotation(true),
		userIDOption(),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("calendar_status", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCalendarStatus(ctx, request, sc)
	}))
}

func registerWriteTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	createOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Create a task. A task with a due date is added to the user's breez calendar."),
		userIDOption(),
	}, taskFieldOptions(true)...)
	s.AddTool(mcp.NewTool("task_create", createOpts...), common.InstrumentedToolHandler("task_create", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCreateTask(ctx, request, sc)
	}))

	updateOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Update a task. Only the given fields change; the calendar event is updated, created or removed to match."),
		userIDOption(),
		mcp.WithString("taskId", mcp.Required(), mcp.Description("ID of the task")),
	}, taskFieldOptions(false)...)
	s.AddTool(mcp.NewTool("task_update", updateOpts...), common.InstrumentedToolHandler("task_update", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpdateTask(ctx, request, sc)
	}))

	completeTool := mcp.NewTool("task_complete",
		mcp.WithDescription("Mark one or more tasks as done. Each task is updated independently; the result lists the outcome per task."),
		userIDOption(),
		mcp.WithString("taskIds",
			mcp.Required(),
			mcp.Description("Task ID (string) or array of task IDs to complete"),
		),
	)
	s.AddTool(completeTool, common.InstrumentedToolHandler("task_complete", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCompleteTasks(ctx, request, sc)
	}))

	deleteTool := mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task and its calendar event"),
		mcp.WithDestructiveHintAnnotation(true),
		userIDOption(),
		mcp.WithString("taskId", mcp.Required(), mcp.Description("ID of the task")),
	)
	s.AddTool(deleteTool, common.InstrumentedToolHandler("task_delete", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeleteTask(ctx, request, sc)
	}))
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// taskError renders a task lookup or storage failure.
func taskError(action string, err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError("Task not found")
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s task: %v", action, err))
}

// patchFromArgs builds a patch from the fields present in args.
func patchFromArgs(args map[string]any) (tasksync.Patch, error) {
	var p tasksync.Patch
	for _, name := range taskFields {
		raw, ok := args[name]
		if !ok {
			continue
		}
		v, ok := raw.(string)
		if !ok {
			return p, fmt.Errorf("%s must be a string", name)
		}
		switch name {
		case "title":
			p.Title = &v
		case "description":
			p.Description = &v
		case "status":
			p.Status = &v
		case "priority":
			p.Priority = &v
		case "dueDate":
			p.DueDate = &v
		case "startTime":
			p.StartTime = &v
		case "endTime":
			p.EndTime = &v
		}
	}
	return p, nil
}

func handleListTasks(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	userID, err := common.UserFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tasks, err := sc.Tasks().ListTasks(ctx, userID)
	if err != nil {
		return taskError("list", err), nil
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	return jsonResult(map[string]any{"tasks": tasks})
}

func handleGetTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	userID, err := common.UserFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := request.RequireString("taskId")
	if err != nil || taskID == "" {
		return mcp.NewToolResultError("taskId is required"), nil
	}

	task, err := sc.Tasks().GetTask(ctx, userID, taskID)
	if err != nil {
		return taskError("get", err), nil
	}
	return jsonResult(map[string]any{"task": task})
}

func handleCalendarStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	userID, err := common.UserFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := server.LookupIntegrationStatus(ctx, sc.Integrations(), userID, store.ProviderGoogleCalendar)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load integration: %v", err)), nil
	}
	status.SyncEnabled = sc.Tasks().SyncEnabled()
	return jsonResult(status)
}

func handleCreateTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := common.UserFromArgs(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patch, err := patchFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := patch.Apply(&store.Task{UserID: userID})
	if err := task.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid task: %v", err)), nil
	}

	created, res, err := sc.Tasks().CreateTask(ctx, task)
	if err != nil {
		return taskError("create", err), nil
	}
	return jsonResult(map[string]any{"task": created, "sync": res})
}

func handleUpdateTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := common.UserFromArgs(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := request.RequireString("taskId")
	if err != nil || taskID == "" {
		return mcp.NewToolResultError("taskId is required"), nil
	}
	patch, err := patchFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if patch.Empty() {
		return mcp.NewToolResultError("at least one field to update is required"), nil
	}

	current, err := sc.Tasks().GetTask(ctx, userID, taskID)
	if err != nil {
		return taskError("update", err), nil
	}
	task := patch.Apply(current)
	if err := task.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid task: %v", err)), nil
	}

	updated, res, err := sc.Tasks().UpdateTask(ctx, task)
	if err != nil {
		return taskError("update", err), nil
	}
	return jsonResult(map[string]any{"task": updated, "sync": res})
}

func handleDeleteTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	userID, err := common.UserFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := request.RequireString("taskId")
	if err != nil || taskID == "" {
		return mcp.NewToolResultError("taskId is required"), nil
	}

	res, err := sc.Tasks().DeleteTask(ctx, userID, taskID)
	if err != nil {
		return taskError("delete", err), nil
	}
	return jsonResult(map[string]any{"success": true, "sync": res})
}

func handleCompleteTasks(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := common.UserFromArgs(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskIDs, err := batch.ParseIDs(args["taskIds"], "taskIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	done := string(store.StatusDone)
	patch := tasksync.Patch{Status: &done}
	summary := batch.Process(ctx, taskIDs, func(ctx context.Context, taskID string) (any, error) {
		current, err := sc.Tasks().GetTask(ctx, userID, taskID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.New("task not found")
		}
		if err != nil {
			return nil, err
		}
		updated, res, err := sc.Tasks().UpdateTask(ctx, patch.Apply(current))
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": updated, "sync": res}, nil
	})
	return jsonResult(summary)
}
