// Package mcpserver exposes the project service as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/harrisonrobin/weworkmcp/pkg/match"
	"github.com/harrisonrobin/weworkmcp/pkg/service"
)

const (
	ServerName = "wework-mcp"

	ProjectsResourceURI = "file://projects/available"

	defaultSearchLimit = 10
)

// Version is set at build time via ldflags.
var Version = "dev"

type handlers struct {
	svc    *service.Service
	logger logrus.FieldLogger
}

// New builds the MCP server with every project tool and the project list resource.
// sync_project_deadlines is only registered when svc has a calendar configured.
func New(svc *service.Service, logger logrus.FieldLogger) *server.MCPServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &handlers{svc: svc, logger: logger}

	s := server.NewMCPServer(
		ServerName,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("search_projects",
		mcp.WithDescription("Search projects whose name matches the given text, best matches first."),
		mcp.WithString("search_text", mcp.Required(), mcp.Description("Text to look for in project names")),
		mcp.WithNumber("limit", mcp.DefaultNumber(defaultSearchLimit), mcp.Description("Maximum number of projects to return")),
	), h.searchProjects)

	s.AddTool(mcp.NewTool("get_project_details",
		mcp.WithDescription("Get the upstream record of a project."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
	), h.projectDetails)

	s.AddTool(mcp.NewTool("analyze_project_tasks",
		mcp.WithDescription("Flatten the tasks and subtasks of a project into an analysis table with a status summary."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithBoolean("export_csv", mcp.DefaultBool(false), mcp.Description("Also write the table to a CSV file")),
	), h.analyzeProject)

	s.AddTool(mcp.NewTool("find_project_by_name",
		mcp.WithDescription("Resolve a human-typed project name to the most similar project."),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Name or partial name of the project")),
		mcp.WithNumber("threshold", mcp.DefaultNumber(match.DefaultThreshold), mcp.Description("Minimum similarity between 0 and 1")),
	), h.findProject)

	s.AddTool(mcp.NewTool("get_project_statistics",
		mcp.WithDescription("Task counts by status, assignee and type, plus the completion rate."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
	), h.projectStatistics)

	s.AddTool(mcp.NewTool("test_connection",
		mcp.WithDescription("Check that the upstream service answers with the configured token."),
	), h.testConnection)

	if svc.CalendarEnabled() {
		s.AddTool(mcp.NewTool("sync_project_deadlines",
			mcp.WithDescription("Mirror the task deadlines of a project into the configured Google calendar."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		), h.syncDeadlines)
	}

	s.AddResource(mcp.NewResource(ProjectsResourceURI, "Available projects",
		mcp.WithResourceDescription("Every project visible to the configured token"),
		mcp.WithMIMEType("application/json"),
	), h.availableProjects)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (h *handlers) searchProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("search_text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", defaultSearchLimit)

	projects, err := h.svc.SearchProjects(ctx, text, limit)
	if err != nil {
		return h.toolError("search_projects", err), nil
	}
	return jsonResult(projects)
}

func (h *handlers) projectDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	project, err := h.svc.ProjectDetails(ctx, id)
	if err != nil {
		return h.toolError("get_project_details", err), nil
	}
	return jsonResult(project)
}

func (h *handlers) analyzeProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.svc.AnalyzeProject(ctx, id, request.GetBool("export_csv", false))
	if err != nil {
		return h.toolError("analyze_project_tasks", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) findProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	threshold := request.GetFloat("threshold", match.DefaultThreshold)
	if threshold < 0 || threshold > 1 {
		return mcp.NewToolResultError(fmt.Sprintf("threshold must be between 0 and 1, got %v", threshold)), nil
	}
	return jsonResult(h.svc.FindProjectByName(ctx, name, threshold))
}

func (h *handlers) projectStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := h.svc.ProjectStatistics(ctx, id)
	if err != nil {
		return h.toolError("get_project_statistics", err), nil
	}
	return jsonResult(stats)
}

func (h *handlers) testConnection(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.svc.TestConnection(ctx))
}

func (h *handlers) syncDeadlines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.svc.SyncDeadlines(ctx, id)
	if err != nil {
		return h.toolError("sync_project_deadlines", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) availableProjects(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(h.svc.AvailableProjects(ctx), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// toolError reports err to the client as a failed tool call. Not-found is expected
// traffic and stays out of the warning log.
func (h *handlers) toolError(tool string, err error) *mcp.CallToolResult {
	entry := h.logger.WithField("tool", tool).WithError(err)
	if errors.Is(err, service.ErrProjectNotFound) {
		entry.Debug("tool call failed")
	} else {
		entry.Warn("tool call failed")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
