// Package tools provides MCP tool implementations for classlens-engine.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/models"
	"github.com/classlens-inc/classlens-engine/pkg/repositories"
	"github.com/classlens-inc/classlens-engine/pkg/services"
)

// AttendanceToolDeps contains dependencies for the attendance tools.
// Both tools are read-only: the recognition pipeline and the record
// store are never mutated through MCP.
type AttendanceToolDeps struct {
	RosterRepo repositories.RosterRepository
	Reconcile  services.ReconcileService
	Logger     *zap.Logger
}

// RegisterAttendanceTools registers the attendance MCP tools.
func RegisterAttendanceTools(s *server.MCPServer, deps *AttendanceToolDeps) {
	registerListStudentsTool(s, deps)
	registerGetAttendanceTool(s, deps)
}

// registerListStudentsTool adds the list_students tool.
func registerListStudentsTool(s *server.MCPServer, deps *AttendanceToolDeps) {
	tool := mcp.NewTool(
		"list_students",
		mcp.WithDescription(
			"List the class roster. Returns roll_number and name for every "+
				"enrolled student. Example: list_students() returns the full roster.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, listStudentsHandler(deps))
}

func listStudentsHandler(deps *AttendanceToolDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		roster, err := deps.RosterRepo.List(ctx)
		if err != nil {
			deps.Logger.Error("list_students failed", zap.Error(err))
			return nil, fmt.Errorf("failed to list students: %w", err)
		}

		return jsonResult(map[string]any{
			"students": roster,
			"count":    len(roster),
		})
	}
}

// registerGetAttendanceTool adds the get_attendance tool.
func registerGetAttendanceTool(s *server.MCPServer, deps *AttendanceToolDeps) {
	tool := mcp.NewTool(
		"get_attendance",
		mcp.WithDescription(
			"Get attendance records for one calendar day. "+
				"Returns roll_number and is_present per recorded student. "+
				"Example: get_attendance(date='2026-03-10') returns that day's records.",
		),
		mcp.WithString(
			"date",
			mcp.Description("Calendar day as YYYY-MM-DD. Defaults to today."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, getAttendanceHandler(deps))
}

func getAttendanceHandler(deps *AttendanceToolDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date := time.Now().UTC()
		if raw := req.GetString("date", ""); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return mcp.NewToolResultError("parameter 'date' must be YYYY-MM-DD"), nil
			}
			date = parsed
		}

		records, err := deps.Reconcile.RecordsForDay(ctx, date)
		if err != nil {
			deps.Logger.Error("get_attendance failed", zap.Error(err))
			return nil, fmt.Errorf("failed to get attendance: %w", err)
		}

		present := 0
		for _, rec := range records {
			if rec.IsPresent {
				present++
			}
		}

		return jsonResult(map[string]any{
			"date":    models.DayOf(date).Format("2006-01-02"),
			"records": records,
			"present": present,
			"total":   len(records),
		})
	}
}

// jsonResult marshals a payload into a text tool result.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
