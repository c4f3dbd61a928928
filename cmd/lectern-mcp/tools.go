package main

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ternarybob/lectern/internal/interfaces"
)

const askToolName = "ask_course_assistant"

// createCourseTool exposes a registered course tool with its own JSON schema
func createCourseTool(def interfaces.ToolDefinition) (mcp.Tool, error) {
	schema, err := json.Marshal(def.InputSchema())
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(def.Name, def.Description, schema), nil
}

// createAskTool returns the ask_course_assistant tool definition
func createAskTool() mcp.Tool {
	return mcp.NewTool(askToolName,
		mcp.WithDescription("Answer a question about the course materials using search and outline tools, with sources"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session id returned by a previous call, to continue the conversation"),
		),
	)
}
