package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/services/tools"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleCourseTool runs one registered tool with an isolated source accumulator
func handleCourseTool(manager *tools.Manager, name string, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := json.Marshal(request.GetArguments())
		if err != nil {
			return textResult(fmt.Sprintf("Error: invalid arguments: %v", err)), nil
		}

		scoped := manager.Scoped()
		result, err := scoped.Execute(ctx, name, input)
		if err != nil {
			logger.Warn().Err(err).Str("tool", name).Msg("MCP tool call failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(result + formatSources(scoped.Sources())), nil
	}
}

// handleAsk runs the full question answering pipeline
func handleAsk(rag interfaces.RAGService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return textResult("Error: question parameter is required"), nil
		}
		sessionID := request.GetString("session_id", "")

		answer, err := rag.AnswerQuery(ctx, sessionID, question)
		if err != nil {
			logger.Error().Err(err).Msg("Question answering failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatAnswer(answer)), nil
	}
}
