package interfaces

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of content carried by a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// ContentBlock is one provider-neutral piece of a message.
type ContentBlock struct {
	Type BlockType

	// Text holds the text of a text block, or the content of a tool result.
	Text string

	// ToolUseID links a tool_use block to its tool_result.
	ToolUseID string
	ToolName  string
	Input     json.RawMessage

	// IsError marks a tool_result describing a failed execution.
	IsError bool
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Text: content, IsError: isError}
}

// Message is a single conversation turn.
type Message struct {
	Role   Role
	Blocks []ContentBlock
}

// CompletionRequest is one call to the language model.
type CompletionRequest struct {
	System   string
	Messages []Message

	// Tools offered to the model. An empty slice disables tool use for the
	// call, which forces a text answer.
	Tools []ToolDefinition
}

// CompletionResponse is the model's reply to a CompletionRequest.
type CompletionResponse struct {
	Blocks     []ContentBlock
	StopReason StopReason
}

// Text concatenates all text blocks of the response.
func (r *CompletionResponse) Text() string {
	var out string
	for _, b := range r.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of the response in order.
func (r *CompletionResponse) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Blocks {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// ChatModel is a language model that supports multi-turn messages and tool use.
type ChatModel interface {
	// Complete sends one request. Failures of the provider itself are
	// returned as *ProviderError.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// ModelName returns the provider model identifier.
	ModelName() string
}
