package generator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

// scriptedModel answers each call with the next scripted reply
type scriptedModel struct {
	replies  []func(req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error)
	requests []interfaces.CompletionRequest
}

func (m *scriptedModel) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	snapshot := *req
	snapshot.Messages = append([]interfaces.Message(nil), req.Messages...)
	m.requests = append(m.requests, snapshot)

	i := len(m.requests) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i](req)
}

func (m *scriptedModel) ModelName() string { return "scripted" }

func text(answer string) func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	return func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
		return &interfaces.CompletionResponse{
			Blocks:     []interfaces.ContentBlock{interfaces.TextBlock(answer)},
			StopReason: interfaces.StopEndTurn,
		}, nil
	}
}

func toolCall(ids ...string) func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	return func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
		resp := &interfaces.CompletionResponse{StopReason: interfaces.StopToolUse}
		for _, id := range ids {
			resp.Blocks = append(resp.Blocks, interfaces.ContentBlock{
				Type:      interfaces.BlockToolUse,
				ToolUseID: id,
				ToolName:  "search_course_content",
				Input:     json.RawMessage(`{"query":"` + id + `"}`),
			})
		}
		return resp, nil
	}
}

// toolUntilDisabled requests a tool whenever tools are offered
func toolUntilDisabled(req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if len(req.Tools) > 0 {
		return toolCall("again")(req)
	}
	return text("forced answer")(req)
}

func fail(err error) func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	return func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
		return nil, err
	}
}

type MockToolExecutor struct {
	mock.Mock
}

func (m *MockToolExecutor) Definitions() []interfaces.ToolDefinition {
	args := m.Called()
	return args.Get(0).([]interfaces.ToolDefinition)
}

func (m *MockToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	args := m.Called(ctx, name, input)
	return args.String(0), args.Error(1)
}

var searchDefinition = []interfaces.ToolDefinition{{Name: "search_course_content", Description: "search"}}

func newTestGenerator(model interfaces.ChatModel) *Generator {
	return NewGenerator(model, &common.LLMConfig{MaxToolRounds: 2, RetryBackoff: "1ms"}, arbor.NewLogger())
}

func newTools() *MockToolExecutor {
	tools := &MockToolExecutor{}
	tools.On("Definitions").Return(searchDefinition)
	return tools
}

func TestGenerate_DirectAnswer(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){text("  Paris  ")}}
	tools := newTools()

	answer, err := newTestGenerator(model).Generate(context.Background(), "capital of France?", "", tools)
	require.NoError(t, err)

	assert.Equal(t, "Paris", answer)
	require.Len(t, model.requests, 1)
	assert.Equal(t, SystemPrompt, model.requests[0].System)
	assert.Equal(t, searchDefinition, model.requests[0].Tools)
	tools.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_HistoryAppendedToSystemPrompt(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){text("ok")}}

	_, err := newTestGenerator(model).Generate(context.Background(), "q", "User: hi\nAssistant: hello", nil)
	require.NoError(t, err)

	assert.Equal(t, SystemPrompt+"\n\nPrevious conversation:\nUser: hi\nAssistant: hello", model.requests[0].System)
	assert.Empty(t, model.requests[0].Tools)
}

func TestGenerate_ToolRoundTrip(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolCall("t1"), text("Final answer")}}
	tools := newTools()
	tools.On("Execute", mock.Anything, "search_course_content", json.RawMessage(`{"query":"t1"}`)).Return("search results", nil)

	answer, err := newTestGenerator(model).Generate(context.Background(), "q", "", tools)
	require.NoError(t, err)
	assert.Equal(t, "Final answer", answer)

	require.Len(t, model.requests, 2)
	second := model.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, interfaces.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, interfaces.BlockToolUse, second.Messages[1].Blocks[0].Type)

	result := second.Messages[2]
	assert.Equal(t, interfaces.RoleUser, result.Role)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, interfaces.BlockToolResult, result.Blocks[0].Type)
	assert.Equal(t, "t1", result.Blocks[0].ToolUseID)
	assert.Equal(t, "search results", result.Blocks[0].Text)
	assert.False(t, result.Blocks[0].IsError)

	// one round used, tools still offered
	assert.Equal(t, searchDefinition, second.Tools)
	tools.AssertExpectations(t)
}

func TestGenerate_MultipleToolUsesAnsweredInOrder(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolCall("a", "b"), text("done")}}
	tools := newTools()
	tools.On("Execute", mock.Anything, "search_course_content", json.RawMessage(`{"query":"a"}`)).Return("first", nil)
	tools.On("Execute", mock.Anything, "search_course_content", json.RawMessage(`{"query":"b"}`)).Return("second", nil)

	_, err := newTestGenerator(model).Generate(context.Background(), "q", "", tools)
	require.NoError(t, err)

	results := model.requests[1].Messages[2].Blocks
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolUseID)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, "b", results[1].ToolUseID)
	assert.Equal(t, "second", results[1].Text)
}

func TestGenerate_RoundLimitForcesTextAnswer(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolUntilDisabled}}
	tools := newTools()
	tools.On("Execute", mock.Anything, "search_course_content", mock.Anything).Return("more results", nil)

	answer, err := newTestGenerator(model).Generate(context.Background(), "q", "", tools)
	require.NoError(t, err)
	assert.Equal(t, "forced answer", answer)

	require.Len(t, model.requests, 3)
	assert.NotEmpty(t, model.requests[0].Tools)
	assert.NotEmpty(t, model.requests[1].Tools)
	assert.Empty(t, model.requests[2].Tools)
	tools.AssertNumberOfCalls(t, "Execute", 2)
}

func TestGenerate_ZeroRoundsNeverOffersTools(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolUntilDisabled}}
	gen := NewGenerator(model, &common.LLMConfig{MaxToolRounds: 0}, arbor.NewLogger())

	answer, err := gen.Generate(context.Background(), "q", "", newTools())
	require.NoError(t, err)
	assert.Equal(t, "forced answer", answer)
	assert.Len(t, model.requests, 1)
}

func TestGenerate_ToolErrorBecomesErrorResult(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolCall("t1"), text("sorry")}}
	tools := newTools()
	tools.On("Execute", mock.Anything, "search_course_content", mock.Anything).Return("", errors.New("boom"))

	answer, err := newTestGenerator(model).Generate(context.Background(), "q", "", tools)
	require.NoError(t, err)
	assert.Equal(t, "sorry", answer)

	result := model.requests[1].Messages[2].Blocks[0]
	assert.Equal(t, "Tool execution error: boom", result.Text)
	assert.True(t, result.IsError)
}

func TestGenerate_UnknownToolBecomesErrorResult(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolCall("t1"), text("recovered")}}
	tools := newTools()
	tools.On("Execute", mock.Anything, "search_course_content", mock.Anything).Return("", &interfaces.UnknownToolError{Name: "search_course_content"})

	_, err := newTestGenerator(model).Generate(context.Background(), "q", "", tools)
	require.NoError(t, err)

	result := model.requests[1].Messages[2].Blocks[0]
	assert.Equal(t, "Tool execution error: unknown tool: search_course_content", result.Text)
	assert.True(t, result.IsError)
}

func TestGenerate_RetriesRetryableFailureOnce(t *testing.T) {
	retryable := &interfaces.ProviderError{Provider: "claude", StatusCode: 529, Retryable: true, Err: errors.New("overloaded")}
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){fail(retryable), text("ok")}}

	answer, err := newTestGenerator(model).Generate(context.Background(), "q", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Len(t, model.requests, 2)
}

func TestGenerate_SecondRetryableFailureFails(t *testing.T) {
	retryable := &interfaces.ProviderError{Provider: "claude", StatusCode: 429, Retryable: true, Err: errors.New("rate limited")}
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){fail(retryable)}}

	answer, err := newTestGenerator(model).Generate(context.Background(), "q", "", nil)
	require.Error(t, err)
	assert.Empty(t, answer)
	assert.Len(t, model.requests, 2)

	var genErr *interfaces.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, genErr.Attempts)
	assert.Equal(t, 0, genErr.Round)
	assert.ErrorIs(t, err, retryable)
}

func TestGenerate_FatalFailureNotRetried(t *testing.T) {
	fatal := &interfaces.ProviderError{Provider: "claude", StatusCode: 401, Err: errors.New("invalid key")}
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){fail(fatal)}}

	_, err := newTestGenerator(model).Generate(context.Background(), "q", "", nil)

	var genErr *interfaces.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, genErr.Attempts)
	assert.Len(t, model.requests, 1)
	assert.Contains(t, err.Error(), "answer generation failed")
}

func TestGenerate_FailureDuringLaterRound(t *testing.T) {
	fatal := errors.New("connection reset")
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){toolCall("t1"), fail(fatal)}}
	tools := newTools()
	tools.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return("results", nil)

	_, err := newTestGenerator(model).Generate(context.Background(), "q", "", tools)

	var genErr *interfaces.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, genErr.Round)
}

func TestGenerate_EmptyAnswerFails(t *testing.T) {
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){text("   ")}}

	_, err := newTestGenerator(model).Generate(context.Background(), "q", "", nil)
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestGenerate_CanceledDuringBackoff(t *testing.T) {
	retryable := &interfaces.ProviderError{Provider: "claude", Retryable: true, Err: errors.New("timeout")}
	model := &scriptedModel{replies: []func(*interfaces.CompletionRequest) (*interfaces.CompletionResponse, error){fail(retryable), text("late")}}
	gen := NewGenerator(model, &common.LLMConfig{MaxToolRounds: 2, RetryBackoff: "1h"}, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, "q", "", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, model.requests, 1)
}
