package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

// ErrEmptyAnswer is returned when the model finishes without any text
var ErrEmptyAnswer = errors.New("model returned an empty answer")

type state int

const (
	stateAwaitingModel state = iota
	stateToolRequested
	stateDone
	stateFailed
)

// conversation is the state of one Generate call
type conversation struct {
	state    state
	round    int
	system   string
	messages []interfaces.Message
	pending  *interfaces.CompletionResponse
	answer   string
	err      error
}

// Generator drives the tool-use loop between the chat model and the tools
type Generator struct {
	model         interfaces.ChatModel
	logger        arbor.ILogger
	maxToolRounds int
	retryBackoff  time.Duration
}

// NewGenerator creates a generator for the given chat model
func NewGenerator(model interfaces.ChatModel, llmConfig *common.LLMConfig, logger arbor.ILogger) *Generator {
	maxRounds := llmConfig.MaxToolRounds
	if maxRounds < 0 {
		maxRounds = 0
	}

	return &Generator{
		model:         model,
		logger:        logger,
		maxToolRounds: maxRounds,
		retryBackoff:  common.ParseDuration(llmConfig.RetryBackoff, time.Second),
	}
}

// Generate answers query, letting the model call tools for at most
// maxToolRounds rounds. The call after the last round is made without
// tools so the model must answer in text. tools may be nil.
// Failures of the model call are returned as *interfaces.GenerationError.
func (g *Generator) Generate(ctx context.Context, query, history string, tools interfaces.ToolExecutor) (string, error) {
	conv := &conversation{
		state:  stateAwaitingModel,
		system: buildSystemPrompt(history),
		messages: []interfaces.Message{
			{Role: interfaces.RoleUser, Blocks: []interfaces.ContentBlock{interfaces.TextBlock(query)}},
		},
	}

	start := time.Now()

	for conv.state != stateDone && conv.state != stateFailed {
		switch conv.state {
		case stateAwaitingModel:
			g.awaitModel(ctx, conv, tools)
		case stateToolRequested:
			g.runTools(ctx, conv, tools)
		}
	}

	if conv.state == stateFailed {
		g.logger.Error().
			Err(conv.err).
			Int("round", conv.round).
			Msg("Answer generation failed")
		return "", conv.err
	}

	g.logger.Debug().
		Int("rounds", conv.round).
		Int("answer_length", len(conv.answer)).
		Dur("duration", time.Since(start)).
		Msg("Answer generated")

	return conv.answer, nil
}

func (g *Generator) awaitModel(ctx context.Context, conv *conversation, tools interfaces.ToolExecutor) {
	req := &interfaces.CompletionRequest{
		System:   conv.system,
		Messages: conv.messages,
	}
	if tools != nil && conv.round < g.maxToolRounds {
		req.Tools = tools.Definitions()
	}

	resp, attempts, err := g.complete(ctx, req)
	if err != nil {
		conv.fail(&interfaces.GenerationError{Round: conv.round, Attempts: attempts, Err: err})
		return
	}

	if len(req.Tools) > 0 && len(resp.ToolUses()) > 0 {
		conv.pending = resp
		conv.state = stateToolRequested
		return
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		conv.fail(&interfaces.GenerationError{Round: conv.round, Attempts: attempts, Err: ErrEmptyAnswer})
		return
	}

	conv.answer = answer
	conv.state = stateDone
}

// runTools executes every tool_use block of the pending response in order
// and appends one user turn carrying all the results
func (g *Generator) runTools(ctx context.Context, conv *conversation, tools interfaces.ToolExecutor) {
	resp := conv.pending
	conv.pending = nil

	conv.messages = append(conv.messages, interfaces.Message{
		Role:   interfaces.RoleAssistant,
		Blocks: resp.Blocks,
	})

	uses := resp.ToolUses()
	results := make([]interfaces.ContentBlock, 0, len(uses))

	for _, use := range uses {
		output, err := tools.Execute(ctx, use.ToolName, use.Input)
		if err != nil {
			var unknown *interfaces.UnknownToolError
			if errors.As(err, &unknown) {
				g.logger.Error().Str("tool", use.ToolName).Msg("Model requested an unregistered tool")
			}
			results = append(results, interfaces.ToolResultBlock(use.ToolUseID, fmt.Sprintf("Tool execution error: %v", err), true))
			continue
		}
		results = append(results, interfaces.ToolResultBlock(use.ToolUseID, output, false))
	}

	conv.messages = append(conv.messages, interfaces.Message{
		Role:   interfaces.RoleUser,
		Blocks: results,
	})

	conv.round++
	conv.state = stateAwaitingModel

	g.logger.Debug().
		Int("round", conv.round).
		Int("tool_calls", len(uses)).
		Msg("Tool round complete")
}

// complete calls the model, retrying once after retryBackoff when the
// provider reports a retryable failure
func (g *Generator) complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, int, error) {
	resp, err := g.model.Complete(ctx, req)
	if err == nil {
		return resp, 1, nil
	}
	if !interfaces.IsRetryable(err) {
		return nil, 1, err
	}

	g.logger.Warn().
		Err(err).
		Dur("backoff", g.retryBackoff).
		Msg("Retryable model failure, retrying once")

	timer := time.NewTimer(g.retryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, 1, ctx.Err()
	case <-timer.C:
	}

	resp, err = g.model.Complete(ctx, req)
	if err != nil {
		return nil, 2, err
	}
	return resp, 2, nil
}

func (c *conversation) fail(err error) {
	c.err = err
	c.state = stateFailed
}
