package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

const providerName = "claude"

// messageSender is the part of anthropic.MessageService used for completions
type messageSender interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ClaudeService implements interfaces.ChatModel using the Anthropic Messages API with tool use.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	messages  messageSender
	limiter   *rate.Limiter
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a new Claude chat model.
// SDK-level retries are disabled; retry policy belongs to the caller.
func NewClaudeService(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude service (set via ANTHROPIC_API_KEY, LECTERN_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	service := newClaudeService(claudeConfig, nil, logger)
	service.client = anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
		option.WithMaxRetries(0),
	)
	service.messages = &service.client.Messages

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", service.timeout).
		Float64("temperature", float64(claudeConfig.Temperature)).
		Int("max_tokens", service.maxTokens).
		Msg("Claude LLM service initialized successfully")

	return service, nil
}

func newClaudeService(claudeConfig *common.ClaudeConfig, sender messageSender, logger arbor.ILogger) *ClaudeService {
	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}

	return &ClaudeService{
		config:    claudeConfig,
		logger:    logger,
		messages:  sender,
		limiter:   rate.NewLimiter(rate.Every(common.ParseDuration(claudeConfig.RateLimit, 200*time.Millisecond)), 1),
		timeout:   common.ParseDuration(claudeConfig.Timeout, 60*time.Second),
		maxTokens: maxTokens,
	}
}

// ModelName returns the configured Claude model
func (s *ClaudeService) ModelName() string {
	return s.config.Model
}

// Complete sends one Messages API request. Tool definitions are included
// only when the request carries them.
func (s *ClaudeService) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty for chat completion")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, s.providerError(err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.config.Model),
		MaxTokens:   int64(s.maxTokens),
		Messages:    toClaudeMessages(req.Messages),
		Temperature: anthropic.Float(float64(s.config.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = toClaudeTools(req.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	startTime := time.Now()
	resp, err := s.messages.New(timeoutCtx, params)
	if err != nil {
		perr := s.providerError(err)
		s.logger.Warn().
			Err(err).
			Int("status", perr.StatusCode).
			Bool("retryable", perr.Retryable).
			Int("message_count", len(req.Messages)).
			Msg("Claude API call failed")
		return nil, perr
	}

	response := fromClaudeMessage(resp)

	s.logger.Debug().
		Int("message_count", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Str("stop_reason", string(response.StopReason)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion received")

	return response, nil
}

// providerError classifies a failure as retryable or fatal
func (s *ClaudeService) providerError(err error) *interfaces.ProviderError {
	perr := &interfaces.ProviderError{Provider: providerName, Err: err}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		perr.StatusCode = apiErr.StatusCode
		perr.Retryable = retryableStatus(apiErr.StatusCode)
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		perr.Retryable = true
		return perr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		perr.Retryable = true
	}
	return perr
}

// retryableStatus reports rate limits, overload and server errors
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code == 529: // overloaded
		return true
	case code >= 500:
		return true
	}
	return false
}

func toClaudeMessages(messages []interfaces.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
		for _, b := range msg.Blocks {
			switch b.Type {
			case interfaces.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ToolUseID,
						Name:  b.ToolName,
						Input: input,
					},
				})
			case interfaces.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			default:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			}
		}

		if msg.Role == interfaces.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toClaudeTools(defs []interfaces.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Properties,
					Required:   def.Required,
				},
			},
		})
	}
	return tools
}

func fromClaudeMessage(msg *anthropic.Message) *interfaces.CompletionResponse {
	response := &interfaces.CompletionResponse{
		StopReason: interfaces.StopReason(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			response.Blocks = append(response.Blocks, interfaces.TextBlock(block.Text))
		case "tool_use":
			response.Blocks = append(response.Blocks, interfaces.ContentBlock{
				Type:      interfaces.BlockToolUse,
				ToolUseID: block.ID,
				ToolName:  block.Name,
				Input:     append(json.RawMessage(nil), block.Input...),
			})
		}
	}
	return response
}
